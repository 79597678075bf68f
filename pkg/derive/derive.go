// Package derive computes storage paths and case identifiers from record
// metadata. Every function here is pure: the same inputs always produce the
// same outputs, so values can be recomputed for display before a
// submission completes.
package derive

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Defaults used by the package-level functions.
const (
	DefaultFiscalYearStartMonth = time.July
	DefaultCasePrefix           = "PRR"
	caseSequenceWidth           = 4
)

// Deriver carries the fiscal year cutover and case prefix of a deployment.
type Deriver struct {
	FiscalYearStart time.Month
	CasePrefix      string
}

// Default returns the deriver used by the package-level functions.
func Default() Deriver {
	return Deriver{FiscalYearStart: DefaultFiscalYearStartMonth, CasePrefix: DefaultCasePrefix}
}

// FiscalYearStartYear returns the calendar year in which the fiscal year
// containing date began. Dates before the cutover month belong to the
// fiscal year that started the previous calendar year.
func (d Deriver) FiscalYearStartYear(date time.Time) int {
	start := d.FiscalYearStart
	if start < time.January || start > time.December {
		start = DefaultFiscalYearStartMonth
	}
	if start == time.January || date.Month() >= start {
		return date.Year()
	}
	return date.Year() - 1
}

// FiscalYearLabel renders the fiscal year containing date, e.g. FY2023-24
// for 2024-03-01 with a July cutover. A January cutover makes fiscal and
// calendar years coincide and the label is FY2024.
func (d Deriver) FiscalYearLabel(date time.Time) string {
	y := d.FiscalYearStartYear(date)
	if d.FiscalYearStart == time.January {
		return fmt.Sprintf("FY%d", y)
	}
	return fmt.Sprintf("FY%d-%02d", y, (y+1)%100)
}

// DeriveFolderPath returns [root, category, fiscal year] for a record
// created on date, followed by itemID when one is known. The item
// id is omitted for the intake folder, which must exist before the item is
// created.
func (d Deriver) DeriveFolderPath(root, category string, date time.Time, itemID string) []string {
	segs := []string{
		cleanSegment(root),
		cleanSegment(category),
		d.FiscalYearLabel(date),
	}
	if itemID != "" {
		segs = append(segs, cleanSegment(itemID))
	}
	return segs
}

// DeriveCaseID returns PREFIX-YYYYMMDD-NNNN. Numeric item ids are
// zero-padded to four digits, so ids 1 through 9999 of one day sort by
// creation order. Larger ids render wider and no longer sort as strings
// against four-digit ones. Other ids keep their letters and digits as they
// are; every other byte, and a leading zero, is written as _XX in hex.
// Distinct item ids always give distinct case ids.
func (d Deriver) DeriveCaseID(date time.Time, remoteItemID string) string {
	prefix := d.CasePrefix
	if prefix == "" {
		prefix = DefaultCasePrefix
	}
	return fmt.Sprintf("%s-%s-%s", prefix, date.Format("20060102"), sequence(remoteItemID))
}

// DocumentName returns the deterministic filename of an intake document.
// A retry of the same submission writes to the same name.
func (d Deriver) DocumentName(date time.Time, submissionID string) string {
	prefix := d.CasePrefix
	if prefix == "" {
		prefix = DefaultCasePrefix
	}
	return fmt.Sprintf("%s-%s-%s.yaml", prefix, date.Format("20060102"), cleanSegment(submissionID))
}

// FiscalYearLabel uses the default July cutover.
func FiscalYearLabel(date time.Time) string {
	return Default().FiscalYearLabel(date)
}

// DeriveFolderPath uses the default deriver.
func DeriveFolderPath(root, category string, date time.Time, itemID string) []string {
	return Default().DeriveFolderPath(root, category, date, itemID)
}

// DeriveCaseID uses the default PRR prefix.
func DeriveCaseID(date time.Time, remoteItemID string) string {
	return Default().DeriveCaseID(date, remoteItemID)
}

func sequence(id string) string {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil && strconv.FormatUint(n, 10) == id {
		return fmt.Sprintf("%0*d", caseSequenceWidth, n)
	}
	if id == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		literal := c < utf8.RuneSelf && (unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)))
		if literal && !(i == 0 && c == '0') {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "_%02X", c)
	}
	return b.String()
}

// cleanSegment keeps a path segment from introducing separators or
// characters the document store rejects.
func cleanSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '#', '%':
			return '-'
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.Trim(s, ". ")
}
