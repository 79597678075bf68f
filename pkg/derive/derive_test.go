package derive

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func TestFiscalYearLabel(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want string
	}{
		{"before cutover belongs to previous start year", day(2024, time.March, 1), "FY2023-24"},
		{"last day before cutover", day(2024, time.June, 30), "FY2023-24"},
		{"cutover day starts new year", day(2024, time.July, 1), "FY2024-25"},
		{"december", day(2024, time.December, 31), "FY2024-25"},
		{"century wrap", day(2099, time.August, 1), "FY2099-00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FiscalYearLabel(tt.date))
		})
	}
}

func TestFiscalYearLabelCustomCutover(t *testing.T) {
	oct := Deriver{FiscalYearStart: time.October}
	assert.Equal(t, "FY2023-24", oct.FiscalYearLabel(day(2024, time.September, 30)))
	assert.Equal(t, "FY2024-25", oct.FiscalYearLabel(day(2024, time.October, 1)))

	jan := Deriver{FiscalYearStart: time.January}
	assert.Equal(t, "FY2024", jan.FiscalYearLabel(day(2024, time.March, 1)))
}

func TestDeriveFolderPath(t *testing.T) {
	got := DeriveFolderPath("Public Records", "Clerk", day(2024, time.March, 1), "")
	assert.Equal(t, []string{"Public Records", "Clerk", "FY2023-24"}, got)

	withItem := DeriveFolderPath("Public Records", "Clerk", day(2024, time.March, 1), "42")
	assert.Equal(t, []string{"Public Records", "Clerk", "FY2023-24", "42"}, withItem)

	assert.Equal(t, got, DeriveFolderPath("Public Records", "Clerk", day(2024, time.March, 1), ""),
		"recomputation must be idempotent")
}

func TestDeriveFolderPathCleansSegments(t *testing.T) {
	got := DeriveFolderPath(" Records ", "Police/Fire", day(2024, time.August, 2), "")
	assert.Equal(t, []string{"Records", "Police-Fire", "FY2024-25"}, got)
}

func TestDeriveCaseID(t *testing.T) {
	d := day(2024, time.March, 1)
	assert.Equal(t, "PRR-20240301-0042", DeriveCaseID(d, "42"))
	assert.Equal(t, DeriveCaseID(d, "42"), DeriveCaseID(d, "42"))
	assert.Equal(t, "PRR-20240301-12345", DeriveCaseID(d, "12345"))
	assert.Equal(t, "PRR-20240301-ab_2D12", DeriveCaseID(d, "ab-12"))
	assert.Equal(t, "PRR-20240301-0000", DeriveCaseID(d, "0"))
	assert.Equal(t, "PRR-20240301-_", DeriveCaseID(d, ""))
	assert.Equal(t, "CLK-20240301-0007", Deriver{CasePrefix: "CLK"}.DeriveCaseID(d, "7"))
}

func TestDeriveCaseIDSortsByCreationOrder(t *testing.T) {
	d := day(2024, time.March, 1)
	ids := []string{"120", "7", "1000", "42", "9"}
	var got []string
	for _, id := range ids {
		got = append(got, DeriveCaseID(d, id))
	}
	sort.Strings(got)
	assert.Equal(t, []string{
		"PRR-20240301-0007",
		"PRR-20240301-0009",
		"PRR-20240301-0042",
		"PRR-20240301-0120",
		"PRR-20240301-1000",
	}, got)
	assert.NotEqual(t, DeriveCaseID(d, "7"), DeriveCaseID(d, "8"))
}

func TestDocumentName(t *testing.T) {
	d := day(2024, time.March, 1)
	assert.Equal(t, "PRR-20240301-abc.yaml", Default().DocumentName(d, "abc"))
	assert.Equal(t, Default().DocumentName(d, "abc"), Default().DocumentName(d, "abc"))
}

func TestDeriveCaseIDIsInjective(t *testing.T) {
	d := day(2024, time.March, 1)
	ids := []string{"", "0", "00", "1", "01", "0001", "42", "0042", "a", "A", "a-", "a_", "a_2D", "_", "_5F", "ab-12", "AB12", " 7", "7", "é"}
	seen := make(map[string]string, len(ids))
	for _, id := range ids {
		got := DeriveCaseID(d, id)
		if prev, dup := seen[got]; dup {
			t.Fatalf("ids %q and %q both derive %s", prev, id, got)
		}
		seen[got] = id
		assert.Equal(t, got, DeriveCaseID(d, id), "deterministic for %q", id)
	}
}
