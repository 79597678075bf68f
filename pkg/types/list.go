package types

import (
	"fmt"
	"slices"
)

// ColumnKind is the value type of a list column.
type ColumnKind string

// Column kinds understood by the remote list store.
const (
	ColumnText          ColumnKind = "text"
	ColumnMultilineText ColumnKind = "multilineText"
	ColumnDateTime      ColumnKind = "dateTime"
	ColumnChoice        ColumnKind = "choice"
	ColumnBoolean       ColumnKind = "boolean"
)

var validColumnKinds = map[ColumnKind]bool{
	ColumnText:          true,
	ColumnMultilineText: true,
	ColumnDateTime:      true,
	ColumnChoice:        true,
	ColumnBoolean:       true,
}

// ColumnSpec declares one column of a list. Column specs are never mutated
// after definition.
type ColumnSpec struct {
	Name     string     `json:"name" yaml:"name" mapstructure:"name"`
	Kind     ColumnKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	Required bool       `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	Choices  []string   `json:"choices,omitempty" yaml:"choices,omitempty" mapstructure:"choices"`
	Default  any        `json:"default,omitempty" yaml:"default,omitempty" mapstructure:"default"`
}

// Validate checks the column definition. It returns an error wrapping
// ErrInvalidColumn.
func (c ColumnSpec) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidColumn)
	}
	if !validColumnKinds[c.Kind] {
		return fmt.Errorf("%w: column %q has unknown kind %q", ErrInvalidColumn, c.Name, c.Kind)
	}
	if c.Kind == ColumnChoice && len(c.Choices) == 0 {
		return fmt.Errorf("%w: choice column %q has no choices", ErrInvalidColumn, c.Name)
	}
	if c.Kind == ColumnChoice && c.Default != nil {
		s, ok := c.Default.(string)
		if !ok || !slices.Contains(c.Choices, s) {
			return fmt.Errorf("%w: default of %q is not one of its choices", ErrInvalidColumn, c.Name)
		}
	}
	return nil
}

// ListDescriptor names a list and the columns it must carry. RemoteID is
// empty until the provisioner resolves or creates the list; once set it is
// stable for the session.
type ListDescriptor struct {
	DisplayName string       `json:"display_name" yaml:"display_name" mapstructure:"display_name"`
	RemoteID    string       `json:"remote_id,omitempty" yaml:"remote_id,omitempty" mapstructure:"remote_id"`
	Columns     []ColumnSpec `json:"columns,omitempty" yaml:"columns,omitempty" mapstructure:"columns"`
}

// Resolved reports whether the descriptor carries a remote id.
func (d ListDescriptor) Resolved() bool { return d.RemoteID != "" }

// Validate checks the display name and every column.
func (d ListDescriptor) Validate() error {
	if d.DisplayName == "" {
		return fmt.Errorf("%w: list display name is empty", ErrValidation)
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidColumn, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// WithRemoteID returns a copy of d bound to id. Columns are shared, since
// they are immutable.
func (d ListDescriptor) WithRemoteID(id string) ListDescriptor {
	d.RemoteID = id
	return d
}

// RemoteList is a list as reported by the remote store.
type RemoteList struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	WebURL      string   `json:"web_url,omitempty"`
	Columns     []string `json:"columns,omitempty"`
}

// HasColumn reports whether the remote list already carries a column.
func (l RemoteList) HasColumn(name string) bool {
	return slices.Contains(l.Columns, name)
}
