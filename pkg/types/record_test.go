package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryKeyIsDeterministic(t *testing.T) {
	a := Query{Top: 50, Filter: map[string]string{"Status": "Open", "Dept": "Clerk"}}
	b := Query{Top: 50, Filter: map[string]string{"Dept": "Clerk", "Status": "Open"}}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "top=50&f.Dept=Clerk&f.Status=Open", a.Key())
}

func TestQueryKeyDistinguishesShapes(t *testing.T) {
	assert.NotEqual(t, Query{Top: 10}.Key(), Query{Top: 20}.Key())
	assert.NotEqual(t, Query{}.Key(), Query{OrderBy: "Created"}.Key())
	// Escaping keeps a crafted value from colliding with a second filter.
	x := Query{Filter: map[string]string{"a": "1&f.b=2"}}
	y := Query{Filter: map[string]string{"a": "1", "b": "2"}}
	assert.NotEqual(t, x.Key(), y.Key())
}

func TestListDescriptorValidate(t *testing.T) {
	d := ListDescriptor{
		DisplayName: "Projects",
		Columns: []ColumnSpec{
			{Name: "Title", Kind: ColumnText, Required: true},
			{Name: "Status", Kind: ColumnChoice, Choices: []string{"Open", "Closed"}, Default: "Open"},
		},
	}
	assert.NoError(t, d.Validate())

	d.Columns = append(d.Columns, ColumnSpec{Name: "Title", Kind: ColumnText})
	assert.ErrorIs(t, d.Validate(), ErrInvalidColumn)

	assert.ErrorIs(t, ListDescriptor{}.Validate(), ErrValidation)
	assert.ErrorIs(t, ColumnSpec{Name: "Kind", Kind: "blob"}.Validate(), ErrInvalidColumn)
	assert.ErrorIs(t, ColumnSpec{Name: "S", Kind: ColumnChoice}.Validate(), ErrInvalidColumn)
	assert.ErrorIs(t, ColumnSpec{Name: "S", Kind: ColumnChoice, Choices: []string{"a"}, Default: "b"}.Validate(), ErrInvalidColumn)
}
