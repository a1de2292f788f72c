package sheets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToStrings(t *testing.T) {
	values := [][]interface{}{
		{"id", "name", "price", "inStock"},
		{float64(1), "Jamdani Saree", 2450.5, true},
		{float64(2), nil},
		{},
	}

	rows := toStrings(values)

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"1", "Jamdani Saree", "2450.5", "true"}, rows[1])
	assert.Equal(t, []string{"2", ""}, rows[2])
	assert.Empty(t, rows[3])
}

func TestNewSourceRequiresSheetID(t *testing.T) {
	_, err := NewSource(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoSheet)
}
