package validation_test

import (
	"testing"

	lserrors "github.com/paveg/lakescan/internal/errors"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/paveg/lakescan/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = schema.MustNew(
	schema.Field{Name: "id", Type: schema.Int64},
	schema.Field{Name: "name", Type: schema.String, Nullable: true},
	schema.Field{Name: "flag", Type: schema.Boolean, Nullable: true},
	schema.Field{Name: "score", Type: schema.Float64, Nullable: true},
)

func TestColumnValidator(t *testing.T) {
	t.Run("Valid columns", func(t *testing.T) {
		err := validation.NewColumnValidator(testSchema, "Select", "id", "name").Validate()
		require.NoError(t, err)
	})

	t.Run("Invalid column", func(t *testing.T) {
		err := validation.NewColumnValidator(testSchema, "Select", "nmae").Validate()
		require.Error(t, err)

		var lsErr *lserrors.Error
		require.ErrorAs(t, err, &lsErr)
		assert.Equal(t, "Select", lsErr.Op)
		assert.Equal(t, "nmae", lsErr.Column)
		assert.Equal(t, "did you mean 'name'?", lsErr.Hint)
		assert.ErrorIs(t, err, lserrors.ErrInvalidQuery)
	})

	t.Run("Mixed valid and invalid columns", func(t *testing.T) {
		err := validation.NewColumnValidator(testSchema, "GroupBy", "id", "missing", "name").Validate()
		var lsErr *lserrors.Error
		require.ErrorAs(t, err, &lsErr)
		assert.Equal(t, "missing", lsErr.Column)
	})
}

func TestTypeValidators(t *testing.T) {
	tests := []struct {
		name    string
		run     func() error
		wantErr string
	}{
		{"numeric ok", func() error { return validation.ValidateNumeric(testSchema, "Sum", "id", "score") }, ""},
		{"numeric rejects string", func() error { return validation.ValidateNumeric(testSchema, "Sum", "name") }, "requires a numeric column, got string"},
		{"ordered accepts string", func() error { return validation.ValidateOrdered(testSchema, "Min", "name") }, ""},
		{"ordered rejects bool", func() error { return validation.ValidateOrdered(testSchema, "Max", "flag") }, "requires an ordered column, got bool"},
		{"missing column ignored", func() error { return validation.ValidateNumeric(testSchema, "Sum", "nope") }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.ErrorIs(t, err, lserrors.ErrInvalidQuery)
		})
	}
}

func TestUniqueAndNotEmpty(t *testing.T) {
	assert.NoError(t, validation.ValidateUnique("Agg", "output column", "a", "b"))

	err := validation.ValidateUnique("Agg", "output column", "a", "b", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate output column")

	err = validation.ValidateColumns(testSchema, "Select", "id", " ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column 1 is empty")
}

func TestCompoundValidator(t *testing.T) {
	t.Run("All valid", func(t *testing.T) {
		v := validation.NewCompoundValidator(
			validation.NewColumnValidator(testSchema, "Query", "id"),
			validation.NewUniqueValidator("Query", "column", "id", "name"),
		)
		assert.NoError(t, v.Validate())
	})

	t.Run("First failure wins", func(t *testing.T) {
		v := validation.NewCompoundValidator(
			validation.NewColumnValidator(testSchema, "Query", "id"),
			validation.NewColumnValidator(testSchema, "Query", "first"),
			validation.NewUniqueValidator("Query", "column", "x", "x"),
		)
		err := v.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "first")
	})
}
