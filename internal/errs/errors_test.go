package errs_test

import (
	stderrors "errors"
	"testing"

	"github.com/kamusis/embr/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := errs.New(errs.CodeObjectNotFound, "Embedding not found", errs.FieldHash("abcd"))

	require.Error(t, err)
	assert.Equal(t, errs.CodeObjectNotFound, errs.CodeOf(err))
	assert.Equal(t, "abcd", errs.FieldsOf(err)["hash"])
	assert.Contains(t, err.Error(), "Embedding not found")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := errs.Errorf(errs.CodeObjectWriteFailure, "writing object: %w", inner)

	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.True(t, errs.IsIO(err))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, errs.Wrap(nil, errs.CodeRepoIOFailure, "noop"))
	assert.NoError(t, errs.Wrapf(nil, errs.CodeRepoIOFailure, "noop %d", 1))
}

func TestWrapKeepsInnermostCode(t *testing.T) {
	inner := errs.New(errs.CodeObjectHashAmbiguous, "ambiguous hash prefix")
	err := errs.Wrap(inner, errs.CodeRepoIOFailure, "resolving diff arguments")

	assert.Equal(t, errs.CodeObjectHashAmbiguous, errs.CodeOf(err))
	assert.True(t, errs.IsAmbiguous(err))
	assert.Contains(t, err.Error(), "ambiguous hash")
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		code  errs.Code
		check func(error) bool
	}{
		{errs.CodeObjectNotFound, errs.IsNotFound},
		{errs.CodeLedgerNotTracked, errs.IsNotFound},
		{errs.CodeLedgerNotTracked, errs.IsNotTracked},
		{errs.CodeObjectHashAmbiguous, errs.IsAmbiguous},
		{errs.CodeCompareDimMismatch, errs.IsDimensionMismatch},
		{errs.CodeModelDimMismatch, errs.IsDimensionMismatch},
		{errs.CodeCompareInvalidValues, errs.IsInvalidValues},
		{errs.CodeObjectCorrupt, errs.IsInvalidValues},
		{errs.CodeObjectHashTooShort, errs.IsValidation},
		{errs.CodeModelInvalidDimensions, errs.IsValidation},
		{errs.CodeRepoNotFound, errs.IsRepositoryState},
		{errs.CodeRepoPathOutside, errs.IsRepositoryState},
		{errs.CodeSetExists, errs.IsConflict},
		{errs.CodeLedgerIOFailure, errs.IsIO},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.True(t, tt.check(errs.New(tt.code, "x")))
		})
	}
}

func TestPlainErrorHasNoCode(t *testing.T) {
	err := stderrors.New("plain")
	assert.Equal(t, errs.Code(""), errs.CodeOf(err))
	assert.False(t, errs.IsNotFound(err))
	assert.Nil(t, errs.FieldsOf(err))
}
