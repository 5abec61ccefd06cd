package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassFromCode(t *testing.T) {
	tests := []struct {
		code  string
		class Class
	}{
		{ErrCodeStorageRead, ClassTransient},
		{ErrCodeStorageWrite, ClassTransient},
		{ErrCodeIndexUnavailable, ClassTransient},
		{ErrCodeStageTimeout, ClassTransient},
		{ErrCodeDocumentCorrupt, ClassPermanent},
		{ErrCodeNoExtractableText, ClassPermanent},
		{ErrCodeConfigInvalid, ClassPermanent},
		{ErrCodeInternal, ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.class, err.Class)
		})
	}
}

func TestStageError_WrapsAndUnwraps(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(ErrCodeIndexUnavailable, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), ErrCodeIndexUnavailable)
	assert.Equal(t, ErrCodeIndexUnavailable, GetCode(err))
}

func TestStageError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("stage: %w", New(ErrCodeNoExtractableText, "no extractable text", nil))

	assert.ErrorIs(t, err, New(ErrCodeNoExtractableText, "", nil))
	assert.NotErrorIs(t, err, New(ErrCodeDocumentCorrupt, "", nil))
}

func TestClassOf_ForeignErrorsAreTransient(t *testing.T) {
	// Unclassified errors must not be dead-lettered immediately; bounded
	// retry decides their fate.
	assert.Equal(t, ClassTransient, ClassOf(stderrors.New("who knows")))
	assert.True(t, IsTransient(stderrors.New("who knows")))
	assert.False(t, IsPermanent(nil))
}

func TestPermanentOverridesCodeCategory(t *testing.T) {
	err := Permanent(ErrCodeStorageRead, "object vanished forever", nil)
	assert.True(t, IsPermanent(err))
}

func TestQueryError_Taxonomy(t *testing.T) {
	err := NewQueryError(QueryUnavailable, "index down", stderrors.New("dial tcp"))

	assert.ErrorIs(t, err, &QueryError{Kind: QueryUnavailable})
	assert.Equal(t, QueryUnavailable, QueryKindOf(err))
	assert.Equal(t, QueryInternal, QueryKindOf(stderrors.New("other")))
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	cfg := BackoffConfig{Base: 100 * time.Millisecond, Max: 400 * time.Millisecond, Multiplier: 2.0}

	assert.Equal(t, 100*time.Millisecond, cfg.DelayFor(1))
	assert.Equal(t, 200*time.Millisecond, cfg.DelayFor(2))
	assert.Equal(t, 400*time.Millisecond, cfg.DelayFor(3))
	assert.Equal(t, 400*time.Millisecond, cfg.DelayFor(10))
}

func TestBackoff_JitterStaysBounded(t *testing.T) {
	cfg := BackoffConfig{Base: 100 * time.Millisecond, Max: time.Second, Multiplier: 2.0, Jitter: true}

	for i := 0; i < 50; i++ {
		d := cfg.DelayFor(2)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}
}
