package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassString(t *testing.T) {
	assert.Equal(t, "not_found", ClassNotFound.String())
	assert.Equal(t, "invalid_state", ClassInvalidState.String())
	assert.Equal(t, "processing", ClassProcessing.String())
	assert.Equal(t, "delivery", ClassDelivery.String())
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "unknown", Class(99).String())
}

func TestWrap(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Manager", "StartPipeline", "launch loops")

	require.Error(t, err)
	assert.Equal(t, "Manager.StartPipeline: launch loops failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))

	assert.NoError(t, Wrap(nil, "Manager", "StartPipeline", "launch loops"))
}

func TestWrapNotFound(t *testing.T) {
	err := WrapNotFound(ErrPipelineNotFound, "Manager", "StopPipeline", "lookup")

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsInvalidState(err))
	assert.True(t, stderrors.Is(err, ErrPipelineNotFound))

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ClassNotFound, ce.Class)
	assert.Equal(t, "Manager", ce.Component)
}

func TestWrapInvalidState(t *testing.T) {
	err := WrapInvalidState(ErrInvalidTransition, "Manager", "ResumePipeline", "check state")

	assert.True(t, IsInvalidState(err))
	assert.False(t, IsNotFound(err))
}

func TestClassifySentinels(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{ErrSourceNotFound, ClassNotFound},
		{ErrSubscriptionNotFound, ClassNotFound},
		{ErrAlreadyStopped, ClassInvalidState},
		{ErrNotRunning, ClassInvalidState},
		{ErrMaxRetriesExceeded, ClassProcessing},
		{ErrRecordRejected, ClassDelivery},
		{stderrors.New("something else"), ClassTransient},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "error: %v", tc.err)
	}
}

func TestClassifyWrappedSentinel(t *testing.T) {
	// fmt-wrapped sentinels should still classify through errors.Is
	err := fmt.Errorf("outer: %w", ErrSinkNotFound)
	assert.Equal(t, ClassNotFound, Classify(err))
	assert.True(t, IsNotFound(err))
}

func TestPredicatesNilSafe(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsInvalidState(nil))
	assert.False(t, IsProcessing(nil))
	assert.False(t, IsDelivery(nil))
}
