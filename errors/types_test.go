package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverableErrorMessage(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewStorageWriteError(cause, "aggregate", "write hour buckets").
		With("date", "2024-03-01").
		With("category", 2)

	assert.Equal(t, "storage_write: write hour buckets: disk full [category=2 date=2024-03-01 stage=aggregate]", err.Error())
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, err.CanRetry)
	assert.Equal(t, SeverityHigh, err.Severity)
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("tick: %w", NewSourceReadError(nil, "query events"))
	assert.True(t, IsType(wrapped, ErrorTypeSourceRead))
	assert.False(t, IsType(wrapped, ErrorTypeStorageWrite))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrorTypeSourceRead))
}

func TestSafeRunRecoversPanic(t *testing.T) {
	err := SafeRun("aggregating", func() error {
		panic("boom")
	})
	require.Error(t, err)

	var pe *PanicError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, "aggregating", pe.Stage)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.True(t, IsType(err, ErrorTypePanic))

	assert.NoError(t, SafeRun("ok", func() error { return nil }))
}

func TestErrorCollector(t *testing.T) {
	ec := NewErrorCollector()
	ec.Collect(nil)
	assert.NoError(t, ec.Err())

	ec.Collect(fmt.Errorf("a"))
	ec.Collect(fmt.Errorf("b"))
	assert.Equal(t, 2, ec.Len())
	assert.ErrorContains(t, ec.Err(), "a")

	ec.Clear()
	assert.Empty(t, ec.GetErrors())
}
