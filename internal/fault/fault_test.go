package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := New(KindContention, "store.exec", errors.New("database is locked"))
	wrapped := fmt.Errorf("insert point: %w", base)

	assert.Equal(t, KindContention, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindContention))
	assert.False(t, Is(wrapped, KindStoreFatal))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	err := New(KindValidation, "api.save", errors.New("missing employee"))
	assert.Equal(t, "VALIDATION: api.save: missing employee", err.Error())

	noOp := New(KindOffline, "", ErrOffline)
	assert.Equal(t, "OFFLINE: no connectivity", noOp.Error())
	assert.ErrorIs(t, noOp, ErrOffline)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(KindTransient, "x", errors.New("timeout"))))
	assert.True(t, Retryable(New(KindContention, "x", errors.New("busy"))))
	assert.False(t, Retryable(New(KindValidation, "x", errors.New("bad"))))
	assert.False(t, Retryable(New(KindStoreFatal, "x", errors.New("corrupt"))))
	assert.False(t, Retryable(errors.New("unclassified")))
}

func TestResult_States(t *testing.T) {
	ok := Ok(42)
	assert.True(t, ok.IsOk())
	v, err := ok.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	off := Offline[int]()
	assert.False(t, off.IsOk())
	assert.True(t, off.IsOffline())
	assert.True(t, Is(off.Err(), KindOffline))

	failed := Fail[int]("api.save", errors.New("connection reset"))
	assert.False(t, failed.IsOk())
	assert.False(t, failed.IsOffline())
	assert.True(t, Is(failed.Err(), KindTransient), "unclassified errors default to transient")

	auth := Fail[int]("api.save", New(KindAuth, "api.save", errors.New("401")))
	assert.True(t, Is(auth.Err(), KindAuth))
}
