package xcomm

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := &Error{Kind: KindConnectionReset, Op: "recv", Err: cause}

	assert.ErrorIs(t, err, ErrConnectionReset)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, "recv: connection reset: unexpected EOF", err.Error())
	assert.Equal(t, "send: descriptor unavailable", (&Error{Kind: KindDescriptorUnavailable, Op: "send"}).Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindWouldBlock, KindOf(ErrWouldBlock))
	assert.Equal(t, KindInvalidConfiguration, KindOf(invalidConfig("bad %d", 1)))
	assert.Equal(t, KindTimedOut, KindOf(fmt.Errorf("wrapped: %w", &Error{Kind: KindTimedOut})))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError("op", nil))

	inner := &Error{Kind: KindTimedOut, Op: "connect"}
	assert.Same(t, inner, wrapError("dial", inner).(*Error))

	err := wrapError("read", errors.New("boom"))
	var xe *Error
	assert.ErrorAs(t, err, &xe)
	assert.Equal(t, "read", xe.Op)
	assert.Equal(t, KindUnknown, xe.Kind)
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "reactor closed", KindReactorClosed.String())
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.True(t, isWouldBlock(ErrWouldBlock))
	assert.False(t, isWouldBlock(nil))
}
