package xcomm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpString(t *testing.T) {
	assert.Equal(t, "none", OpNone.String())
	assert.Equal(t, "read", OpRead.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "read|write", OpReadWrite.String())
	assert.Equal(t, "invalid", Op(8).String())
	assert.False(t, validOp(Op(4)))
	assert.True(t, validOp(OpReadWrite))
}

func TestTimeoutMillisRoundsUp(t *testing.T) {
	assert.Equal(t, -1, timeoutMillis(-time.Second))
	assert.Equal(t, 0, timeoutMillis(0))
	assert.Equal(t, 1, timeoutMillis(time.Microsecond))
	assert.Equal(t, 5, timeoutMillis(5*time.Millisecond))
	assert.Equal(t, 6, timeoutMillis(5*time.Millisecond+1))
}
