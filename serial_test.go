package xcomm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialConfigDefaults(t *testing.T) {
	config := SerialConfig{Device: "/dev/ttyS0"}.withDefaults()
	assert.Equal(t, Baud9600, config.BaudRate)
	assert.Equal(t, ParityNone, config.Parity)
	assert.Equal(t, DataBits8, config.DataBits)
	assert.Equal(t, StopBits1, config.StopBits)
	assert.Equal(t, defaultBufferSize, config.BufferSize)
	assert.NoError(t, SerialConfig{Device: "/dev/ttyS0"}.Validate())
}

func TestSerialConfigValidate(t *testing.T) {
	for name, config := range map[string]SerialConfig{
		"empty device": {},
		"baud rate":    {Device: "x", BaudRate: 4800},
		"parity":       {Device: "x", Parity: "mark"},
		"data bits":    {Device: "x", DataBits: 5},
		"stop bits":    {Device: "x", StopBits: 3},
		"timeout":      {Device: "x", TimeoutMs: -1},
		"buffer size":  {Device: "x", BufferSize: -1},
	} {
		assert.ErrorIs(t, config.Validate(), ErrInvalidConfiguration, name)
	}
}

func TestDialSerialRejectsInvalidConfig(t *testing.T) {
	_, err := DialSerial(SerialConfig{Device: "x", BaudRate: 1200})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "serial", KindSerial.String())
	assert.Equal(t, "socket", KindSocket.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
