package xcomm

import (
	"github.com/rs/zerolog"
)

type BaudRate int

const (
	Baud9600   BaudRate = 9600
	Baud19200  BaudRate = 19200
	Baud38400  BaudRate = 38400
	Baud57600  BaudRate = 57600
	Baud115200 BaudRate = 115200
)

type Parity string

const (
	ParityNone Parity = "none"
	ParityOdd  Parity = "odd"
	ParityEven Parity = "even"
)

type DataBits int

const (
	DataBits7 DataBits = 7
	DataBits8 DataBits = 8
)

type StopBits int

const (
	StopBits1 StopBits = 1
	StopBits2 StopBits = 2
)

// SerialConfig describes a serial line. Zero values of the line settings
// mean 9600 8N1.
type SerialConfig struct {
	Name     string   `yaml:"name" toml:"name"`
	Device   string   `yaml:"device" toml:"device"`
	BaudRate BaudRate `yaml:"baud_rate" toml:"baud_rate"`
	Parity   Parity   `yaml:"parity" toml:"parity"`
	DataBits DataBits `yaml:"data_bits" toml:"data_bits"`
	StopBits StopBits `yaml:"stop_bits" toml:"stop_bits"`
	// TimeoutMs is how long Close waits, on Windows, for a write the comm
	// driver still holds before cancelling it. Reads and writes never wait,
	// and unix descriptors ignore it.
	TimeoutMs  int              `yaml:"timeout_ms" toml:"timeout_ms"`
	BufferSize int              `yaml:"buffer_size" toml:"buffer_size"`
	Logger     *zerolog.Logger `yaml:"-" toml:"-"`
}

func (c SerialConfig) withDefaults() SerialConfig {
	if c.BaudRate == 0 {
		c.BaudRate = Baud9600
	}
	if c.Parity == "" {
		c.Parity = ParityNone
	}
	if c.DataBits == 0 {
		c.DataBits = DataBits8
	}
	if c.StopBits == 0 {
		c.StopBits = StopBits1
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

// Validate reports the first setting outside the supported enumerations.
func (c SerialConfig) Validate() error {
	c = c.withDefaults()
	if c.Device == "" {
		return invalidConfig("serial device is empty")
	}
	switch c.BaudRate {
	case Baud9600, Baud19200, Baud38400, Baud57600, Baud115200:
	default:
		return invalidConfig("serial %s: unsupported baud rate %d", c.Device, c.BaudRate)
	}
	switch c.Parity {
	case ParityNone, ParityOdd, ParityEven:
	default:
		return invalidConfig("serial %s: unsupported parity %q", c.Device, c.Parity)
	}
	if c.DataBits != DataBits7 && c.DataBits != DataBits8 {
		return invalidConfig("serial %s: unsupported data bits %d", c.Device, c.DataBits)
	}
	if c.StopBits != StopBits1 && c.StopBits != StopBits2 {
		return invalidConfig("serial %s: unsupported stop bits %d", c.Device, c.StopBits)
	}
	if c.TimeoutMs < 0 {
		return invalidConfig("serial %s: negative timeout %d", c.Device, c.TimeoutMs)
	}
	if c.BufferSize < 0 {
		return invalidConfig("serial %s: negative buffer size %d", c.Device, c.BufferSize)
	}
	return nil
}

// Serial is a dialed serial line.
type Serial struct {
	*stream
	device string
}

func (s *Serial) Kind() Kind {
	return KindSerial
}

// Device returns the path or name the line was opened with.
func (s *Serial) Device() string {
	return s.device
}

// Dial implements Dialer.
func (c SerialConfig) Dial() (Conn, error) {
	serial, err := DialSerial(c)
	if err != nil {
		return nil, err
	}
	return serial, nil
}

// DialSerial opens and configures the device. On failure nothing stays
// open.
func DialSerial(config SerialConfig) (*Serial, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	logger := loggerOrGlobal(config.Logger)
	fd, dev, err := openSerial(config)
	if err != nil {
		logger.Error().Msgf("can't open serial %s: %+v", config.Device, err)
		return nil, wrapError("dial "+config.Device, err)
	}
	s, err := newStream(fd, dev, config.BufferSize, logger)
	if err != nil {
		_ = dev.close()
		return nil, err
	}
	if logger.Debug().Enabled() {
		logger.Debug().Msgf("[%d] opened serial %s %d %d%s%d", fd, config.Device, config.BaudRate, config.DataBits, string(config.Parity[0]), config.StopBits)
	}
	return &Serial{stream: s, device: config.Device}, nil
}
