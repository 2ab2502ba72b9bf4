package xcomm

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
)

const defaultSocketBuffer = 8192

// SocketConfig describes a socket endpoint, dialed or listened on.
type SocketConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Network string `yaml:"net" toml:"net"`
	Address string `yaml:"address" toml:"address"`
	// TimeoutMs bounds the connect. Zero waits for the kernel's own timeout.
	TimeoutMs   int             `yaml:"timeout_ms" toml:"timeout_ms"`
	NoDelay     bool            `yaml:"no_delay" toml:"no_delay"`
	KeepAlive   bool            `yaml:"keep_alive" toml:"keep_alive"`
	ReadBuffer  int             `yaml:"read_buffer" toml:"read_buffer"`
	WriteBuffer int             `yaml:"write_buffer" toml:"write_buffer"`
	BufferSize  int             `yaml:"buffer_size" toml:"buffer_size"`
	Logger      *zerolog.Logger `yaml:"-" toml:"-"`
	Resolver    *Resolver       `yaml:"-" toml:"-"`
}

func (c SocketConfig) withDefaults() SocketConfig {
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.ReadBuffer == 0 {
		c.ReadBuffer = defaultSocketBuffer
	}
	if c.WriteBuffer == 0 {
		c.WriteBuffer = defaultSocketBuffer
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Resolver == nil {
		c.Resolver = sharedResolver()
	}
	return c
}

func (c SocketConfig) Validate() error {
	switch c.Network {
	case "", "tcp", "tcp4", "tcp6", "udp", "udp4", "udp6":
	default:
		return invalidConfig("socket %s: unsupported network %q", c.Address, c.Network)
	}
	if c.Address == "" {
		return invalidConfig("socket address is empty")
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return invalidConfig("socket address %q: %v", c.Address, err)
	}
	if c.TimeoutMs < 0 || c.ReadBuffer < 0 || c.WriteBuffer < 0 || c.BufferSize < 0 {
		return invalidConfig("socket %s: negative timeout or buffer size", c.Address)
	}
	return nil
}

func (c SocketConfig) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c SocketConfig) isStream() bool {
	return c.Network == "tcp" || c.Network == "tcp4" || c.Network == "tcp6"
}

// Socket is a dialed or accepted socket.
type Socket struct {
	*stream
	local  net.Addr
	remote net.Addr
}

func (s *Socket) Kind() Kind {
	return KindSocket
}

func (s *Socket) LocalAddr() net.Addr {
	return s.local
}

func (s *Socket) RemoteAddr() net.Addr {
	return s.remote
}

// Dial implements Dialer.
func (c SocketConfig) Dial() (Conn, error) {
	socket, err := DialSocket(c)
	if err != nil {
		return nil, err
	}
	return socket, nil
}

// DialSocket resolves the address, connects within the configured timeout
// and returns a non-blocking socket.
func DialSocket(config SocketConfig) (*Socket, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	logger := loggerOrGlobal(config.Logger)
	ctx := context.Background()
	if config.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.timeout())
		defer cancel()
	}
	ips, port, err := config.Resolver.Resolve(ctx, config.Network, config.Address)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, ip := range dialOrder(config.Name, ips) {
		socket, err := dialSocket(config, ip, port, logger)
		if err == nil {
			if logger.Debug().Enabled() {
				logger.Debug().Msgf("[%d] connected %s %s -> %s", socket.fd, config.Network, socket.local, socket.remote)
			}
			return socket, nil
		}
		lastErr = err
	}
	logger.Error().Msgf("can't dial %s %s: %+v", config.Network, config.Address, lastErr)
	return nil, lastErr
}

func useIPv4(config SocketConfig, ip net.IP) bool {
	return ip.To4() != nil && config.Network != "tcp6" && config.Network != "udp6"
}
