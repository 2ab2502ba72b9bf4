package xcomm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

type Global struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

type Config struct {
	Global   Global          `yaml:"global" toml:"global"`
	Loop     EventLoopConfig `yaml:"loop" toml:"loop"`
	Resolver ResolverConfig  `yaml:"resolver" toml:"resolver"`
	Serials  []SerialConfig  `yaml:"serials" toml:"serials"`
	Sockets  []SocketConfig  `yaml:"sockets" toml:"sockets"`
	Bridges  []BridgeConfig  `yaml:"bridges" toml:"bridges"`
}

// LoadConfig reads a .toml, .yaml or .yml file and validates it.
func LoadConfig(filePath string) (*Config, error) {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	switch filepath.Ext(filePath) {
	case ".toml":
		err = toml.Unmarshal(file, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, config)
	default:
		return nil, invalidConfig("unknown config format %q", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, filePath, err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Loop.WaitTimeoutMs < 0 {
		return invalidConfig("loop: negative wait timeout")
	}
	serials := make(map[string]bool, len(c.Serials))
	for i, serial := range c.Serials {
		if err := serial.Validate(); err != nil {
			return err
		}
		name := serial.Name
		if name == "" {
			return invalidConfig("serials[%d]: name is empty", i)
		}
		if serials[name] {
			return invalidConfig("serial %q: duplicate name", name)
		}
		serials[name] = true
	}
	sockets := make(map[string]bool, len(c.Sockets))
	for i, socket := range c.Sockets {
		if err := socket.Validate(); err != nil {
			return err
		}
		name := socket.Name
		if name == "" {
			return invalidConfig("sockets[%d]: name is empty", i)
		}
		if sockets[name] {
			return invalidConfig("socket %q: duplicate name", name)
		}
		sockets[name] = true
	}
	for _, bridge := range c.Bridges {
		if !serials[bridge.Serial] {
			return invalidConfig("bridge %q: unknown serial %q", bridge.Name, bridge.Serial)
		}
		if !sockets[bridge.Socket] {
			return invalidConfig("bridge %q: unknown socket %q", bridge.Name, bridge.Socket)
		}
		switch bridge.Mode {
		case "", "dial", "listen":
		default:
			return invalidConfig("bridge %q: unknown mode %q", bridge.Name, bridge.Mode)
		}
	}
	return nil
}

func (c *Config) Serial(name string) (SerialConfig, bool) {
	for _, serial := range c.Serials {
		if serial.Name == name {
			return serial, true
		}
	}
	return SerialConfig{}, false
}

func (c *Config) Socket(name string) (SocketConfig, bool) {
	for _, socket := range c.Sockets {
		if socket.Name == name {
			return socket, true
		}
	}
	return SocketConfig{}, false
}
