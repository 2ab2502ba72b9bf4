package xcomm

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"
)

const defaultResolveTTL = time.Minute

type ResolverConfig struct {
	TTLSec     int             `yaml:"ttl_sec" toml:"ttl_sec"`
	MaxEntries int64           `yaml:"max_entries" toml:"max_entries"`
	Logger     *zerolog.Logger `yaml:"-" toml:"-"`
}

// Resolver turns "host:port" into socket addresses, caching host lookups.
type Resolver struct {
	cache  *ristretto.Cache
	ttl    time.Duration
	lookup func(ctx context.Context, network, host string) ([]net.IP, error)
	logger *zerolog.Logger
}

func NewResolver(config ResolverConfig) (*Resolver, error) {
	maxEntries := config.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	// every entry costs 1, so MaxCost is an entry count
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, invalidConfig("resolver cache: %v", err)
	}
	ttl := defaultResolveTTL
	if config.TTLSec > 0 {
		ttl = time.Duration(config.TTLSec) * time.Second
	}
	return &Resolver{
		cache:  cache,
		ttl:    ttl,
		lookup: net.DefaultResolver.LookupIP,
		logger: loggerOrGlobal(config.Logger),
	}, nil
}

var (
	defaultResolver     *Resolver
	defaultResolverOnce sync.Once
)

func sharedResolver() *Resolver {
	defaultResolverOnce.Do(func() {
		r, err := NewResolver(ResolverConfig{})
		if err != nil {
			panic(err)
		}
		defaultResolver = r
	})
	return defaultResolver
}

// Resolve returns the addresses for address on network ("tcp", "udp4", ...).
// Literal IPs bypass the cache.
func (r *Resolver) Resolve(ctx context.Context, network, address string) ([]net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, 0, invalidConfig("address %q: %v", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port, err = net.DefaultResolver.LookupPort(ctx, network, portStr)
		if err != nil {
			return nil, 0, invalidConfig("address %q: %v", address, err)
		}
	}
	if port < 0 || port > 65535 {
		return nil, 0, invalidConfig("address %q: port out of range", address)
	}
	if host == "" {
		host = "localhost"
	}
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, port, nil
	}
	family := ipFamily(network)
	key := family + "/" + host
	if cached, ok := r.cache.Get(key); ok {
		return cached.([]net.IP), port, nil
	}
	ips, err := r.lookup(ctx, family, host)
	if err != nil {
		return nil, 0, &Error{Kind: KindDescriptorUnavailable, Op: "resolve " + host, Err: err}
	}
	if len(ips) == 0 {
		return nil, 0, &Error{Kind: KindDescriptorUnavailable, Op: "resolve " + host}
	}
	r.cache.SetWithTTL(key, ips, 1, r.ttl)
	if r.logger.Debug().Enabled() {
		r.logger.Debug().Msgf("resolved %s to %v", host, ips)
	}
	return ips, port, nil
}

func (r *Resolver) Close() {
	r.cache.Close()
}

func ipFamily(network string) string {
	switch network {
	case "tcp4", "udp4":
		return "ip4"
	case "tcp6", "udp6":
		return "ip6"
	}
	return "ip"
}
