// Package config provides configuration management for memento server and client components.
//
// The package supports configuration through multiple sources with the following precedence:
//  1. Command-line flags (highest priority, server only)
//  2. Environment variables, including those read from an optional .env file
//  3. Default values (lowest priority)
//
// Environment variables are prefixed with "MEMENTO_" and use uppercase names.
// For example, the server port can be set with MEMENTO_PORT=7366.
//
// Example server usage:
//
//	cfg, err := config.LoadServerConfig(os.Args[1:])
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// Example client usage:
//
//	cfg, err := config.LoadClientConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg.Nodes = []string{"cache1:7366", "cache2:7366"}
//	c, err := client.NewWithConfig(cfg)
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/memento-kv/memento/pkg/protocol"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MEMENTO_"

// ErrParsingConfig wraps failures to decode environment variables.
var ErrParsingConfig = errors.New("config: failed to parse environment variables")

var dotenvLoaded sync.Once

// ServerConfig holds all configuration options for a memento server instance.
//
// Configuration sources (in order of precedence):
//  1. Command-line flags: -port, -host, -shards, etc.
//  2. Environment variables: MEMENTO_PORT, MEMENTO_HOST, MEMENTO_SHARDS, etc.
//  3. Default values
type ServerConfig struct {
	Host         string        `env:"HOST" envDefault:"127.0.0.1"`      // Host address to bind to
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`      // debug, info, warn, error
	LogFormat    string        `env:"LOG_FORMAT" envDefault:"text"`     // text or json
	MetricsAddr  string        `env:"METRICS_ADDR"`                     // Prometheus listen address, empty disables
	Port         int           `env:"PORT" envDefault:"7366"`           // TCP port to listen on
	Shards       int           `env:"SHARDS" envDefault:"4"`            // Cache shard count, fixed for the process
	MaxConns     int           `env:"MAX_CONNS" envDefault:"1000"`      // Maximum concurrent connections
	MaxLineBytes int           `env:"MAX_LINE_BYTES" envDefault:"65536"` // Longest accepted request line
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`    // Idle time allowed between requests
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`   // Time allowed to write a response
}

// ClientConfig holds all configuration options for a memento client.
type ClientConfig struct {
	Nodes           []string      `env:"NODES" envDefault:"127.0.0.1:7366" envSeparator:","` // Server addresses
	MaxConnsPerNode int           `env:"MAX_CONNS_PER_NODE" envDefault:"10"`                   // Active connections per node
	MaxIdlePerNode  int           `env:"MAX_IDLE_PER_NODE" envDefault:"4"`                     // Pooled idle connections per node
	MaxLineBytes    int           `env:"MAX_LINE_BYTES" envDefault:"65536"`                    // Longest accepted response line
	RetryAttempts   int           `env:"RETRY_ATTEMPTS" envDefault:"3"`                        // Extra attempts after a transport failure
	VirtualNodes    int           `env:"VIRTUAL_NODES" envDefault:"150"`                       // Ring positions per node
	ConnTimeout     time.Duration `env:"CONN_TIMEOUT" envDefault:"5s"`                         // Dial timeout
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`                        // Response read timeout
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`                       // Request write timeout
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"1m"`                         // How long a pooled connection may idle
}

// LoadServerConfig builds a ServerConfig from defaults, the environment and
// the given command-line arguments (typically os.Args[1:]).
//
// Command-line flags:
//
//	-host, -port, -shards, -max-conns, -max-line-bytes,
//	-read-timeout, -write-timeout, -log-level, -log-format, -metrics-addr
func LoadServerConfig(args []string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("memento-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Server host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	fs.IntVar(&cfg.Shards, "shards", cfg.Shards, "Number of cache shards")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum concurrent connections")
	fs.IntVar(&cfg.MaxLineBytes, "max-line-bytes", cfg.MaxLineBytes, "Longest accepted request line in bytes")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Idle time allowed between requests")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Time allowed to write a response")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (empty disables)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientConfig builds a ClientConfig from defaults and the environment.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseEnv(v any) error {
	dotenvLoaded.Do(func() {
		// a missing .env file is fine
		_ = godotenv.Load()
	})
	if err := env.ParseWithOptions(v, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// Address returns the "host:port" string to listen on.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks if the ServerConfig contains valid values.
//
// Validation rules:
//   - Port must be between 0 and 65535 (0 picks a free port)
//   - Shards and MaxConns must be positive
//   - MaxLineBytes must be at least protocol.MinLineBytes
//   - ReadTimeout and WriteTimeout must be positive
//   - LogLevel must be one of: debug, info, warn, error
//   - LogFormat must be text or json
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.Shards < 1 {
		return fmt.Errorf("shard count must be positive: %d", c.Shards)
	}

	if c.MaxConns < 1 {
		return fmt.Errorf("max connections must be positive: %d", c.MaxConns)
	}

	if c.MaxLineBytes < protocol.MinLineBytes {
		return fmt.Errorf("max line bytes must be at least %d: %d", protocol.MinLineBytes, c.MaxLineBytes)
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive: %s", c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive: %s", c.WriteTimeout)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}

	return nil
}

// Validate checks if the ClientConfig contains valid values.
//
// Validation rules:
//   - At least one node must be specified
//   - All node addresses must be valid "host:port" strings
//   - MaxConnsPerNode and VirtualNodes must be positive
//   - MaxLineBytes must be at least protocol.MinLineBytes
//   - MaxIdlePerNode and RetryAttempts must be non-negative
//   - All timeout values must be positive
func (c *ClientConfig) Validate() error {
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node must be specified")
	}

	for _, node := range c.Nodes {
		if node == "" {
			return fmt.Errorf("empty node address")
		}
		if _, _, err := net.SplitHostPort(node); err != nil {
			return fmt.Errorf("invalid node address format: %s", node)
		}
	}

	if c.MaxConnsPerNode < 1 {
		return fmt.Errorf("max connections per node must be positive: %d", c.MaxConnsPerNode)
	}

	if c.MaxIdlePerNode < 0 {
		return fmt.Errorf("max idle connections per node must be non-negative: %d", c.MaxIdlePerNode)
	}

	if c.MaxLineBytes < protocol.MinLineBytes {
		return fmt.Errorf("max line bytes must be at least %d: %d", protocol.MinLineBytes, c.MaxLineBytes)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must be non-negative: %d", c.RetryAttempts)
	}

	if c.VirtualNodes < 1 {
		return fmt.Errorf("virtual nodes must be positive: %d", c.VirtualNodes)
	}

	for name, d := range map[string]time.Duration{
		"connection": c.ConnTimeout,
		"read":       c.ReadTimeout,
		"write":      c.WriteTimeout,
		"idle":       c.IdleTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s timeout must be positive: %s", name, d)
		}
	}

	return nil
}
