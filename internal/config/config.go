package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgelink/internal/driver"
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/session"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config invalid")

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreNone   = "none"

	DefaultAdminAddr   = ":2334"
	DefaultSQLitePath  = "edgelink.db"
	DefaultNodePort    = 2333
	DefaultResumeAfter = 60
)

type Config struct {
	Client    ClientConfig    `toml:"client" yaml:"client"`
	Nodes     []NodeConfig    `toml:"nodes" yaml:"nodes"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Admin     AdminConfig     `toml:"admin" yaml:"admin"`
	Reconnect ReconnectConfig `toml:"reconnect" yaml:"reconnect"`
}

type ClientConfig struct {
	UserID     string `toml:"user_id" yaml:"user_id"`
	ClientName string `toml:"client_name" yaml:"client_name"`
	UserAgent  string `toml:"user_agent" yaml:"user_agent"`
	Resume     bool   `toml:"resume" yaml:"resume"`
	// ResumeTimeout is in seconds.
	ResumeTimeout int `toml:"resume_timeout" yaml:"resume_timeout"`
}

type NodeConfig struct {
	Name   string `toml:"name" yaml:"name"`
	Host   string `toml:"host" yaml:"host"`
	Port   int    `toml:"port" yaml:"port"`
	Secure bool   `toml:"secure" yaml:"secure"`
	Auth   string `toml:"auth" yaml:"auth"`
	Driver string `toml:"driver" yaml:"driver"`
}

type StoreConfig struct {
	Kind string `toml:"kind" yaml:"kind"`
	Path string `toml:"path" yaml:"path"`
}

type AdminConfig struct {
	Addr        string   `toml:"addr" yaml:"addr"`
	CorsOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	// Token, when set, is required as a bearer token on /nodes routes.
	Token string `toml:"token" yaml:"token"`
}

type ReconnectConfig struct {
	InitialDelay string  `toml:"initial_delay" yaml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier" yaml:"multiplier"`
	MaxDelay     string  `toml:"max_delay" yaml:"max_delay"`
	Jitter       *bool   `toml:"jitter" yaml:"jitter"`
	MaxAttempts  int     `toml:"max_attempts" yaml:"max_attempts"`
}

// Load reads a TOML or YAML file, picked by extension, then applies
// defaults and validates. Unknown keys are rejected in both formats.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".toml", "":
		err = decodeTOML(data, &cfg)
	default:
		return Config{}, fmt.Errorf("config load failed (%s): unsupported extension", path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeTOML(data []byte, out *Config) error {
	meta, err := toml.Decode(string(data), out)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func decodeYAML(data []byte, out *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyDefaults fills every unset field. user_id stays empty when unset so
// a reload does not change identity; the node manager assigns one.
func (c *Config) ApplyDefaults() {
	c.Client.UserID = strings.TrimSpace(c.Client.UserID)
	if strings.TrimSpace(c.Client.ClientName) == "" {
		c.Client.ClientName = driver.DefaultClientName()
	}
	if strings.TrimSpace(c.Client.UserAgent) == "" {
		c.Client.UserAgent = "edgelink/" + driver.Version
	}
	if c.Client.ResumeTimeout == 0 {
		c.Client.ResumeTimeout = DefaultResumeAfter
	}
	for i := range c.Nodes {
		n := &c.Nodes[i]
		n.Name = strings.TrimSpace(n.Name)
		n.Host = strings.TrimSpace(n.Host)
		if n.Port == 0 {
			n.Port = DefaultNodePort
		}
		if n.Driver == "" {
			n.Driver = driver.KindLavalink3
		}
		if n.Name == "" {
			n.Name = fmt.Sprintf("%s:%d", n.Host, n.Port)
		}
	}
	c.Store.Kind = strings.ToLower(strings.TrimSpace(c.Store.Kind))
	if c.Store.Kind == "" {
		c.Store.Kind = StoreMemory
	}
	if c.Store.Kind == StoreSQLite && strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = DefaultSQLitePath
	}
	if strings.TrimSpace(c.Admin.Addr) == "" {
		c.Admin.Addr = DefaultAdminAddr
	}
}

func Validate(cfg Config) error {
	if cfg.Client.ResumeTimeout < 0 {
		return fmt.Errorf("%w: client.resume_timeout must be >= 0", ErrInvalid)
	}
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("%w: at least one [[nodes]] entry is required", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(cfg.Nodes))
	kinds := driver.Kinds()
	for i, n := range cfg.Nodes {
		if err := ValidateNode(n, kinds); err != nil {
			return fmt.Errorf("%w: nodes[%d]: %w", ErrInvalid, i, err)
		}
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("%w: nodes[%d]: duplicate name %q", ErrInvalid, i, n.Name)
		}
		seen[n.Name] = struct{}{}
	}
	switch cfg.Store.Kind {
	case StoreMemory, StoreNone:
	case StoreSQLite:
		if strings.TrimSpace(cfg.Store.Path) == "" {
			return fmt.Errorf("%w: store.path required for sqlite", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: store.kind %q (want memory, sqlite, or none)", ErrInvalid, cfg.Store.Kind)
	}
	if _, err := cfg.SessionConfig(); err != nil {
		return err
	}
	return nil
}

func ValidateNode(n NodeConfig, kinds []string) error {
	if n.Host == "" {
		return fmt.Errorf("host is required")
	}
	if n.Port <= 0 || n.Port > 65535 {
		return fmt.Errorf("port %d out of range", n.Port)
	}
	if n.Driver != "" && !slices.Contains(kinds, n.Driver) {
		return fmt.Errorf("unknown driver %q (known: %s)", n.Driver, strings.Join(kinds, ", "))
	}
	return nil
}

// Endpoint converts a node entry for the driver layer.
func (c Config) Endpoint(n NodeConfig) protocol.Endpoint {
	return protocol.Endpoint{
		Name:      n.Name,
		Host:      n.Host,
		Port:      n.Port,
		Secure:    n.Secure,
		Auth:      n.Auth,
		UserAgent: c.Client.UserAgent,
	}
}

// SessionConfig merges [client] resume and [reconnect] over session defaults.
func (c Config) SessionConfig() (session.Config, error) {
	out := session.DefaultConfig()
	out.Resume = c.Client.Resume
	if c.Client.ResumeTimeout > 0 {
		out.ResumeTimeout = time.Duration(c.Client.ResumeTimeout) * time.Second
	}
	r := c.Reconnect
	if strings.TrimSpace(r.InitialDelay) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(r.InitialDelay))
		if err != nil {
			return session.Config{}, fmt.Errorf("%w: reconnect.initial_delay: %w", ErrInvalid, err)
		}
		out.Backoff.InitialDelay = d
	}
	if strings.TrimSpace(r.MaxDelay) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(r.MaxDelay))
		if err != nil {
			return session.Config{}, fmt.Errorf("%w: reconnect.max_delay: %w", ErrInvalid, err)
		}
		out.Backoff.MaxDelay = d
	}
	if r.Multiplier != 0 {
		if r.Multiplier < 1 {
			return session.Config{}, fmt.Errorf("%w: reconnect.multiplier must be >= 1", ErrInvalid)
		}
		out.Backoff.Multiplier = r.Multiplier
	}
	if r.Jitter != nil {
		out.Backoff.Jitter = *r.Jitter
	}
	if r.MaxAttempts < 0 {
		return session.Config{}, fmt.Errorf("%w: reconnect.max_attempts must be >= 0", ErrInvalid)
	}
	out.MaxAttempts = r.MaxAttempts
	return out, nil
}

// OpenStore builds the configured session store. Kind "none" returns a nil
// store, which disables resume seeding.
func OpenStore(cfg StoreConfig) (session.Store, error) {
	switch cfg.Kind {
	case StoreNone:
		return nil, nil
	case StoreSQLite:
		s, err := session.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoreMemory, "":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: store.kind %q", ErrInvalid, cfg.Kind)
	}
}
