package configs

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/nm-morais/packetmux/pkg/message"
	log "github.com/sirupsen/logrus"
)

type BadFramePolicy string

const (
	// DropBadFrames logs the offending frame and keeps reading.
	DropBadFrames BadFramePolicy = "drop"
	// DisconnectOnBadFrame closes the connection the frame arrived on.
	DisconnectOnBadFrame BadFramePolicy = "disconnect"
)

type Config struct {
	Side             message.Side
	Name             string
	ListenAddr       string
	ContactAddr      string
	ProtocolVersion  string
	AcceptVersions   string
	MaxConnections   int
	WorkerPoolSize   int
	HandshakeTimeout time.Duration
	DialTimeout      time.Duration
	MaxFrameSize     int
	BadFramePolicy   BadFramePolicy
	LogLevel         string
}

func DefaultConfig() Config {
	return Config{
		Side:             message.SideNone,
		Name:             "packetmux",
		ListenAddr:       "127.0.0.1:25565",
		ProtocolVersion:  "1.0.0",
		AcceptVersions:   "^1.0.0",
		MaxConnections:   1024,
		HandshakeTimeout: 5 * time.Second,
		DialTimeout:      3 * time.Second,
		MaxFrameSize:     1 << 20,
		BadFramePolicy:   DropBadFrames,
		LogLevel:         "info",
	}
}

// PoolSize is the number of connection workers: one per connection plus the
// acceptor unless set explicitly.
func (c Config) PoolSize() int {
	if c.WorkerPoolSize > 0 {
		return c.WorkerPoolSize
	}
	return c.MaxConnections + 1
}

func (c Config) Validate() error {
	switch c.Side {
	case message.SideInitiator:
		if c.ContactAddr == "" {
			return fmt.Errorf("config: initiator needs contact_addr")
		}
	case message.SideResponder:
		if c.ListenAddr == "" {
			return fmt.Errorf("config: responder needs listen_addr")
		}
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("config: empty name")
	}
	if _, err := semver.NewVersion(c.ProtocolVersion); err != nil {
		return fmt.Errorf("config: protocol_version %q: %w", c.ProtocolVersion, err)
	}
	if c.AcceptVersions != "" {
		if _, err := semver.NewConstraint(c.AcceptVersions); err != nil {
			return fmt.Errorf("config: accept_versions %q: %w", c.AcceptVersions, err)
		}
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.WorkerPoolSize < 0 {
		return fmt.Errorf("config: worker_pool_size must not be negative, got %d", c.WorkerPoolSize)
	}
	if c.HandshakeTimeout <= 0 || c.DialTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.MaxFrameSize < 1 {
		return fmt.Errorf("config: max_frame_size must hold at least a discriminator, got %d", c.MaxFrameSize)
	}
	switch c.BadFramePolicy {
	case DropBadFrames, DisconnectOnBadFrame:
	default:
		return fmt.Errorf("config: unknown bad_frame_policy %q", c.BadFramePolicy)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

type fileConfig struct {
	Side             string `json:"side" toml:"side"`
	Name             string `json:"name" toml:"name"`
	ListenAddr       string `json:"listen_addr" toml:"listen_addr"`
	ContactAddr      string `json:"contact_addr" toml:"contact_addr"`
	ProtocolVersion  string `json:"protocol_version" toml:"protocol_version"`
	AcceptVersions   string `json:"accept_versions" toml:"accept_versions"`
	MaxConnections   int    `json:"max_connections" toml:"max_connections"`
	WorkerPoolSize   int    `json:"worker_pool_size" toml:"worker_pool_size"`
	HandshakeTimeout string `json:"handshake_timeout" toml:"handshake_timeout"`
	DialTimeout      string `json:"dial_timeout" toml:"dial_timeout"`
	MaxFrameSize     int    `json:"max_frame_size" toml:"max_frame_size"`
	BadFramePolicy   string `json:"bad_frame_policy" toml:"bad_frame_policy"`
	LogLevel         string `json:"log_level" toml:"log_level"`
}

// ReadConfigFromFile overlays the keys present in a JSON or, for a .toml
// extension, TOML file onto DefaultConfig and validates the result.
func ReadConfigFromFile(filePath string) (Config, error) {
	var (
		raw     fileConfig
		defined func(key string) bool
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".toml":
		meta, err := toml.DecodeFile(filePath, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", filePath, err)
		}
		defined = func(key string) bool { return meta.IsDefined(key) }
	default:
		data, err := ioutil.ReadFile(filePath)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", filePath, err)
		}
		keys := map[string]json.RawMessage{}
		if err := json.Unmarshal(data, &keys); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", filePath, err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", filePath, err)
		}
		defined = func(key string) bool {
			_, ok := keys[key]
			return ok
		}
	}

	cfg, err := raw.apply(DefaultConfig(), defined)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", filePath, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (raw fileConfig) apply(cfg Config, defined func(key string) bool) (Config, error) {
	if defined("side") {
		side, err := message.ParseSide(raw.Side)
		if err != nil {
			return Config{}, err
		}
		cfg.Side = side
	}
	if defined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if defined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if defined("contact_addr") {
		cfg.ContactAddr = strings.TrimSpace(raw.ContactAddr)
	}
	if defined("protocol_version") {
		cfg.ProtocolVersion = strings.TrimSpace(raw.ProtocolVersion)
	}
	if defined("accept_versions") {
		cfg.AcceptVersions = strings.TrimSpace(raw.AcceptVersions)
	}
	if defined("max_connections") {
		cfg.MaxConnections = raw.MaxConnections
	}
	if defined("worker_pool_size") {
		cfg.WorkerPoolSize = raw.WorkerPoolSize
	}
	if defined("handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse handshake_timeout: %w", err)
		}
		cfg.HandshakeTimeout = d
	}
	if defined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse dial_timeout: %w", err)
		}
		cfg.DialTimeout = d
	}
	if defined("max_frame_size") {
		cfg.MaxFrameSize = raw.MaxFrameSize
	}
	if defined("bad_frame_policy") {
		cfg.BadFramePolicy = BadFramePolicy(strings.ToLower(strings.TrimSpace(raw.BadFramePolicy)))
	}
	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}
