package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values.
const (
	DefaultWebPort             = 8192
	DefaultMaxCache            = 100
	DefaultDXCPort             = "7300"
	DefaultDataDir             = "/data"
	DefaultConnectTimeout      = 10 * time.Second
	DefaultLoginDelay          = 400 * time.Millisecond
	DefaultReconnectDelay      = 30 * time.Second
	DefaultReconnectMaxElapsed = 30 * time.Minute
	DefaultDedupWindow         = 5 * time.Minute
	DefaultDedupCapacity       = 4096
	DefaultOutboundBuffer      = 64
	DefaultSpotQueueSize       = 1024
	DefaultRecentRedisSize     = 200
)

// Spot store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreNone     = "none"
)

// FlexiblePort accepts a port written as a JSON/YAML string or number.
type FlexiblePort string

func (p *FlexiblePort) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = FlexiblePort(strings.TrimSpace(s))
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("port must be a string or number: %s", string(b))
	}
	*p = FlexiblePort(strconv.Itoa(n))
	return nil
}

func (p *FlexiblePort) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("port must be a scalar (line %d)", node.Line)
	}
	*p = FlexiblePort(strings.TrimSpace(node.Value))
	return nil
}

// ClusterConfig is one entry of the cluster registry. Active defaults to
// true when omitted.
type ClusterConfig struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Host        string       `json:"host" yaml:"host"`
	Port        FlexiblePort `json:"port" yaml:"port"`
	Description string       `json:"description,omitempty" yaml:"description"`
	Active      *bool        `json:"active,omitempty" yaml:"active"`
}

// IsActive reports whether the entry may be connected to.
func (c ClusterConfig) IsActive() bool {
	return c.Active == nil || *c.Active
}

// Address returns host:port, using DefaultDXCPort when the port is empty.
func (c ClusterConfig) Address() string {
	port := string(c.Port)
	if port == "" {
		port = DefaultDXCPort
	}
	return c.Host + ":" + port
}

// RedisConfig holds configuration for the optional Redis recent-spot list.
type RedisConfig struct {
	Enabled            bool          `env:"REDIS_ENABLED" envDefault:"false"`
	Host               string        `env:"REDIS_HOST"`
	Port               string        `env:"REDIS_PORT" envDefault:"6379"`
	User               string        `env:"REDIS_USER"`
	Password           string        `env:"REDIS_PASSWORD"`
	DB                 int           `env:"REDIS_DB" envDefault:"0"`
	UseTLS             bool          `env:"REDIS_USE_TLS" envDefault:"false"`
	InsecureSkipVerify bool          `env:"REDIS_INSECURE_SKIP_VERIFY" envDefault:"false"`
	SpotExpiry         time.Duration `env:"REDIS_SPOT_EXPIRY" envDefault:"360s"`
	RecentSpots        int           `env:"REDIS_RECENT_SPOTS" envDefault:"200"`
}

// UpstreamConfig controls how sessions talk to cluster nodes. A
// ReconnectMaxDelay above ReconnectDelay switches reconnects to capped
// exponential backoff.
type UpstreamConfig struct {
	ConnectTimeout      time.Duration `env:"DXC_CONNECT_TIMEOUT" envDefault:"10s"`
	LoginDelay          time.Duration `env:"DXC_LOGIN_DELAY" envDefault:"400ms"`
	LoginPrompts        []string      `env:"DXC_LOGIN_PROMPTS" envSeparator:"," envDefault:"login:,Please enter your call:,enter your call,callsign:"`
	PostLoginCommands   []string      `env:"DXC_POST_LOGIN_COMMANDS" envSeparator:";"`
	ReconnectDelay      time.Duration `env:"DXC_RECONNECT_DELAY" envDefault:"30s"`
	ReconnectMaxDelay   time.Duration `env:"DXC_RECONNECT_MAX_DELAY" envDefault:"0s"`
	ReconnectMaxElapsed time.Duration `env:"DXC_RECONNECT_MAX_ELAPSED" envDefault:"30m"`
	Transport           string        `env:"DXC_TRANSPORT" envDefault:"native"`
	Charset             string        `env:"DXC_CHARSET"`
	DedupWindow         time.Duration `env:"DEDUP_WINDOW" envDefault:"5m"`
	DedupCapacity       int           `env:"DEDUP_CAPACITY" envDefault:"4096"`
}

// StoreConfig selects the spot archive.
type StoreConfig struct {
	Driver      string        `env:"SPOT_STORE" envDefault:"sqlite"`
	SQLiteName  string        `env:"SPOT_DB_NAME" envDefault:"spots.db"`
	PostgresDSN string        `env:"POSTGRES_DSN"`
	Retention   time.Duration `env:"SPOT_RETENTION" envDefault:"24h"`
	QueueSize   int           `env:"SPOT_QUEUE_SIZE" envDefault:"1024"`
}

// Config holds all application configuration.
type Config struct {
	WebPort  int    `env:"WEBPORT" envDefault:"8192"`
	BaseURL  string `env:"WEBURL" envDefault:"/"`
	MaxCache int    `env:"MAXCACHE" envDefault:"100"`
	DataDir  string `env:"DATA_DIR" envDefault:"/data"`
	LogLevel string `env:"LOG_LEVEL"`

	TrustedProxies  []string        `env:"TRUSTED_PROXIES" envSeparator:","`
	AllowedOrigins  []string        `env:"WS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	PingInterval    time.Duration   `env:"WS_PING_INTERVAL" envDefault:"30s"`
	OutboundBuffer  int             `env:"SESSION_OUTBOUND_BUFFER" envDefault:"64"`
	RawClustersJSON string          `env:"CLUSTERS"`
	ClustersFile    string          `env:"CLUSTER_REGISTRY_FILE"`
	Clusters        []ClusterConfig `env:"-"`

	Upstream UpstreamConfig
	Store    StoreConfig
	Redis    RedisConfig
}

// LoadConfig loads an optional .env file, then configuration from the environment.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if cfg.RawClustersJSON != "" {
		var fromEnv []ClusterConfig
		if err := json.Unmarshal([]byte(cfg.RawClustersJSON), &fromEnv); err != nil {
			return nil, fmt.Errorf("failed to parse CLUSTERS JSON: %w", err)
		}
		cfg.Clusters = append(cfg.Clusters, fromEnv...)
	}
	if cfg.ClustersFile != "" {
		fromFile, err := LoadClustersFile(cfg.ClustersFile)
		if err != nil {
			return nil, err
		}
		cfg.Clusters = append(cfg.Clusters, fromFile...)
	}
	if len(cfg.Clusters) == 0 {
		cfg.Clusters = DefaultClusters()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Store.Driver == StoreSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
		}
	}

	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreSQLite, StoreNone:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN must be set when SPOT_STORE=postgres")
		}
	default:
		return fmt.Errorf("invalid SPOT_STORE %q (want %s, %s or %s)", c.Store.Driver, StoreSQLite, StorePostgres, StoreNone)
	}

	switch strings.ToLower(c.Upstream.Transport) {
	case "native", "ziutek":
	default:
		return fmt.Errorf("invalid DXC_TRANSPORT %q (want native or ziutek)", c.Upstream.Transport)
	}

	durations := map[string]time.Duration{
		"DXC_CONNECT_TIMEOUT": c.Upstream.ConnectTimeout,
		"DXC_LOGIN_DELAY":     c.Upstream.LoginDelay,
		"DXC_RECONNECT_DELAY": c.Upstream.ReconnectDelay,
		"DEDUP_WINDOW":        c.Upstream.DedupWindow,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Upstream.DedupCapacity <= 0 {
		return fmt.Errorf("DEDUP_CAPACITY must be positive, got %d", c.Upstream.DedupCapacity)
	}
	if c.OutboundBuffer <= 0 {
		c.OutboundBuffer = DefaultOutboundBuffer
	}

	seen := make(map[string]bool, len(c.Clusters))
	for i, cl := range c.Clusters {
		if cl.ID == "" {
			return fmt.Errorf("cluster #%d (%s) has no id", i+1, cl.Name)
		}
		if cl.Host == "" {
			return fmt.Errorf("host must be specified for cluster %s", cl.ID)
		}
		if seen[cl.ID] {
			return fmt.Errorf("duplicate cluster id %s", cl.ID)
		}
		seen[cl.ID] = true
	}
	return nil
}

type clustersFile struct {
	Clusters []ClusterConfig `yaml:"clusters"`
}

// LoadClustersFile reads registry entries from a YAML file with a top-level
// "clusters" list.
func LoadClustersFile(path string) ([]ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster registry %s: %w", path, err)
	}
	var f clustersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse cluster registry %s: %w", path, err)
	}
	return f.Clusters, nil
}

// DefaultClusters is the registry used when none is configured.
func DefaultClusters() []ClusterConfig {
	return []ClusterConfig{
		{ID: "1", Name: "DX Summit", Host: "dxc.dxsummit.fi", Port: "8000", Description: "DX Summit cluster, Finland"},
		{ID: "2", Name: "VE7CC", Host: "ve7cc.net", Port: "23", Description: "VE7CC CC Cluster"},
		{ID: "3", Name: "W3LPL", Host: "w3lpl.net", Port: "7300", Description: "W3LPL AR-Cluster"},
	}
}
