// Package config loads the dxlisten YAML configuration.
//
// Load accepts either a single YAML file or a directory. A directory is
// merged file by file in lexical order, so operators can keep clusters,
// archive and publisher settings in separate files. Defaults are applied
// after merging and the result is validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete listener configuration.
type Config struct {
	Callsign   string           `yaml:"callsign"`
	Clusters   []ClusterConfig  `yaml:"clusters"`
	Listener   ListenerConfig   `yaml:"listener"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Filter     FilterConfig     `yaml:"filter"`
	Archive    ArchiveConfig    `yaml:"archive"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	UI         UIConfig         `yaml:"ui"`
	CTY        CTYConfig        `yaml:"cty"`

	// LoadedFrom is the file or directory the config was read from.
	LoadedFrom string `yaml:"-"`
}

// ClusterConfig names one node to listen to.
type ClusterConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Callsign string `yaml:"callsign"` // overrides the top-level callsign
	// Transport overrides listener.transport for this node.
	Transport string `yaml:"transport"`
	Disabled  bool   `yaml:"disabled"`
}

// ListenerConfig tunes every connection.
type ListenerConfig struct {
	PollIntervalMS        int      `yaml:"poll_interval_ms"`
	AuthRetries           int      `yaml:"auth_retries"`
	ConnectTimeoutSeconds int      `yaml:"connect_timeout_seconds"`
	MaxLineLength         int      `yaml:"max_line_length"`
	WriteTimeoutSeconds   int      `yaml:"write_timeout_seconds"`
	Transport             string   `yaml:"transport"`
	Prompts               []string `yaml:"prompts"`
}

// SupervisorConfig controls the manager's poll loop and reconnects.
type SupervisorConfig struct {
	PollIntervalMS     int  `yaml:"poll_interval_ms"`
	Reconnect          bool `yaml:"reconnect"`
	BackoffBaseSeconds int  `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds  int  `yaml:"backoff_max_seconds"`
}

// DedupConfig contains cross-cluster deduplication settings.
type DedupConfig struct {
	Enabled           bool `yaml:"enabled"`
	WindowSeconds     int  `yaml:"window_seconds"`
	PreferStrongerSNR bool `yaml:"prefer_stronger_snr"`
}

// FilterConfig holds the accept lists and the watch list.
type FilterConfig struct {
	File          string   `yaml:"file"`
	Bands         []string `yaml:"bands"`
	Modes         []string `yaml:"modes"`
	Callsigns     []string `yaml:"callsigns"`
	DXContinents  []string `yaml:"dx_continents"`
	SkipSkimmers  bool     `yaml:"skip_skimmers"`
	Watch         []string `yaml:"watch"`
	WatchDistance int      `yaml:"watch_distance"`
}

// ArchiveConfig controls spot persistence.
type ArchiveConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	Backend                 string `yaml:"backend"` // sqlite | pebble
	DBPath                  string `yaml:"db_path"`
	QueueSize               int    `yaml:"queue_size"`
	BatchSize               int    `yaml:"batch_size"`
	BatchIntervalMS         int    `yaml:"batch_interval_ms"`
	CleanupIntervalSeconds  int    `yaml:"cleanup_interval_seconds"`
	RetentionFTSeconds      int    `yaml:"retention_ft_seconds"`
	RetentionDefaultSeconds int    `yaml:"retention_default_seconds"`
	BusyTimeoutMS           int    `yaml:"busy_timeout_ms"`
	Synchronous             string `yaml:"synchronous"` // off | normal | full
	AutoDeleteCorruptDB     bool   `yaml:"auto_delete_corrupt_db"`
}

// MQTTConfig publishes spots to an MQTT broker.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

// RedisConfig publishes spots to Redis pub/sub and an optional capped list.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	ListKey  string `yaml:"list_key"`
	ListMax  int    `yaml:"list_max"`
}

// MetricsConfig exposes Prometheus metrics over HTTP.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"` // daily file sink in addition to the console
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// UIConfig selects the console surface.
type UIConfig struct {
	Mode      string `yaml:"mode"` // headless | tview
	RefreshMS int    `yaml:"refresh_ms"`
	MaxSpots  int    `yaml:"max_spots"`
}

// CTYConfig points at the cty.plist country database.
type CTYConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// Load reads a YAML file or merges every *.yaml/*.yml file in a directory.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if info.IsDir() {
		files, err := yamlFiles(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no YAML files in %s", path)
		}
		for _, file := range files {
			if err := decodeInto(file, &cfg); err != nil {
				return nil, err
			}
		}
	} else if err := decodeInto(path, &cfg); err != nil {
		return nil, err
	}

	cfg.LoadedFrom = path
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// decodeInto unmarshals one file over cfg; keys absent from the file keep
// their current values.
func decodeInto(file string, cfg *Config) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath.Base(file), err)
	}
	return nil
}

// ApplyDefaults fills zero values. It is idempotent.
func (c *Config) ApplyDefaults() {
	c.Callsign = strings.ToUpper(strings.TrimSpace(c.Callsign))
	for i := range c.Clusters {
		cl := &c.Clusters[i]
		if cl.Port == 0 {
			cl.Port = 7300
		}
		if cl.Name == "" {
			cl.Name = fmt.Sprintf("%s:%d", cl.Host, cl.Port)
		}
		cl.Callsign = strings.ToUpper(strings.TrimSpace(cl.Callsign))
	}

	l := &c.Listener
	setDefault(&l.PollIntervalMS, 250)
	setDefault(&l.AuthRetries, 10)
	setDefault(&l.ConnectTimeoutSeconds, 30)
	setDefault(&l.MaxLineLength, 4096)
	setDefault(&l.WriteTimeoutSeconds, 10)
	if l.Transport == "" {
		l.Transport = "native"
	}

	s := &c.Supervisor
	setDefault(&s.PollIntervalMS, 250)
	setDefault(&s.BackoffBaseSeconds, 5)
	setDefault(&s.BackoffMaxSeconds, 300)

	setDefault(&c.Dedup.WindowSeconds, 120)

	a := &c.Archive
	if a.Backend == "" {
		a.Backend = "sqlite"
	}
	if a.DBPath == "" {
		if a.Backend == "pebble" {
			a.DBPath = "data/archive/spots-pebble"
		} else {
			a.DBPath = "data/archive/spots.db"
		}
	}
	setDefault(&a.QueueSize, 10000)
	setDefault(&a.BatchSize, 200)
	setDefault(&a.BatchIntervalMS, 500)
	setDefault(&a.CleanupIntervalSeconds, 3600)
	setDefault(&a.RetentionFTSeconds, 3600)
	setDefault(&a.RetentionDefaultSeconds, 86400)
	setDefault(&a.BusyTimeoutMS, 1000)
	if a.Synchronous == "" {
		a.Synchronous = "off"
	}

	m := &c.MQTT
	setDefault(&m.Port, 1883)
	if m.Topic == "" {
		m.Topic = "dxlisten/spots"
	}
	if m.ClientID == "" {
		m.ClientID = "dxlisten"
	}

	r := &c.Redis
	if r.Addr == "" {
		r.Addr = "127.0.0.1:6379"
	}
	if r.Channel == "" {
		r.Channel = "dxlisten:spots"
	}
	if r.ListKey != "" {
		setDefault(&r.ListMax, 1000)
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9108"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "dxlisten"
	}

	if c.Logging.Dir == "" {
		c.Logging.Dir = "data/logs"
	}
	setDefault(&c.Logging.RetentionDays, 7)

	if c.UI.Mode == "" {
		c.UI.Mode = "headless"
	}
	setDefault(&c.UI.RefreshMS, 500)
	setDefault(&c.UI.MaxSpots, 500)

	if c.CTY.File == "" {
		c.CTY.File = "data/cty/cty.plist"
	}
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// Validate returns the first configuration problem found.
func (c *Config) Validate() error {
	if len(c.EnabledClusters()) == 0 {
		return errors.New("no enabled clusters configured")
	}
	seen := make(map[string]bool)
	for _, cl := range c.Clusters {
		if cl.Disabled {
			continue
		}
		if strings.TrimSpace(cl.Host) == "" {
			return fmt.Errorf("cluster %q: host is required", cl.Name)
		}
		if cl.Port <= 0 || cl.Port > 65535 {
			return fmt.Errorf("cluster %q: port %d out of range", cl.Name, cl.Port)
		}
		if c.CallsignFor(cl) == "" {
			return fmt.Errorf("cluster %q: no callsign (set callsign at top level or per cluster)", cl.Name)
		}
		if seen[cl.Name] {
			return fmt.Errorf("duplicate cluster name %q", cl.Name)
		}
		seen[cl.Name] = true
		if cl.Transport != "" && !validTransport(cl.Transport) {
			return fmt.Errorf("cluster %q: unknown transport %q", cl.Name, cl.Transport)
		}
	}
	if !validTransport(c.Listener.Transport) {
		return fmt.Errorf("listener.transport: unknown transport %q", c.Listener.Transport)
	}
	switch c.Archive.Backend {
	case "sqlite", "pebble":
	default:
		return fmt.Errorf("archive.backend: unknown backend %q", c.Archive.Backend)
	}
	switch strings.ToLower(c.Archive.Synchronous) {
	case "off", "normal", "full":
	default:
		return fmt.Errorf("archive.synchronous: unknown mode %q", c.Archive.Synchronous)
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d out of range", c.MQTT.QoS)
	}
	switch c.UI.Mode {
	case "headless", "tview":
	default:
		return fmt.Errorf("ui.mode: unknown mode %q", c.UI.Mode)
	}
	if c.Supervisor.BackoffMaxSeconds < c.Supervisor.BackoffBaseSeconds {
		return errors.New("supervisor.backoff_max_seconds must be >= backoff_base_seconds")
	}
	return nil
}

func validTransport(t string) bool {
	return t == "native" || t == "telnet"
}

// EnabledClusters returns clusters not marked disabled.
func (c *Config) EnabledClusters() []ClusterConfig {
	out := make([]ClusterConfig, 0, len(c.Clusters))
	for _, cl := range c.Clusters {
		if !cl.Disabled {
			out = append(out, cl)
		}
	}
	return out
}

// CallsignFor returns the callsign used to log in to cl.
func (c *Config) CallsignFor(cl ClusterConfig) string {
	if cl.Callsign != "" {
		return cl.Callsign
	}
	return c.Callsign
}

// PollInterval returns the per-read bound.
func (l ListenerConfig) PollInterval() time.Duration {
	return time.Duration(l.PollIntervalMS) * time.Millisecond
}

// ConnectTimeout returns the dial bound.
func (l ListenerConfig) ConnectTimeout() time.Duration {
	return time.Duration(l.ConnectTimeoutSeconds) * time.Second
}

// WriteTimeout returns the login write bound.
func (l ListenerConfig) WriteTimeout() time.Duration {
	return time.Duration(l.WriteTimeoutSeconds) * time.Second
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Callsign: %s\n", c.Callsign)
	for _, cl := range c.EnabledClusters() {
		fmt.Printf("Cluster %s: %s:%d (as %s)\n", cl.Name, cl.Host, cl.Port, c.CallsignFor(cl))
	}
	fmt.Printf("Listener: poll=%dms auth_retries=%d transport=%s\n",
		c.Listener.PollIntervalMS, c.Listener.AuthRetries, c.Listener.Transport)
	if c.Supervisor.Reconnect {
		fmt.Printf("Reconnect: backoff %ds..%ds\n", c.Supervisor.BackoffBaseSeconds, c.Supervisor.BackoffMaxSeconds)
	}
	if c.Dedup.Enabled {
		fmt.Printf("Dedup: window=%ds\n", c.Dedup.WindowSeconds)
	}
	if c.Archive.Enabled {
		fmt.Printf("Archive: %s at %s\n", c.Archive.Backend, c.Archive.DBPath)
	}
	if c.MQTT.Enabled {
		fmt.Printf("MQTT: %s:%d (topic: %s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.Topic)
	}
	if c.Redis.Enabled {
		fmt.Printf("Redis: %s (channel: %s)\n", c.Redis.Addr, c.Redis.Channel)
	}
	if c.Metrics.Enabled {
		fmt.Printf("Metrics: %s\n", c.Metrics.Listen)
	}
	if len(c.Filter.Modes) > 0 {
		fmt.Printf("Modes: %s\n", strings.Join(c.Filter.Modes, ", "))
	}
}
