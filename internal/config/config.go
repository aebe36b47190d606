// Package config loads and validates the ground station configuration. YAML
// files are checked against an embedded CUE schema before unmarshalling, so
// malformed values fail with a schema error rather than a zero value.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Transport kinds.
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
	TransportReplay = "replay"
)

// Overflow policies for the persistence queue.
const (
	OverflowBlock      = "block"
	OverflowDropOldest = "drop_oldest"
)

// Duration is a time.Duration that marshals as a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the root ground station configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	TeamID    string          `yaml:"team_id"`
	Drones    []int           `yaml:"drones"`
	Transport TransportConfig `yaml:"transport"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Storage   StorageConfig   `yaml:"storage"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Status    StatusConfig    `yaml:"status"`
	Zones     []ZoneConfig    `yaml:"zones"`
}

// TransportConfig selects and parameterizes the telemetry source.
type TransportConfig struct {
	Kind        string       `yaml:"kind"`
	Endpoint    string       `yaml:"endpoint"`
	ReadTimeout Duration     `yaml:"read_timeout"`
	Serial      SerialConfig `yaml:"serial"`
	Replay      ReplayConfig `yaml:"replay"`
}

// SerialConfig parameterizes the serial telemetry source.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// ReplayConfig parameterizes the recorded-flight telemetry source.
type ReplayConfig struct {
	Path     string   `yaml:"path"`
	Interval Duration `yaml:"interval"`
	Speed    float64  `yaml:"speed"`
	Loop     bool     `yaml:"loop"`
}

// IngestConfig parameterizes the ingestion scheduler.
type IngestConfig struct {
	DecodeErrorThreshold int      `yaml:"decode_error_threshold"`
	ShutdownTimeout      Duration `yaml:"shutdown_timeout"`
}

// StorageConfig parameterizes the mission database and its write queue.
type StorageConfig struct {
	Path           string   `yaml:"path"`
	QueueDepth     int      `yaml:"queue_depth"`
	BatchSize      int      `yaml:"batch_size"`
	FlushInterval  Duration `yaml:"flush_interval"`
	OverflowPolicy string   `yaml:"overflow_policy"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryBackoff   Duration `yaml:"retry_backoff"`
}

// MirrorConfig parameterizes the optional GreptimeDB telemetry mirror.
type MirrorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// StatusConfig parameterizes the read-only status HTTP API.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ZoneConfig is a circular geofence zone.
type ZoneConfig struct {
	Name      string  `yaml:"name"`
	CenterLat float64 `yaml:"center_lat"`
	CenterLon float64 `yaml:"center_lon"`
	RadiusKM  float64 `yaml:"radius_km"`
}

// Default returns the configuration used when a field is absent from the
// loaded file.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		TeamID:   "1000",
		Drones:   []int{1, 2},
		Transport: TransportConfig{
			Kind:        TransportTCP,
			Endpoint:    "127.0.0.1:9003",
			ReadTimeout: Duration(2 * time.Second),
			Serial:      SerialConfig{BaudRate: 57600},
			Replay:      ReplayConfig{Interval: Duration(time.Second), Speed: 1},
		},
		Ingest: IngestConfig{
			DecodeErrorThreshold: 5,
			ShutdownTimeout:      Duration(5 * time.Second),
		},
		Storage: StorageConfig{
			Path:           "mission_data.db",
			QueueDepth:     64,
			BatchSize:      32,
			FlushInterval:  Duration(time.Second),
			OverflowPolicy: OverflowDropOldest,
			MaxRetries:     3,
			RetryBackoff:   Duration(250 * time.Millisecond),
		},
		Mirror: MirrorConfig{Host: "127.0.0.1", Port: 4001, Database: "public"},
		Status: StatusConfig{Enabled: true, Listen: "127.0.0.1:8080"},
	}
}

// Load reads, validates and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse validates data against the embedded schema and unmarshals it over
// the defaults.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateSchema(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	if err := cueyaml.Validate(data, schema); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

// validate covers the cross-field requirements the schema cannot express.
func (c *Config) validate() error {
	if len(c.Drones) == 0 {
		return fmt.Errorf("config: at least one drone ID is required")
	}
	switch c.Transport.Kind {
	case TransportTCP:
		if c.Transport.Endpoint == "" {
			return fmt.Errorf("config: transport.endpoint is required for tcp transport")
		}
	case TransportSerial:
		if c.Transport.Serial.Port == "" {
			return fmt.Errorf("config: transport.serial.port is required for serial transport")
		}
	case TransportReplay:
		if c.Transport.Replay.Path == "" {
			return fmt.Errorf("config: transport.replay.path is required for replay transport")
		}
	default:
		return fmt.Errorf("config: unknown transport kind %q", c.Transport.Kind)
	}
	return nil
}

// Level returns the slog level for the configured log_level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
