package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/banshee-data/costmap/internal/costmap/engine"
	"github.com/banshee-data/costmap/internal/navserial"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/costmap.defaults.json"

// Config is the root configuration of the costmap service. Every field is
// optional; the Get* methods supply defaults for fields left unset. An
// empty string for an optional address or path disables that component.
type Config struct {
	// Publishing
	FrameID        *string `json:"frame_id,omitempty"`
	MapPath        *string `json:"map_path,omitempty"`
	WriteMapYAML   *bool   `json:"write_map_yaml,omitempty"`
	PNGPreviewPath *string `json:"png_preview_path,omitempty"`
	QueueSize      *int    `json:"queue_size,omitempty"`
	StatsInterval  *string `json:"stats_interval,omitempty"` // duration string like "30s"

	// Transport
	UDPAddr        *string `json:"udp_addr,omitempty"`
	UDPRcvBuf      *int    `json:"udp_rcvbuf,omitempty"`
	GRPCAddr       *string `json:"grpc_addr,omitempty"`
	GRPCMaxClients *int    `json:"grpc_max_clients,omitempty"`
	HTTPAddr       *string `json:"http_addr,omitempty"`
	DBPath         *string `json:"db_path,omitempty"`
	SerialPort     *string `json:"serial_port,omitempty"`
	SerialBaud     *int    `json:"serial_baud,omitempty"`

	// Engine params
	Resolution    *float64 `json:"resolution,omitempty"`
	GlobalWidth   *int     `json:"global_width,omitempty"`
	GlobalHeight  *int     `json:"global_height,omitempty"`
	LocalWidth    *int     `json:"local_width,omitempty"`
	LocalHeight   *int     `json:"local_height,omitempty"`
	HitLogOdds    *float64 `json:"hit_log_odds,omitempty"`
	MissLogOdds   *float64 `json:"miss_log_odds,omitempty"`
	MinLogOdds    *float64 `json:"min_log_odds,omitempty"`
	MaxLogOdds    *float64 `json:"max_log_odds,omitempty"`
	MaxRange      *float64 `json:"max_range,omitempty"`
	MinZ          *float64 `json:"min_z,omitempty"`
	MaxZ          *float64 `json:"max_z,omitempty"`
	WarmupBatches *int     `json:"warmup_batches,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields set to nil.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	p := engine.DefaultParams()
	return &Config{
		FrameID:        ptrString("map"),
		MapPath:        ptrString("map.pgm"),
		WriteMapYAML:   ptrBool(true),
		PNGPreviewPath: ptrString(""),
		QueueSize:      ptrInt(64),
		StatsInterval:  ptrString("30s"),
		UDPAddr:        ptrString(":56301"),
		UDPRcvBuf:      ptrInt(4 << 20),
		GRPCAddr:       ptrString("localhost:50061"),
		GRPCMaxClients: ptrInt(5),
		HTTPAddr:       ptrString(":8082"),
		DBPath:         ptrString("costmap.db"),
		SerialPort:     ptrString(""),
		SerialBaud:     ptrInt(navserial.DefaultBaudRate),
		Resolution:     ptrFloat64(p.Resolution),
		GlobalWidth:    ptrInt(int(p.GlobalWidth)),
		GlobalHeight:   ptrInt(int(p.GlobalHeight)),
		LocalWidth:     ptrInt(int(p.LocalWidth)),
		LocalHeight:    ptrInt(int(p.LocalHeight)),
		HitLogOdds:     ptrFloat64(p.HitLogOdds),
		MissLogOdds:    ptrFloat64(p.MissLogOdds),
		MinLogOdds:     ptrFloat64(p.MinLogOdds),
		MaxLogOdds:     ptrFloat64(p.MaxLogOdds),
		MaxRange:       ptrFloat64(p.MaxRange),
		MinZ:           ptrFloat64(p.MinZ),
		MaxZ:           ptrFloat64(p.MaxZ),
		WarmupBatches:  ptrInt(p.WarmupBatches),
	}
}

// LoadConfig loads a Config from a JSON file. Fields omitted from the file
// stay nil and fall back to the Get* defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/costmap/pipeline/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate reports every invalid value.
func (c *Config) Validate() error {
	var err error
	if c.QueueSize != nil && *c.QueueSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("queue_size must be positive, got %d", *c.QueueSize))
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, perr := time.ParseDuration(*c.StatsInterval); perr != nil {
			err = multierr.Append(err, fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, perr))
		}
	}
	if c.UDPRcvBuf != nil && *c.UDPRcvBuf < 0 {
		err = multierr.Append(err, fmt.Errorf("udp_rcvbuf must be non-negative, got %d", *c.UDPRcvBuf))
	}
	if c.GRPCMaxClients != nil && *c.GRPCMaxClients < 0 {
		err = multierr.Append(err, fmt.Errorf("grpc_max_clients must be non-negative, got %d", *c.GRPCMaxClients))
	}
	for name, v := range map[string]*int{
		"global_width": c.GlobalWidth, "global_height": c.GlobalHeight,
		"local_width": c.LocalWidth, "local_height": c.LocalHeight,
	} {
		if v != nil && *v < 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be non-negative, got %d", name, *v))
		}
	}
	if _, perr := c.GetSerialOptions().Normalize(); perr != nil {
		err = multierr.Append(err, perr)
	}
	if err != nil {
		return err
	}
	return c.EngineParams().Validate()
}

func getString(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getFloat64(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// GetFrameID returns the frame_id value or the default.
func (c *Config) GetFrameID() string {
	if c.FrameID == nil || *c.FrameID == "" {
		return "map"
	}
	return *c.FrameID
}

// GetMapPath returns the map_path value or the default.
func (c *Config) GetMapPath() string { return getString(c.MapPath, "map.pgm") }

// GetWriteMapYAML returns the write_map_yaml value or the default.
func (c *Config) GetWriteMapYAML() bool {
	if c.WriteMapYAML == nil {
		return true
	}
	return *c.WriteMapYAML
}

// GetPNGPreviewPath returns png_preview_path; empty disables previews.
func (c *Config) GetPNGPreviewPath() string { return getString(c.PNGPreviewPath, "") }

// GetQueueSize returns the queue_size value or the default.
func (c *Config) GetQueueSize() int { return getInt(c.QueueSize, 64) }

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *Config) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetUDPAddr returns the udp_addr value or the default.
func (c *Config) GetUDPAddr() string { return getString(c.UDPAddr, ":56301") }

// GetUDPRcvBuf returns the udp_rcvbuf value or the default.
func (c *Config) GetUDPRcvBuf() int { return getInt(c.UDPRcvBuf, 4<<20) }

// GetGRPCAddr returns grpc_addr; empty disables the gRPC publisher.
func (c *Config) GetGRPCAddr() string { return getString(c.GRPCAddr, "localhost:50061") }

// GetGRPCMaxClients returns the grpc_max_clients value or the default.
func (c *Config) GetGRPCMaxClients() int { return getInt(c.GRPCMaxClients, 5) }

// GetHTTPAddr returns http_addr; empty disables the monitor server.
func (c *Config) GetHTTPAddr() string { return getString(c.HTTPAddr, ":8082") }

// GetDBPath returns db_path; empty disables the snapshot store.
func (c *Config) GetDBPath() string { return getString(c.DBPath, "costmap.db") }

// GetSerialPort returns serial_port; empty disables the serial nav source.
func (c *Config) GetSerialPort() string { return getString(c.SerialPort, "") }

// GetSerialOptions returns the serial options for the nav source.
func (c *Config) GetSerialOptions() navserial.PortOptions {
	return navserial.PortOptions{BaudRate: getInt(c.SerialBaud, navserial.DefaultBaudRate)}
}

// EngineParams returns the reference engine parameters, starting from
// engine.DefaultParams for unset fields.
func (c *Config) EngineParams() engine.Params {
	d := engine.DefaultParams()
	return engine.Params{
		Resolution:    getFloat64(c.Resolution, d.Resolution),
		GlobalWidth:   uint(max(0, getInt(c.GlobalWidth, int(d.GlobalWidth)))),
		GlobalHeight:  uint(max(0, getInt(c.GlobalHeight, int(d.GlobalHeight)))),
		LocalWidth:    uint(max(0, getInt(c.LocalWidth, int(d.LocalWidth)))),
		LocalHeight:   uint(max(0, getInt(c.LocalHeight, int(d.LocalHeight)))),
		HitLogOdds:    getFloat64(c.HitLogOdds, d.HitLogOdds),
		MissLogOdds:   getFloat64(c.MissLogOdds, d.MissLogOdds),
		MinLogOdds:    getFloat64(c.MinLogOdds, d.MinLogOdds),
		MaxLogOdds:    getFloat64(c.MaxLogOdds, d.MaxLogOdds),
		MaxRange:      getFloat64(c.MaxRange, d.MaxRange),
		MinZ:          getFloat64(c.MinZ, d.MinZ),
		MaxZ:          getFloat64(c.MaxZ, d.MaxZ),
		WarmupBatches: getInt(c.WarmupBatches, d.WarmupBatches),
	}
}
