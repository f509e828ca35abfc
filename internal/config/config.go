// Package config loads the service configuration from a .json or .toml
// file. Every field is optional; the Get* accessors supply defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/mmwave.report/internal/mmwave/cfg"
	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
)

// ExampleConfigPath is the annotated example shipped with the repo.
const ExampleConfigPath = "config/mmwave.example.toml"

const maxFileSize = 1 * 1024 * 1024

// AppConfig is the root configuration.
type AppConfig struct {
	// Sensor
	Device  *string `json:"device,omitempty" toml:"device"`
	CfgPath *string `json:"cfg_path,omitempty" toml:"cfg_path"`

	// Serial ports. Single-port devices use CLIPort only.
	CLIPort      *string `json:"cli_port,omitempty" toml:"cli_port"`
	DataPort     *string `json:"data_port,omitempty" toml:"data_port"`
	CLIBaudRate  *int    `json:"cli_baud_rate,omitempty" toml:"cli_baud_rate"`
	DataBaudRate *int    `json:"data_baud_rate,omitempty" toml:"data_baud_rate"`
	ReadTimeout  *string `json:"read_timeout,omitempty" toml:"read_timeout"` // duration string like "600ms"

	// UDP bridge. When set, frames are read from UDP instead of DataPort.
	UDPAddr *string `json:"udp_addr,omitempty" toml:"udp_addr"`

	// Decoder
	FrameAlignment *int `json:"frame_alignment,omitempty" toml:"frame_alignment"`
	MaxFrameBytes  *int `json:"max_frame_bytes,omitempty" toml:"max_frame_bytes"`
	ReadChunkSize  *int `json:"read_chunk_size,omitempty" toml:"read_chunk_size"`

	// Storage
	DBPath         *string `json:"db_path,omitempty" toml:"db_path"`
	PersistFrames  *bool   `json:"persist_frames,omitempty" toml:"persist_frames"`
	RecordDir      *string `json:"record_dir,omitempty" toml:"record_dir"`
	FramesPerChunk *int    `json:"frames_per_chunk,omitempty" toml:"frames_per_chunk"`

	// Service
	ListenAddr       *string `json:"listen_addr,omitempty" toml:"listen_addr"`
	SubscriberBuffer *int    `json:"subscriber_buffer,omitempty" toml:"subscriber_buffer"`
	DiagLog          *bool   `json:"diag_log,omitempty" toml:"diag_log"`
	TraceLog         *bool   `json:"trace_log,omitempty" toml:"trace_log"`
}

// Load reads a config file. The extension picks the format.
func Load(path string) (*AppConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := &AppConfig{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), c)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// Validate checks the fields that are set.
func (c *AppConfig) Validate() error {
	if c.Device != nil {
		if _, err := cfg.LookupDevice(*c.Device); err != nil {
			return err
		}
	}
	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		d, err := time.ParseDuration(*c.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("read_timeout must be non-negative, got %s", d)
		}
	}
	for name, v := range map[string]*int{
		"cli_baud_rate":     c.CLIBaudRate,
		"data_baud_rate":    c.DataBaudRate,
		"frames_per_chunk":  c.FramesPerChunk,
		"read_chunk_size":   c.ReadChunkSize,
		"subscriber_buffer": c.SubscriberBuffer,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.FrameAlignment != nil {
		a := *c.FrameAlignment
		if a < 0 || (a > 1 && a&(a-1) != 0) {
			return fmt.Errorf("frame_alignment must be 0, 1 or a power of two, got %d", a)
		}
	}
	if c.MaxFrameBytes != nil && *c.MaxFrameBytes < parse.FRAME_HEADER_SIZE {
		return fmt.Errorf("max_frame_bytes must be at least %d, got %d", parse.FRAME_HEADER_SIZE, *c.MaxFrameBytes)
	}
	return nil
}

func str(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func num(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func flag(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// GetDevice returns the device family, defaulting to xWR6843.
func (c *AppConfig) GetDevice() cfg.Device {
	d, err := cfg.LookupDevice(str(c.Device, "xWR6843"))
	if err != nil {
		d, _ = cfg.LookupDevice("xWR6843")
	}
	return d
}

func (c *AppConfig) GetCfgPath() string  { return str(c.CfgPath, "") }
func (c *AppConfig) GetCLIPort() string  { return str(c.CLIPort, "/dev/ttyUSB0") }
func (c *AppConfig) GetDataPort() string { return str(c.DataPort, "/dev/ttyUSB1") }
func (c *AppConfig) GetUDPAddr() string  { return str(c.UDPAddr, "") }

func (c *AppConfig) GetCLIBaudRate() int { return num(c.CLIBaudRate, 115200) }

// GetDataBaudRate defaults to 921600, or to the CLI rate on single-port
// devices.
func (c *AppConfig) GetDataBaudRate() int {
	if c.GetDevice().SingleCOM {
		return num(c.DataBaudRate, c.GetCLIBaudRate())
	}
	return num(c.DataBaudRate, 921600)
}

// GetReadTimeout parses ReadTimeout, defaulting to 600ms.
func (c *AppConfig) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(str(c.ReadTimeout, "600ms"))
	if err != nil {
		return 600 * time.Millisecond
	}
	return d
}

func (c *AppConfig) GetFrameAlignment() int { return num(c.FrameAlignment, parse.FRAME_ALIGNMENT) }
func (c *AppConfig) GetMaxFrameBytes() int  { return num(c.MaxFrameBytes, parse.MAX_SANE_FRAME_BYTES) }
func (c *AppConfig) GetReadChunkSize() int  { return num(c.ReadChunkSize, 4096) }

func (c *AppConfig) GetDBPath() string        { return str(c.DBPath, "mmwave.db") }
func (c *AppConfig) GetPersistFrames() bool   { return flag(c.PersistFrames, true) }
func (c *AppConfig) GetRecordDir() string     { return str(c.RecordDir, "") }
func (c *AppConfig) GetFramesPerChunk() int   { return num(c.FramesPerChunk, 100) }
func (c *AppConfig) GetListenAddr() string    { return str(c.ListenAddr, ":8080") }
func (c *AppConfig) GetSubscriberBuffer() int { return num(c.SubscriberBuffer, 8) }
func (c *AppConfig) GetDiagLog() bool         { return flag(c.DiagLog, false) }
func (c *AppConfig) GetTraceLog() bool        { return flag(c.TraceLog, false) }

// Parser builds a frame parser honouring FrameAlignment.
func (c *AppConfig) Parser() *parse.Parser {
	p := parse.NewParser()
	p.Alignment = c.GetFrameAlignment()
	return p
}
