// Package cfg reads TI mmWave .cfg files: the CLI command lines sent to the
// sensor, plus the handful of values frame consumers need to interpret the
// decoded output.
package cfg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Device describes a sensor family.
type Device struct {
	Name string `json:"name"`
	// X843 devices use a dedicated CLI port and a data port.
	X843 bool `json:"x843"`
	// X432 devices are low power and share one port for CLI and data.
	X432      bool `json:"x432"`
	SingleCOM bool `json:"single_com"`
}

// LowPower devices echo four acknowledgement lines per command instead of two.
func (d Device) LowPower() bool { return d.X432 }

// AckLines is the number of lines the CLI echoes back per command.
func (d Device) AckLines() int {
	if d.LowPower() {
		return 4
	}
	return 2
}

var devices = map[string]Device{
	"xWR6843":  {Name: "xWR6843", X843: true},
	"xWR1843":  {Name: "xWR1843", X843: true},
	"xWRL6432": {Name: "xWRL6432", X432: true, SingleCOM: true},
	"xWRL1432": {Name: "xWRL1432", X432: true, SingleCOM: true},
}

// LookupDevice returns the device family for a name such as "xWR6843".
// Matching ignores case.
func LookupDevice(name string) (Device, error) {
	for k, d := range devices {
		if strings.EqualFold(k, name) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("unknown device %q", name)
}

// DeviceNames lists the supported device families.
func DeviceNames() []string {
	return []string{"xWR6843", "xWR1843", "xWRL6432", "xWRL1432"}
}

// Box is an axis-aligned region. Arcs reuse it as (r, theta, z).
type Box struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// Zone is an indexed region from zoneDef, mpdBoundaryBox or mpdBoundaryArc.
type Zone struct {
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	Box
}

type SensorPosition struct {
	XOffset  float64 `json:"x_offset"`
	YOffset  float64 `json:"y_offset"`
	Height   float64 `json:"height"`
	AzTilt   float64 `json:"az_tilt_deg"`
	ElevTilt float64 `json:"elev_tilt_deg"`
}

type ChirpCommon struct {
	DigOutputSampRate int `json:"dig_output_samp_rate"`
	NumOfAdcSamples   int `json:"num_adc_samples"`
	TxMimoPatSel      int `json:"tx_mimo_pat_sel"`
}

type RangePhaseCal struct {
	Enabled     bool    `json:"enabled"`
	CenterDist  float64 `json:"center_dist"`
	SearchRange float64 `json:"search_range"`
}

type Channels struct {
	RX int `json:"rx"`
	TX int `json:"tx"`
}

// SensorConfig is what was understood from one .cfg file. Pointer fields
// are nil when the file did not contain the command.
type SensorConfig struct {
	Device Device   `json:"device"`
	Lines  []string `json:"-"`

	MaxTracks          *int            `json:"max_tracks,omitempty"`
	BoundaryBox        *Box            `json:"boundary_box,omitempty"`
	Zones              []Zone          `json:"zones,omitempty"`
	FramePeriodicityMs *float64        `json:"frame_periodicity_ms,omitempty"`
	SensorPosition     *SensorPosition `json:"sensor_position,omitempty"`
	OccupancyZones     *int            `json:"occupancy_zones,omitempty"`
	ChirpCommon        *ChirpCommon    `json:"chirp_common,omitempty"`
	ChirpRfFreqSlope   *float64        `json:"chirp_rf_freq_slope,omitempty"`
	RangeProfileType   *int            `json:"range_profile_type,omitempty"`
	PresenceDetect     []string        `json:"presence_detect,omitempty"`
	SigProcChain2      []string        `json:"sig_proc_chain2,omitempty"`
	MotionMode         *int            `json:"motion_mode,omitempty"`
	RangePhaseCal      *RangePhaseCal  `json:"range_phase_cal,omitempty"`
	ClutterRemoval     *int            `json:"clutter_removal,omitempty"`
	Channels           *Channels       `json:"channels,omitempty"`
	BaudRate           *int            `json:"baud_rate,omitempty"`

	// Warnings lists lines that were recognised but could not be used.
	Warnings []string `json:"warnings,omitempty"`
}

// Load parses the .cfg file at path.
func Load(path string, dev Device) (*SensorConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cfg file: %w", err)
	}
	defer f.Close()
	return Parse(f, dev)
}

// minArgs is the token count, command included, each command needs.
var minArgs = map[string]int{
	"trackingCfg":                    5,
	"SceneryParam":                   7,
	"boundaryBox":                    7,
	"frameCfg":                       6,
	"sensorPosition":                 4,
	"occStateMach":                   2,
	"zoneDef":                        8,
	"mpdBoundaryBox":                 8,
	"mpdBoundaryArc":                 8,
	"chirpComnCfg":                   8,
	"chirpTimingCfg":                 6,
	"guiMonitor":                     12,
	"presenceDetectCfg":              2,
	"sigProcChainCfg2":               1,
	"sigProcChainCfg":                4,
	"measureRangeBiasAndRxChanPhase": 4,
	"clutterRemoval":                 2,
	"channelCfg":                     3,
	"baudRate":                       2,
}

// Parse reads a .cfg stream. Malformed lines are recorded in Warnings and
// do not stop parsing; only read errors are returned.
func Parse(r io.Reader, dev Device) (*SensorConfig, error) {
	c := &SensorConfig{Device: dev}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		c.Lines = append(c.Lines, line)
		args := strings.Fields(line)
		if len(args) == 0 || strings.HasPrefix(args[0], "%") {
			continue
		}
		if err := c.apply(args); err != nil {
			c.Warnings = append(c.Warnings, fmt.Sprintf("line %d: %v", lineNo, err))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cfg: %w", err)
	}
	return c, nil
}

func (c *SensorConfig) apply(args []string) error {
	cmd := args[0]
	need, known := minArgs[cmd]
	if !known {
		return nil
	}
	if cmd == "sensorPosition" && c.Device.X432 {
		need = 6
	}
	if cmd == "guiMonitor" && !c.Device.X432 {
		// SDK 3 guiMonitor has a different shape and nothing here uses it.
		return nil
	}
	if len(args) < need {
		return fmt.Errorf("%s had fewer arguments than expected (%d < %d)", cmd, len(args), need)
	}

	// A line with a bad token leaves the config as it was.
	prev := *c
	p := argParser{args: args}
	switch cmd {
	case "trackingCfg":
		v := p.int(4)
		c.MaxTracks = &v
	case "SceneryParam", "boundaryBox":
		b := p.box(1)
		c.BoundaryBox = &b
	case "frameCfg":
		v := p.float(5)
		c.FramePeriodicityMs = &v
	case "sensorPosition":
		pos := &SensorPosition{}
		if c.Device.X432 {
			pos.XOffset, pos.YOffset = p.float(1), p.float(2)
			pos.Height, pos.AzTilt, pos.ElevTilt = p.float(3), p.float(4), p.float(5)
		} else {
			pos.Height, pos.AzTilt, pos.ElevTilt = p.float(1), p.float(2), p.float(3)
		}
		c.SensorPosition = pos
	case "occStateMach":
		v := p.int(1)
		c.OccupancyZones = &v
	case "zoneDef", "mpdBoundaryBox", "mpdBoundaryArc":
		c.Zones = append(c.Zones, Zone{Kind: cmd, Index: p.int(1), Box: p.box(2)})
	case "chirpComnCfg":
		c.ChirpCommon = &ChirpCommon{
			DigOutputSampRate: p.int(1),
			NumOfAdcSamples:   p.int(4),
			TxMimoPatSel:      p.int(5),
		}
	case "chirpTimingCfg":
		v := p.float(4)
		c.ChirpRfFreqSlope = &v
	case "guiMonitor":
		v := p.int(2)
		c.RangeProfileType = &v
	case "presenceDetectCfg":
		c.PresenceDetect = append([]string(nil), args[1:]...)
	case "sigProcChainCfg2":
		c.SigProcChain2 = append([]string(nil), args[1:]...)
	case "sigProcChainCfg":
		v := p.int(3)
		c.MotionMode = &v
	case "measureRangeBiasAndRxChanPhase":
		c.RangePhaseCal = &RangePhaseCal{Enabled: p.int(1) == 1, CenterDist: p.float(2), SearchRange: p.float(3)}
	case "clutterRemoval":
		v := p.int(1)
		c.ClutterRemoval = &v
	case "channelCfg":
		c.Channels = &Channels{RX: p.int(1), TX: p.int(2)}
	case "baudRate":
		v := p.int(1)
		c.BaudRate = &v
	}
	if p.err != nil {
		*c = prev
	}
	return p.err
}

// argParser converts positional tokens, keeping the first error.
type argParser struct {
	args []string
	err  error
}

func (p *argParser) float(i int) float64 {
	v, err := strconv.ParseFloat(p.args[i], 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s argument %d: %w", p.args[0], i, err)
	}
	return v
}

func (p *argParser) int(i int) int {
	// Some cfgs write integers as "1.0".
	return int(p.float(i))
}

func (p *argParser) box(from int) Box {
	var b Box
	for axis := 0; axis < 3; axis++ {
		b.Min[axis] = p.float(from + 2*axis)
		b.Max[axis] = p.float(from + 2*axis + 1)
	}
	return b
}
