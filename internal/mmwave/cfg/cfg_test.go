package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample6432 = `% xWRL6432 motion and presence detection
sensorStop 0
channelCfg 7 3 0
chirpComnCfg 8 0 0 256 1 13.1 3
chirpTimingCfg 6 63 0 75 58
frameCfg 2 0 200 64 250 0

guiMonitor 2 3 0 0 0 1 0 0 1 1 1
sigProcChainCfg 32 2 1 2 8 8 1 0.3
clutterRemoval 0
measureRangeBiasAndRxChanPhase 1 0.5 0.2
sensorPosition 0 0 1.5 0 -15
boundaryBox -3 3 0.5 7.5 0 3
zoneDef 0 -1 1 0 2 0 2
mpdBoundaryBox 1 -2 2 0.5 3 0 2.5
trackingCfg 1 2 200 5 40 50 110
baudRate 1250000
sensorStart 0 0 0 0
`

func mustDevice(t *testing.T, name string) Device {
	t.Helper()
	d, err := LookupDevice(name)
	require.NoError(t, err)
	return d
}

func TestParse_x432Sample(t *testing.T) {
	c, err := Parse(strings.NewReader(sample6432), mustDevice(t, "xwrl6432"))
	require.NoError(t, err)

	assert.Empty(t, c.Warnings)
	require.NotNil(t, c.MaxTracks)
	assert.Equal(t, 5, *c.MaxTracks)
	assert.Equal(t, &Box{Min: [3]float64{-3, 0.5, 0}, Max: [3]float64{3, 7.5, 3}}, c.BoundaryBox)
	require.Len(t, c.Zones, 2)
	assert.Equal(t, Zone{Kind: "zoneDef", Index: 0, Box: Box{Min: [3]float64{-1, 0, 0}, Max: [3]float64{1, 2, 2}}}, c.Zones[0])
	assert.Equal(t, "mpdBoundaryBox", c.Zones[1].Kind)
	assert.Equal(t, &SensorPosition{Height: 1.5, ElevTilt: -15}, c.SensorPosition)
	assert.Equal(t, 250*time.Millisecond, c.FramePeriod())
	assert.Equal(t, 125*time.Millisecond, c.PollInterval())
	assert.Equal(t, &ChirpCommon{DigOutputSampRate: 8, NumOfAdcSamples: 256, TxMimoPatSel: 1}, c.ChirpCommon)
	assert.Equal(t, 3, *c.RangeProfileType)
	assert.True(t, c.MajorMotion())
	assert.False(t, c.MinorMotion())
	assert.Equal(t, &Channels{RX: 7, TX: 3}, c.Channels)
	assert.Equal(t, 1250000, *c.BaudRate)
	assert.Empty(t, c.CalibrationIssues())

	disabled, err := Parse(strings.NewReader(strings.Replace(sample6432, "measureRangeBiasAndRxChanPhase 1", "measureRangeBiasAndRxChanPhase 0", 1)), mustDevice(t, "xwrl6432"))
	require.NoError(t, err)
	assert.Len(t, disabled.CalibrationIssues(), 1)

	lo, hi, ok := c.CalibrationZone()
	assert.True(t, ok)
	assert.InDelta(t, 0.4, lo, 1e-12)
	assert.InDelta(t, 0.6, hi, 1e-12)
}

func TestRangeResolution(t *testing.T) {
	c, err := Parse(strings.NewReader(sample6432), mustDevice(t, "xWRL6432"))
	require.NoError(t, err)

	res, err := c.RangeResolution()
	require.NoError(t, err)
	// slope 75 MHz/us, 12.5 MHz sampling, 256 samples
	assert.InDelta(t, 3e8*12.5e6/(2*75e12*256), res, 1e-12)

	bins, err := c.RangeBins()
	require.NoError(t, err)
	assert.Len(t, bins, 128)
	assert.InDelta(t, 127*res, bins[127], 1e-12)

	empty := &SensorConfig{}
	_, err = empty.RangeResolution()
	assert.ErrorIs(t, err, ErrMissingChirp)
}

func TestCommands(t *testing.T) {
	c, err := Parse(strings.NewReader("% header\n\nsensorStop\r\n  \nframeCfg 0 1 16 0 100 1 0\n%trailer\n"), mustDevice(t, "xWR6843"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sensorStop", "frameCfg 0 1 16 0 100 1 0"}, c.Commands())
	assert.Equal(t, 50*time.Millisecond, c.PollInterval())
}

func TestParse_x843SensorPositionAndGuiMonitor(t *testing.T) {
	in := "sensorPosition 2 10 -20\nguiMonitor -1 1 1 0 0 0 1\n"
	c, err := Parse(strings.NewReader(in), mustDevice(t, "xWR6843"))
	require.NoError(t, err)
	assert.Equal(t, &SensorPosition{Height: 2, AzTilt: 10, ElevTilt: -20}, c.SensorPosition)
	assert.Nil(t, c.RangeProfileType)
	assert.Empty(t, c.Warnings)
}

func TestParse_ShortAndMalformedLinesWarn(t *testing.T) {
	in := "trackingCfg 1 2\nsensorPosition 1 2 3\nclutterRemoval x\nchannelCfg 15 5 0\n"
	c, err := Parse(strings.NewReader(in), mustDevice(t, "xWRL1432"))
	require.NoError(t, err)
	require.Len(t, c.Warnings, 3)
	assert.Contains(t, c.Warnings[0], "trackingCfg had fewer arguments")
	assert.Contains(t, c.Warnings[1], "sensorPosition")
	assert.Contains(t, c.Warnings[2], "clutterRemoval argument 1")
	assert.Nil(t, c.MaxTracks)
	assert.Nil(t, c.ClutterRemoval)
	assert.Equal(t, &Channels{RX: 15, TX: 5}, c.Channels)

	issues := c.CalibrationIssues()
	assert.Len(t, issues, 6)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitals.cfg")
	require.NoError(t, os.WriteFile(path, []byte("trackingCfg 1 2 800 2 46 96 55\n"), 0o644))
	c, err := Load(path, mustDevice(t, "xWR6843"))
	require.NoError(t, err)
	assert.Equal(t, 2, *c.MaxTracks)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cfg"), Device{})
	assert.Error(t, err)
}

func TestDevices(t *testing.T) {
	for _, name := range DeviceNames() {
		d := mustDevice(t, name)
		assert.Equal(t, name, d.Name)
		assert.NotEqual(t, d.X843, d.X432)
	}
	assert.Equal(t, 4, mustDevice(t, "xWRL6432").AckLines())
	assert.Equal(t, 2, mustDevice(t, "xWR1843").AckLines())
	_, err := LookupDevice("AWR2944")
	assert.Error(t, err)
}
