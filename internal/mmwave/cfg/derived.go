package cfg

import (
	"errors"
	"strings"
	"time"
)

var ErrMissingChirp = errors.New("cfg has no usable chirpComnCfg/chirpTimingCfg")

// Commands returns the lines to transmit: blank and % comment lines removed,
// surrounding whitespace trimmed.
func (c *SensorConfig) Commands() []string {
	out := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "%") {
			continue
		}
		out = append(out, l)
	}
	return out
}

// FramePeriod is the frameCfg periodicity, or 0 when absent.
func (c *SensorConfig) FramePeriod() time.Duration {
	if c.FramePeriodicityMs == nil {
		return 0
	}
	return time.Duration(*c.FramePeriodicityMs * float64(time.Millisecond))
}

// PollInterval is how often a consumer should expect to look for a frame:
// half the frame period, so no frame waits a full period.
func (c *SensorConfig) PollInterval() time.Duration {
	return c.FramePeriod() / 2
}

// RangeResolution returns metres per range bin from the chirp settings.
func (c *SensorConfig) RangeResolution() (float64, error) {
	cc := c.ChirpCommon
	if cc == nil || c.ChirpRfFreqSlope == nil || cc.DigOutputSampRate == 0 ||
		cc.NumOfAdcSamples == 0 || *c.ChirpRfFreqSlope == 0 {
		return 0, ErrMissingChirp
	}
	sampleRate := 100 / float64(cc.DigOutputSampRate) * 1e6
	return 3e8 * sampleRate / (2 * *c.ChirpRfFreqSlope * 1e12 * float64(cc.NumOfAdcSamples)), nil
}

// RangeBins returns the range axis of a range profile: the distance of each
// of the NumOfAdcSamples/2 bins.
func (c *SensorConfig) RangeBins() ([]float64, error) {
	res, err := c.RangeResolution()
	if err != nil {
		return nil, err
	}
	bins := make([]float64, c.ChirpCommon.NumOfAdcSamples/2)
	for i := range bins {
		bins[i] = float64(i) * res
	}
	return bins, nil
}

// MajorMotion reports whether sigProcChainCfg enables major motion (mode 1 or 3).
func (c *SensorConfig) MajorMotion() bool {
	return c.MotionMode != nil && *c.MotionMode%2 == 1
}

// MinorMotion reports whether sigProcChainCfg enables minor motion (mode 2 or 3).
func (c *SensorConfig) MinorMotion() bool {
	return c.MotionMode != nil && *c.MotionMode > 1
}

// CalibrationIssues lists the settings that stop
// measureRangeBiasAndRxChanPhase from producing usable coefficients.
func (c *SensorConfig) CalibrationIssues() []string {
	var issues []string
	if c.RangePhaseCal == nil || !c.RangePhaseCal.Enabled {
		issues = append(issues, "measureRangeBiasAndRxChanPhase must be enabled, set its first argument to 1")
	}
	if c.ChirpCommon == nil || c.ChirpCommon.TxMimoPatSel != 1 {
		issues = append(issues, "requires TDM mode not BPM mode, set the 5th argument of chirpComnCfg to 1")
	}
	if c.ClutterRemoval == nil || *c.ClutterRemoval != 0 {
		issues = append(issues, "requires clutter removal off, set the argument of clutterRemoval to 0")
	}
	if !c.MajorMotion() {
		issues = append(issues, "requires major motion, set the 3rd argument of sigProcChainCfg to 1 or 3")
	}
	if c.Channels == nil || c.Channels.TX != 3 {
		issues = append(issues, "requires 2 TX enabled, set the 2nd argument of channelCfg to 3")
	}
	if c.Channels == nil || c.Channels.RX != 7 {
		issues = append(issues, "requires 3 RX enabled, set the 1st argument of channelCfg to 7")
	}
	return issues
}

// CalibrationZone is the range window the calibration target must sit in.
func (c *SensorConfig) CalibrationZone() (min, max float64, ok bool) {
	if c.RangePhaseCal == nil {
		return 0, 0, false
	}
	half := c.RangePhaseCal.SearchRange / 2
	return c.RangePhaseCal.CenterDist - half, c.RangePhaseCal.CenterDist + half, true
}
