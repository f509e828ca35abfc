// Package vitals turns the per-frame vital signs TLV into per-patient state:
// rolling waveforms, a smoothed heart rate and a presence status.
package vitals

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mmwave.report/internal/mmwave/cfg"
	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
)

const (
	DefaultMaxPatients = 2
	// DefaultWaveformLen is the plotted history for x843 devices.
	DefaultWaveformLen = 150
	// LowPowerWaveformLen is the plotted history for x432 devices, whose
	// waveform entries are per-frame rates.
	LowPowerWaveformLen = 15
	DefaultRateHistory  = 10
	// BreathingThreshold is the breath deviation at or above which the
	// patient counts as breathing normally.
	BreathingThreshold = 0.02
)

// Status is the presence classification for a patient.
type Status string

const (
	StatusUnknown       Status = "unknown"
	StatusNoPatient     Status = "no_patient"
	StatusPresence      Status = "presence"
	StatusHoldingBreath Status = "holding_breath"
)

// Config sizes a Tracker. Zero values pick defaults.
type Config struct {
	// MaxPatients caps the patient slots; set it to min(maxTracks, 2).
	MaxPatients int
	WaveformLen int
	RateHistory int
}

// Patient is a snapshot of one patient slot.
type Patient struct {
	ID              int       `json:"id"`
	RangeBin        uint16    `json:"range_bin"`
	BreathDeviation float64   `json:"breath_deviation"`
	BreathRate      float64   `json:"breath_rate"`
	HeartRate       float64   `json:"heart_rate"`
	MedianHeartRate float64   `json:"median_heart_rate"`
	HeartRateMean   float64   `json:"heart_rate_mean"`
	HeartRateStd    float64   `json:"heart_rate_std"`
	Status          Status    `json:"status"`
	Updates         int       `json:"updates"`
	HeartWaveform   []float64 `json:"heart_waveform"`
	BreathWaveform  []float64 `json:"breath_waveform"`
}

// HeartRateReady is false until a non-zero median heart rate is available.
func (p Patient) HeartRateReady() bool { return p.MedianHeartRate != 0 }

// BreathRateReady is false until the device reports a non-zero breath rate.
func (p Patient) BreathRateReady() bool { return p.BreathRate != 0 }

type patientState struct {
	Patient
	heartRates *ring
	heart      *ring
	breath     *ring
}

// Tracker accumulates vital signs across frames. Safe for concurrent use.
type Tracker struct {
	conf Config

	mu        sync.Mutex
	patients  []*patientState
	numTracks int
}

// ConfigFor sizes a Tracker for a parsed sensor cfg.
func ConfigFor(sc *cfg.SensorConfig) Config {
	c := Config{}
	if sc == nil {
		return c
	}
	if sc.Device.LowPower() {
		c.WaveformLen = LowPowerWaveformLen
	}
	if sc.MaxTracks != nil && *sc.MaxTracks > 0 && *sc.MaxTracks < DefaultMaxPatients {
		c.MaxPatients = *sc.MaxTracks
	}
	return c
}

func NewTracker(conf Config) *Tracker {
	if conf.MaxPatients <= 0 {
		conf.MaxPatients = DefaultMaxPatients
	}
	if conf.WaveformLen <= 0 {
		conf.WaveformLen = DefaultWaveformLen
	}
	if conf.RateHistory <= 0 {
		conf.RateHistory = DefaultRateHistory
	}
	t := &Tracker{conf: conf, numTracks: -1}
	for i := 0; i < conf.MaxPatients; i++ {
		t.patients = append(t.patients, &patientState{
			Patient:    Patient{ID: i, Status: StatusUnknown},
			heartRates: newRing(conf.RateHistory),
			heart:      newRing(conf.WaveformLen),
			breath:     newRing(conf.WaveformLen),
		})
	}
	return t
}

// hasTrackList reports whether the frame carried a tracker target list, in
// which case len(f.Tracks) is the current track count.
func hasTrackList(f *parse.Frame) bool {
	for _, typ := range f.TLVTypes {
		if typ == parse.TLVTrackerTargetList || typ == parse.TLVExtTargetList {
			return true
		}
	}
	return false
}

// Update folds one frame in. It reports whether a patient slot changed.
// Vitals are ignored until a track list has been seen, and for the
// placeholder id or ids beyond MaxPatients.
func (t *Tracker) Update(f *parse.Frame) bool {
	if f == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if hasTrackList(f) {
		t.numTracks = len(f.Tracks)
	}
	v := f.Vitals
	if !v.Valid() || t.numTracks < 0 || int(v.ID) >= len(t.patients) {
		return false
	}

	p := t.patients[v.ID]
	p.Updates++
	p.RangeBin = v.RangeBin
	p.BreathDeviation = v.BreathDeviation
	p.BreathRate = v.BreathRate
	p.HeartRate = v.HeartRate

	p.heartRates.push(v.HeartRate)
	rates := p.heartRates.values()
	p.MedianHeartRate = median(rates)
	p.HeartRateMean, p.HeartRateStd = stat.Mean(rates, nil), 0
	if len(rates) > 1 {
		p.HeartRateStd = stat.StdDev(rates, nil)
	}

	heart, breath := v.HeartWaveform, v.BreathWaveform
	switch {
	case v.BreathDeviation == 0 || t.numTracks == 0:
		p.Status = StatusNoPatient
		// Keep the plot flat while nobody is there.
		heart = make([]float64, len(heart))
		breath = make([]float64, len(breath))
	case v.BreathDeviation >= BreathingThreshold:
		p.Status = StatusPresence
	default:
		p.Status = StatusHoldingBreath
	}
	for _, x := range heart {
		p.heart.push(x)
	}
	for _, x := range breath {
		p.breath.push(x)
	}
	return true
}

// Patients returns a snapshot of every slot, waveforms oldest first.
func (t *Tracker) Patients() []Patient {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Patient, len(t.patients))
	for i, p := range t.patients {
		out[i] = p.Patient
		out[i].HeartWaveform = p.heart.values()
		out[i].BreathWaveform = p.breath.values()
	}
	return out
}

// median averages the middle pair for even counts. x is not modified.
func median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}

// ring keeps the newest cap values.
type ring struct {
	buf  []float64
	next int
	full bool
}

func newRing(n int) *ring { return &ring{buf: make([]float64, n)} }

func (r *ring) push(x float64) {
	r.buf[r.next] = x
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) values() []float64 {
	if !r.full {
		return append([]float64(nil), r.buf[:r.next]...)
	}
	out := make([]float64, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
