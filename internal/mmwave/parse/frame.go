package parse

import (
	"errors"
	"fmt"
)

// ErrorCode classifies how far a frame got through decoding.
// When several conditions apply the lowest non-zero code wins.
type ErrorCode int

const (
	ErrNone           ErrorCode = 0 // fully decoded
	ErrHeader         ErrorCode = 1 // header unreadable, caller should resync
	ErrTLVHeader      ErrorCode = 2 // TLV header truncated, remaining TLVs skipped
	ErrLengthMismatch ErrorCode = 3 // warning only, frame is usable
	ErrTLVDecode      ErrorCode = 4 // at least one TLV payload failed to decode
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "ok"
	case ErrHeader:
		return "header"
	case ErrTLVHeader:
		return "tlv-header"
	case ErrLengthMismatch:
		return "length-mismatch"
	case ErrTLVDecode:
		return "tlv-decode"
	}
	return fmt.Sprintf("error(%d)", int(c))
}

// Usable reports whether consumers may read the frame's decoded fields.
func (c ErrorCode) Usable() bool {
	return c != ErrHeader && c != ErrTLVHeader
}

// worse keeps the higher-priority code of c and next.
func (c ErrorCode) worse(next ErrorCode) ErrorCode {
	if c == ErrNone || (next != ErrNone && next < c) {
		return next
	}
	return c
}

var (
	ErrShortHeader    = errors.New("frame shorter than header")
	ErrBadMagic       = errors.New("magic word mismatch")
	ErrShortTLVHeader = errors.New("TLV header truncated")
	ErrShortPayload   = errors.New("TLV payload shorter than one record")
	ErrMissingUnit    = errors.New("compressed point cloud missing unit record")
)

// Header is the fixed 40-byte frame header.
type Header struct {
	Magic          uint64 `json:"-"`
	Version        uint32 `json:"version"`
	TotalPacketLen uint32 `json:"total_packet_len"`
	Platform       uint32 `json:"platform"`
	FrameNumber    uint32 `json:"frame_number"`
	CPUCycles      uint32 `json:"cpu_cycles"`
	NumDetectedObj uint32 `json:"num_detected_obj"`
	NumTLVs        uint32 `json:"num_tlvs"`
	SubFrameNumber uint32 `json:"subframe_number"`
}

// Point is one detection. SNR and Noise stay zero unless the side info or a
// compressed point cloud carried them.
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Doppler    float64 `json:"doppler"`
	SNR        float64 `json:"snr"`
	Noise      float64 `json:"noise"`
	TrackIndex uint8   `json:"track_index"`
}

// Track is one tracker output. 2D lists leave the Z components at zero.
type Track struct {
	ID         uint32  `json:"tid"`
	PosX       float64 `json:"pos_x"`
	PosY       float64 `json:"pos_y"`
	PosZ       float64 `json:"pos_z"`
	VelX       float64 `json:"vel_x"`
	VelY       float64 `json:"vel_y"`
	VelZ       float64 `json:"vel_z"`
	AccX       float64 `json:"acc_x"`
	AccY       float64 `json:"acc_y"`
	AccZ       float64 `json:"acc_z"`
	G          float64 `json:"g"`
	Confidence float64 `json:"confidence"`
}

type TrackHeight struct {
	ID   uint32  `json:"tid"`
	MaxZ float64 `json:"max_z"`
	MinZ float64 `json:"min_z"`
}

// Vitals is the vital signs lab output for one patient.
type Vitals struct {
	ID              uint16    `json:"id"`
	RangeBin        uint16    `json:"range_bin"`
	BreathDeviation float64   `json:"breath_deviation"`
	HeartRate       float64   `json:"heart_rate"`
	BreathRate      float64   `json:"breath_rate"`
	HeartWaveform   []float64 `json:"heart_waveform"`
	BreathWaveform  []float64 `json:"breath_waveform"`
}

// Valid is false for the placeholder written when the payload was unreadable.
func (v *Vitals) Valid() bool { return v != nil && v.ID != VITALS_INVALID_ID }

// GestureFeatures6843 names the ten features from the xWR6843 gesture lab.
type GestureFeatures6843 struct {
	WtDoppler     float64 `json:"wt_doppler"`
	WtDopplerPos  float64 `json:"wt_doppler_pos"`
	WtDopplerNeg  float64 `json:"wt_doppler_neg"`
	WtRange       float64 `json:"wt_range"`
	NumDetections float64 `json:"num_detections"`
	WtAzimuthMean float64 `json:"wt_azimuth_mean"`
	WtElevMean    float64 `json:"wt_elev_mean"`
	AzDoppCorr    float64 `json:"az_dopp_corr"`
	WtAzimuthStd  float64 `json:"wt_azimuth_std"`
	WtElevStd     float64 `json:"wt_elev_std"`
}

// Gesture is the x432 classifier result.
type Gesture struct {
	Index int8 `json:"index"`
	// KTO demos reuse the same TLV for the kick-to-open decision.
	KTO int8 `json:"kto"`
}

// ClassScores is one target's per-class probability, 0..1.
type ClassScores [NUM_CLASSES]float64

type Velocity struct {
	Speed     float64 `json:"speed"`
	Confident bool    `json:"confident"`
}

type ProcTime struct {
	InterFrameProcTimeUs uint32 `json:"inter_frame_proc_time_us"`
	TransmitOutTimeUs    uint32 `json:"transmit_out_time_us"`
}

// Power rails, in units of 100 uW.
type Power struct {
	Rail1v8   uint16 `json:"rail_1v8"`
	Rail3v3   uint16 `json:"rail_3v3"`
	Rail1v2   uint16 `json:"rail_1v2"`
	Rail1v2RF uint16 `json:"rail_1v2_rf"`
}

type Temperature struct {
	Rx  uint16 `json:"rx"`
	Tx  uint16 `json:"tx"`
	PM  uint16 `json:"pm"`
	DIG uint16 `json:"dig"`
}

type EgoMotion struct {
	Speed      float64 `json:"speed"`
	AlphaAngle float64 `json:"alpha_angle"`
}

// CamTriggers holds the BSD camera trigger bitmaps, bit i = track slot i.
type CamTriggers struct {
	ActiveTracks uint32    `json:"active_tracks"`
	Flags        [3]uint32 `json:"flags"`
}

// TLVFailure records one TLV whose payload could not be decoded.
type TLVFailure struct {
	Type   TLVType `json:"type"`
	Length uint32  `json:"length"`
	Err    error   `json:"-"`
}

func (f TLVFailure) Error() string {
	return fmt.Sprintf("%s (%d bytes): %v", f.Type, f.Length, f.Err)
}

// Frame is everything decoded from one frame. Optional fields are nil when
// their TLV did not appear. A Frame is not modified after Parse returns.
type Frame struct {
	Header
	Error    ErrorCode    `json:"error"`
	Failures []TLVFailure `json:"-"`

	// Points is sized from NumDetectedObj when the header decodes.
	// NumDetectedPoints is set once a geometry TLV filled it.
	Points            []Point `json:"points,omitempty"`
	NumDetectedPoints *int    `json:"num_detected_points,omitempty"`

	RangeProfile          []float64            `json:"range_profile,omitempty"`
	Tracks                []Track              `json:"tracks,omitempty"`
	Heights               []TrackHeight        `json:"heights,omitempty"`
	TrackIndexes          []uint8              `json:"track_indexes,omitempty"`
	Occupancy             []bool               `json:"occupancy,omitempty"`
	EnhancedPresence      []uint8              `json:"enhanced_presence,omitempty"`
	Vitals                *Vitals              `json:"vitals,omitempty"`
	Classifier            []ClassScores        `json:"classifier,omitempty"`
	GestureFeatures       *GestureFeatures6843 `json:"gesture_features,omitempty"`
	GestureProbabilities  []float64            `json:"gesture_probabilities,omitempty"`
	GestureFeatures6432   []float64            `json:"gesture_features_6432,omitempty"`
	Gesture               *Gesture             `json:"gesture,omitempty"`
	GesturePresence       *int8                `json:"gesture_presence,omitempty"`
	PresenceThreshold     *uint32              `json:"presence_threshold,omitempty"`
	SurfaceClassification *float64             `json:"surface_classification,omitempty"`
	Velocity              *Velocity            `json:"velocity,omitempty"`
	RXChanComp            []float64            `json:"rx_chan_comp,omitempty"`
	ProcTime              *ProcTime            `json:"proc_time,omitempty"`
	Power                 *Power               `json:"power,omitempty"`
	Temperature           *Temperature         `json:"temperature,omitempty"`
	EgoMotion             *EgoMotion           `json:"ego_motion,omitempty"`
	CamTriggers           *CamTriggers         `json:"cam_triggers,omitempty"`

	// TLVTypes lists every TLV type seen, in wire order.
	TLVTypes []TLVType `json:"tlv_types,omitempty"`
}

// DetectedPoints returns the populated prefix of the point arena, or nil if
// no geometry TLV was decoded.
func (f *Frame) DetectedPoints() []Point {
	if f == nil || f.NumDetectedPoints == nil {
		return nil
	}
	n := *f.NumDetectedPoints
	if n > len(f.Points) {
		n = len(f.Points)
	}
	return f.Points[:n]
}

func (f *Frame) setDetected(n int) {
	if n > len(f.Points) {
		n = len(f.Points)
	}
	f.NumDetectedPoints = &n
}

func (f *Frame) fail(t TLVType, length uint32, err error) {
	f.Failures = append(f.Failures, TLVFailure{Type: t, Length: length, Err: err})
	f.Error = f.Error.worse(ErrTLVDecode)
}
