// Package testutil builds synthetic mmWave frames and HTTP requests for
// tests in other packages.
package testutil

import (
	"encoding/binary"
	"io"
	"math"
	"net/http"
	"net/http/httptest"

	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
)

// TLV is one record to place in a synthetic frame.
type TLV struct {
	Type    parse.TLVType
	Payload []byte
}

// Frame assembles a wire frame. Zero NumTLVs, NumDetectedObj and
// TotalPacketLen in h are filled in; the frame is padded to 32 bytes.
func Frame(h parse.Header, tlvs ...TLV) []byte {
	if h.NumTLVs == 0 {
		h.NumTLVs = uint32(len(tlvs))
	}
	var body []byte
	for _, t := range tlvs {
		if h.NumDetectedObj == 0 && t.Type == parse.TLVDetectedPoints {
			h.NumDetectedObj = uint32(len(t.Payload) / parse.POINT_SIZE)
		}
		body = binary.LittleEndian.AppendUint32(body, uint32(t.Type))
		body = binary.LittleEndian.AppendUint32(body, uint32(len(t.Payload)))
		body = append(body, t.Payload...)
	}
	n := parse.FRAME_HEADER_SIZE + len(body)
	padded := (n + parse.FRAME_ALIGNMENT - 1) / parse.FRAME_ALIGNMENT * parse.FRAME_ALIGNMENT
	if h.TotalPacketLen == 0 {
		h.TotalPacketLen = uint32(padded)
	}
	out := parse.AppendHeader(make([]byte, 0, padded), h)
	out = append(out, body...)
	return append(out, make([]byte, padded-n)...)
}

// PointFrame is a frame numbered frameNum carrying a basic point cloud.
func PointFrame(frameNum uint32, pts ...[4]float32) []byte {
	return Frame(parse.Header{FrameNumber: frameNum, NumDetectedObj: uint32(len(pts))}, PointCloud(pts...))
}

// PointCloud is a TLV of (x, y, z, doppler) points.
func PointCloud(pts ...[4]float32) TLV {
	var b []byte
	for _, p := range pts {
		b = F32LE(b, p[:]...)
	}
	return TLV{Type: parse.TLVDetectedPoints, Payload: b}
}

// Tracks3D is a TrackerProc3DTargetList TLV. Covariance is zero.
func Tracks3D(tracks ...parse.Track) TLV {
	var b []byte
	for _, t := range tracks {
		b = binary.LittleEndian.AppendUint32(b, t.ID)
		b = F64AsF32LE(b, t.PosX, t.PosY, t.PosZ, t.VelX, t.VelY, t.VelZ, t.AccX, t.AccY, t.AccZ)
		b = append(b, make([]byte, 16*4)...)
		b = F64AsF32LE(b, t.G, t.Confidence)
	}
	return TLV{Type: parse.TLVTrackerTargetList, Payload: b}
}

// VitalSigns is a VitalSigns TLV. Waveforms shorter than 15 samples are
// zero-filled.
func VitalSigns(v parse.Vitals) TLV {
	b := binary.LittleEndian.AppendUint16(nil, v.ID)
	b = binary.LittleEndian.AppendUint16(b, v.RangeBin)
	b = F64AsF32LE(b, v.BreathDeviation, v.HeartRate, v.BreathRate)
	b = F64AsF32LE(b, padWave(v.HeartWaveform)...)
	b = F64AsF32LE(b, padWave(v.BreathWaveform)...)
	return TLV{Type: parse.TLVVitalSigns, Payload: b}
}

func padWave(w []float64) []float64 {
	out := make([]float64, parse.VITALS_WAVEFORM_LEN)
	copy(out, w)
	return out
}

// ExtStats is an ExtStats TLV.
func ExtStats(procUs, txUs uint32, power [4]uint16, temp [4]uint16) TLV {
	b := binary.LittleEndian.AppendUint32(nil, procUs)
	b = binary.LittleEndian.AppendUint32(b, txUs)
	for _, v := range append(power[:], temp[:]...) {
		b = binary.LittleEndian.AppendUint16(b, v)
	}
	return TLV{Type: parse.TLVExtStats, Payload: b}
}

// F32LE appends little-endian float32 values to b.
func F32LE(b []byte, vals ...float32) []byte {
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

// F64AsF32LE appends vals narrowed to float32.
func F64AsF32LE(b []byte, vals ...float64) []byte {
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v)))
	}
	return b
}

// LocalRequest creates an httptest request that appears to come from
// localhost, which tsweb debug routes require.
func LocalRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}
