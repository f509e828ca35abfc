package parse

import (
	"encoding/binary"
	"math"
)

type testTLV struct {
	typ     TLVType
	payload []byte
}

// buildFrame assembles a wire frame. Zero NumTLVs and TotalPacketLen in h are
// filled from the TLVs; the frame is zero-padded to FRAME_ALIGNMENT.
func buildFrame(h Header, tlvs ...testTLV) []byte {
	if h.NumTLVs == 0 {
		h.NumTLVs = uint32(len(tlvs))
	}
	body := []byte{}
	for _, t := range tlvs {
		body = binary.LittleEndian.AppendUint32(body, uint32(t.typ))
		body = binary.LittleEndian.AppendUint32(body, uint32(len(t.payload)))
		body = append(body, t.payload...)
	}
	n := FRAME_HEADER_SIZE + len(body)
	padded := (n + FRAME_ALIGNMENT - 1) / FRAME_ALIGNMENT * FRAME_ALIGNMENT
	if h.TotalPacketLen == 0 {
		h.TotalPacketLen = uint32(padded)
	}
	out := AppendHeader(make([]byte, 0, padded), h)
	out = append(out, body...)
	return append(out, make([]byte, padded-n)...)
}

func f32le(vals ...float32) []byte {
	b := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func u16le(vals ...uint16) []byte {
	b := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint16(b, v)
	}
	return b
}

func i16le(vals ...int16) []byte {
	b := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b
}

func u32le(vals ...uint32) []byte {
	b := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// f32 rounds through float32 the way the wire does.
func f32(v float64) float64 { return float64(float32(v)) }
