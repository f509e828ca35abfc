package parse

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeHeader reads the fixed frame header from the start of data.
func DecodeHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < FRAME_HEADER_SIZE {
		return h, fmt.Errorf("%w: have %d bytes, need %d", ErrShortHeader, len(data), FRAME_HEADER_SIZE)
	}
	h.Magic = binary.LittleEndian.Uint64(data[0:8])
	if h.Magic != MAGIC_WORD {
		return h, fmt.Errorf("%w: got %#016x", ErrBadMagic, h.Magic)
	}
	h.Version = le32(data, 8)
	h.TotalPacketLen = le32(data, 12)
	h.Platform = le32(data, 16)
	h.FrameNumber = le32(data, 20)
	h.CPUCycles = le32(data, 24)
	h.NumDetectedObj = le32(data, 28)
	h.NumTLVs = le32(data, 32)
	h.SubFrameNumber = le32(data, 36)
	return h, nil
}

// AppendHeader encodes h after buf. Magic is always written as MAGIC_WORD.
func AppendHeader(buf []byte, h Header) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, MAGIC_WORD)
	for _, v := range []uint32{
		h.Version, h.TotalPacketLen, h.Platform, h.FrameNumber,
		h.CPUCycles, h.NumDetectedObj, h.NumTLVs, h.SubFrameNumber,
	} {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}
	return buf
}

func le16(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
func le32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }

func lef32(b []byte, off int) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
}

// f32s decodes n consecutive floats starting at off.
func f32s(b []byte, off, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lef32(b, off+4*i)
	}
	return out
}
