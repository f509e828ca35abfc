package parse

import "fmt"

// Parser turns complete frame bytes into a Frame.
type Parser struct {
	Registry *Registry
	// Alignment is the padding the device applies to TotalPacketLen.
	// Values below 2 compare the unpadded byte count.
	Alignment int
}

// NewParser returns a Parser using the default registry and 32-byte alignment.
func NewParser() *Parser {
	return &Parser{Registry: DefaultRegistry(), Alignment: FRAME_ALIGNMENT}
}

// DefaultParser backs the package-level Parse.
var DefaultParser = NewParser()

// Parse decodes one frame with DefaultParser.
func Parse(data []byte) *Frame {
	return DefaultParser.Parse(data)
}

// Parse decodes one frame. data starts at the magic word. The returned frame
// always carries an ErrorCode; decoder failures never abort the TLV loop.
func (p *Parser) Parse(data []byte) *Frame {
	f := &Frame{}

	h, err := DecodeHeader(data)
	if err != nil {
		opsf("could not read frame header: %v", err)
		f.Error = ErrHeader
		return f
	}
	f.Header = h

	// A corrupted count must not allocate more points than the frame could hold.
	n := int(h.NumDetectedObj)
	if limit := len(data) / COMP_SPHERE_POINT_SIZE; n > limit {
		opsf("frame %d: numDetectedObj=%d exceeds what %d bytes can carry, clamping to %d",
			h.FrameNumber, h.NumDetectedObj, len(data), limit)
		n = limit
	}
	f.Points = make([]Point, n)
	for i := range f.Points {
		f.Points[i].TrackIndex = UNASSOCIATED_TRACK
	}

	// consumed advances by declared lengths, so a truncated TLV leaves it past
	// the end of data and the next header read fails.
	consumed := uint64(FRAME_HEADER_SIZE)
	size := uint64(len(data))
	for i := uint32(0); i < h.NumTLVs; i++ {
		if consumed+TLV_HEADER_SIZE > size {
			opsf("frame %d: TLV %d/%d header truncated at offset %d (frame %d bytes); subsequent frames may be dropped",
				h.FrameNumber, i+1, h.NumTLVs, consumed, len(data))
			f.Error = f.Error.worse(ErrTLVHeader)
			return f
		}
		typ := TLVType(le32(data, int(consumed)))
		length := le32(data, int(consumed)+4)
		consumed += TLV_HEADER_SIZE

		end := consumed + uint64(length)
		if end > size {
			tracef("frame %d: %s declares %d bytes, only %d present", h.FrameNumber, typ, length, size-consumed)
			end = size
		}
		f.TLVTypes = append(f.TLVTypes, typ)
		p.dispatch(typ, length, data[consumed:end], f)
		consumed += uint64(length)
	}

	f.Error = f.Error.worse(p.checkLength(f, consumed))
	return f
}

func (p *Parser) dispatch(typ TLVType, length uint32, payload []byte, f *Frame) {
	reg := p.Registry
	if reg == nil {
		reg = DefaultParser.Registry
	}
	if dec, ok := reg.Lookup(typ); ok {
		tracef("frame %d: decoding %s (%d bytes)", f.FrameNumber, typ, length)
		if err := dec(payload, f); err != nil {
			opsf("frame %d: %s decode failed: %v", f.FrameNumber, typ, err)
			f.fail(typ, length, err)
		}
		return
	}
	if reg.IsUnused(typ) {
		tracef("frame %d: no decoder for TLV type %d (%s)", f.FrameNumber, uint32(typ), typ)
		return
	}
	diagf("frame %d: invalid TLV type %d, length %d", f.FrameNumber, uint32(typ), length)
}

// checkLength compares the padded consumed byte count with the header.
func (p *Parser) checkLength(f *Frame, consumed uint64) ErrorCode {
	padded := consumed
	if a := uint64(p.Alignment); a > 1 {
		padded = (consumed + a - 1) / a * a
	}
	if padded != uint64(f.TotalPacketLen) {
		opsf("frame %d: packet length read %d (padded %d) does not match totalPacketLen %d; subsequent frames may be dropped",
			f.FrameNumber, consumed, padded, f.TotalPacketLen)
		return ErrLengthMismatch
	}
	return ErrNone
}

// ErrorSummary renders the per-TLV failures for logs and APIs.
func (f *Frame) ErrorSummary() string {
	if len(f.Failures) == 0 {
		return f.Error.String()
	}
	return fmt.Sprintf("%s: %d TLV failures, first: %v", f.Error, len(f.Failures), f.Failures[0])
}
