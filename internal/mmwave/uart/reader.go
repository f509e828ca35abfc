// Package uart finds frames in the byte stream of a TI mmWave data port and
// hands them to the TLV parser.
package uart

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
)

var (
	// ErrFrameLength is returned when the length after the magic word is
	// smaller than a header or larger than MaxFrameBytes.
	ErrFrameLength = errors.New("implausible frame length")
)

// TimeoutGuidance is appended to read timeout log lines.
const TimeoutGuidance = "check that the device is in the proper mode and that the cfg sent to it is valid"

const (
	DefaultChunkSize       = 4096
	DefaultTimeoutLogEvery = 10
)

// Options configures a Reader. Zero values pick defaults.
type Options struct {
	// Parser decodes frames for Next. Defaults to parse.DefaultParser.
	Parser *parse.Parser
	// MaxFrameBytes bounds the declared frame length.
	MaxFrameBytes int
	// ChunkSize is the size of each read from the source.
	ChunkSize int
	// TimeoutLogEvery logs one in every N consecutive empty reads. The first
	// empty read is always logged.
	TimeoutLogEvery int
	// OnFrame, if set, receives the raw bytes of every frame read, magic
	// word included. The slice must not be retained.
	OnFrame func(raw []byte)
}

// Stats counts what the Reader has seen. Safe to read from other goroutines.
type Stats struct {
	FramesRead     uint64 `json:"frames_read"`
	ShortFrames    uint64 `json:"short_frames"`
	BadLengths     uint64 `json:"bad_lengths"`
	BytesDiscarded uint64 `json:"bytes_discarded"`
	Timeouts       uint64 `json:"timeouts"`
}

// Reader synchronises on the magic word and reads whole frames. A read that
// returns no bytes and no error is a device timeout: it is logged and
// retried while waiting for a frame, and cuts a frame short once one has
// started.
//
// Reader is not safe for concurrent use; one goroutine owns the source.
type Reader struct {
	src  io.Reader
	opts Options

	buf   []byte // unread bytes from the last source read
	chunk []byte

	consecutiveTimeouts int

	framesRead     atomic.Uint64
	shortFrames    atomic.Uint64
	badLengths     atomic.Uint64
	bytesDiscarded atomic.Uint64
	timeouts       atomic.Uint64
}

func NewReader(src io.Reader, opts Options) *Reader {
	if opts.Parser == nil {
		opts.Parser = parse.DefaultParser
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = parse.MAX_SANE_FRAME_BYTES
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.TimeoutLogEvery <= 0 {
		opts.TimeoutLogEvery = DefaultTimeoutLogEvery
	}
	return &Reader{
		src:   src,
		opts:  opts,
		chunk: make([]byte, opts.ChunkSize),
	}
}

func (r *Reader) Stats() Stats {
	return Stats{
		FramesRead:     r.framesRead.Load(),
		ShortFrames:    r.shortFrames.Load(),
		BadLengths:     r.badLengths.Load(),
		BytesDiscarded: r.bytesDiscarded.Load(),
		Timeouts:       r.timeouts.Load(),
	}
}

// fill performs one read from the source. It reports false on a timeout.
func (r *Reader) fill(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		r.buf = append(r.buf, r.chunk[:n]...)
		r.consecutiveTimeouts = 0
		// A source may return data and io.EOF together; keep the data.
		if err == io.EOF {
			err = nil
		}
		return true, err
	}
	if err != nil {
		return false, err
	}
	r.timeouts.Add(1)
	if r.consecutiveTimeouts%r.opts.TimeoutLogEvery == 0 {
		opsf("read timeout, no data from device (%d consecutive); %s", r.consecutiveTimeouts+1, TimeoutGuidance)
	}
	r.consecutiveTimeouts++
	return false, nil
}

// Sync consumes bytes until the full magic word has been read.
//
// On a mismatch the partial match is dropped and the offending byte is
// compared again from the start of the pattern before a new byte is read.
func (r *Reader) Sync(ctx context.Context) error {
	magic := parse.MagicWord()
	idx := 0
	var discarded uint64
	defer func() {
		if discarded > 0 {
			r.bytesDiscarded.Add(discarded)
			diagf("resync discarded %d bytes", discarded)
		}
	}()
	for {
		for len(r.buf) == 0 {
			if _, err := r.fill(ctx); err != nil {
				return err
			}
		}
		b := r.buf[0]
		r.buf = r.buf[1:]
		for {
			if b == magic[idx] {
				idx++
				break
			}
			if idx == 0 {
				discarded++
				break
			}
			discarded += uint64(idx)
			idx = 0
		}
		if idx == len(magic) {
			return nil
		}
	}
}

// readN returns up to n bytes. It stops early on a timeout and reports
// io.ErrUnexpectedEOF alongside the partial bytes.
func (r *Reader) readN(ctx context.Context, n int) ([]byte, error) {
	for len(r.buf) < n {
		ok, err := r.fill(ctx)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			out := r.take(len(r.buf))
			return out, err
		}
		if !ok {
			return r.take(len(r.buf)), io.ErrUnexpectedEOF
		}
	}
	return r.take(n), nil
}

func (r *Reader) take(n int) []byte {
	out := make([]byte, n)
	copy(out, r.buf[:n])
	r.buf = r.buf[n:]
	return out
}

// ReadFrame synchronises and returns the raw bytes of the next frame,
// starting at the magic word. A frame cut short by a timeout is returned
// as-is so the parser can flag it.
func (r *Reader) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := r.Sync(ctx); err != nil {
		return nil, err
	}
	frame := append(make([]byte, 0, 64), parse.MagicWord()...)

	lenBytes, err := r.readN(ctx, 8)
	frame = append(frame, lenBytes...)
	if err != nil {
		if err == io.ErrUnexpectedEOF && ctx.Err() == nil {
			r.shortFrames.Add(1)
			opsf("frame cut short before its length field (%d bytes)", len(frame))
			return frame, nil
		}
		return nil, err
	}

	total := int(binary.LittleEndian.Uint32(lenBytes[4:8]))
	if total < parse.FRAME_HEADER_SIZE || total > r.opts.MaxFrameBytes {
		r.badLengths.Add(1)
		opsf("declared frame length %d outside [%d, %d], resyncing", total, parse.FRAME_HEADER_SIZE, r.opts.MaxFrameBytes)
		return nil, fmt.Errorf("%w: %d", ErrFrameLength, total)
	}

	rest, err := r.readN(ctx, total-len(frame))
	frame = append(frame, rest...)
	switch {
	case err == nil:
	case err == io.ErrUnexpectedEOF && ctx.Err() == nil:
		r.shortFrames.Add(1)
		opsf("frame cut short: %d of %d bytes", len(frame), total)
	default:
		return nil, err
	}

	r.framesRead.Add(1)
	tracef("frame read: %d bytes", len(frame))
	if r.opts.OnFrame != nil {
		r.opts.OnFrame(frame)
	}
	return frame, nil
}

// Next reads and decodes the next frame. Frames whose declared length is
// implausible come back with parse.ErrHeader so callers see every failure;
// source errors and context cancellation end the stream.
func (r *Reader) Next(ctx context.Context) (*parse.Frame, error) {
	raw, err := r.ReadFrame(ctx)
	if errors.Is(err, ErrFrameLength) {
		return &parse.Frame{Error: parse.ErrHeader}, nil
	}
	if err != nil {
		return nil, err
	}
	return r.opts.Parser.Parse(raw), nil
}
