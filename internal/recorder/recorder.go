// Package recorder captures the raw frame bytes read from a sensor and plays
// them back as a byte stream.
//
// A recording is a directory holding pHistBytes_N.bin chunk files (N from 1)
// of FramesPerChunk frames each, a header.json and an index.bin seek index.
// Directories holding only chunk files replay too.
package recorder

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/mmwave.report/internal/timeutil"
)

const (
	// DefaultFramesPerChunk is how many frames go in each chunk file.
	DefaultFramesPerChunk = 100
	HeaderFile            = "header.json"
	IndexFile             = "index.bin"
	FormatVersion         = "1.0"
)

var ErrClosed = errors.New("recorder is closed")

// ChunkName is the file name of chunk n.
func ChunkName(n int) string {
	return fmt.Sprintf("pHistBytes_%d.bin", n)
}

// LogHeader contains metadata about a recording.
type LogHeader struct {
	Version        string `json:"version"`
	SessionID      string `json:"session_id"`
	Device         string `json:"device"`
	CreatedNs      int64  `json:"created_ns"`
	FramesPerChunk int    `json:"frames_per_chunk"`
	Chunks         int    `json:"chunks"`
	TotalFrames    uint64 `json:"total_frames"`
	TotalBytes     uint64 `json:"total_bytes"`
	StartNs        int64  `json:"start_ns"`
	EndNs          int64  `json:"end_ns"`
}

// IndexEntry locates one frame. index.bin is a packed little-endian array
// of these.
type IndexEntry struct {
	Seq         uint64
	TimestampNs int64
	Chunk       uint32
	Offset      uint32
	Length      uint32
}

// Recorder appends raw frames to chunk files.
type Recorder struct {
	basePath       string
	framesPerChunk int
	clock          timeutil.Clock

	header      LogHeader
	index       []IndexEntry
	chunk       int
	chunkFile   *os.File
	chunkOffset uint32

	mu     sync.Mutex
	closed bool
}

// Options configures a Recorder. Zero values pick defaults.
type Options struct {
	Device         string
	FramesPerChunk int
	Clock          timeutil.Clock
	// SessionID defaults to a new random UUID.
	SessionID string
}

// NewRecorder creates a Recorder writing to basePath. If basePath is empty a
// timestamped directory is created in the temp dir.
func NewRecorder(basePath string, opts Options) (*Recorder, error) {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.FramesPerChunk <= 0 {
		opts.FramesPerChunk = DefaultFramesPerChunk
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	now := opts.Clock.Now()
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("mmwave_%s_%d", opts.Device, now.Unix()))
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	return &Recorder{
		basePath:       basePath,
		framesPerChunk: opts.FramesPerChunk,
		clock:          opts.Clock,
		header: LogHeader{
			Version:        FormatVersion,
			SessionID:      opts.SessionID,
			Device:         opts.Device,
			CreatedNs:      now.UnixNano(),
			FramesPerChunk: opts.FramesPerChunk,
		},
	}, nil
}

// Record appends one frame. raw is copied to disk before Record returns, so
// it fits uart.Options.OnFrame.
func (r *Recorder) Record(raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	ts := r.clock.Now().UnixNano()
	if r.header.TotalFrames == 0 {
		r.header.StartNs = ts
	}
	r.header.EndNs = ts

	chunk := int(r.header.TotalFrames/uint64(r.framesPerChunk)) + 1
	if chunk != r.chunk {
		if err := r.rotateChunk(chunk); err != nil {
			return err
		}
	}

	if _, err := r.chunkFile.Write(raw); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	r.index = append(r.index, IndexEntry{
		Seq:         r.header.TotalFrames,
		TimestampNs: ts,
		Chunk:       uint32(chunk),
		Offset:      r.chunkOffset,
		Length:      uint32(len(raw)),
	})
	r.chunkOffset += uint32(len(raw))
	r.header.TotalFrames++
	r.header.TotalBytes += uint64(len(raw))
	return nil
}

// RecordFunc adapts Record for uart.Options.OnFrame, reporting write errors
// to onErr.
func (r *Recorder) RecordFunc(onErr func(error)) func(raw []byte) {
	return func(raw []byte) {
		if err := r.Record(raw); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

func (r *Recorder) rotateChunk(chunk int) error {
	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return err
		}
	}
	f, err := os.Create(filepath.Join(r.basePath, ChunkName(chunk)))
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}
	r.chunkFile = f
	r.chunk = chunk
	r.chunkOffset = 0
	r.header.Chunks = chunk
	return nil
}

// Close flushes the last chunk and writes the header and index.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return fmt.Errorf("failed to close chunk file: %w", err)
		}
	}

	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.basePath, HeaderFile), headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	indexFile, err := os.Create(filepath.Join(r.basePath, IndexFile))
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer indexFile.Close()
	if err := binary.Write(indexFile, binary.LittleEndian, r.index); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// Path returns the recording directory.
func (r *Recorder) Path() string {
	return r.basePath
}

// Header returns a snapshot of the header as it stands.
func (r *Recorder) Header() LogHeader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header
}

// FrameCount returns the number of frames recorded.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header.TotalFrames
}
