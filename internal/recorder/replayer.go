package recorder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNoIndex is returned by frame-level access on a recording that has no
// index.bin.
var ErrNoIndex = errors.New("recording has no index")

// Replayer reads a recording back. Read streams every chunk in order, which
// is the byte stream the device originally produced; ReadFrame and Seek use
// the index.
type Replayer struct {
	basePath string
	header   LogHeader
	index    []IndexEntry
	chunks   []int

	// frame access
	currentIdx  int
	loadedChunk int
	chunkData   []byte

	// stream access
	streamChunk int
	stream      *os.File
}

// NewReplayer opens the recording in basePath. header.json and index.bin are
// optional; without them the chunk files are replayed in numeric order.
func NewReplayer(basePath string) (*Replayer, error) {
	r := &Replayer{basePath: basePath, loadedChunk: -1}

	headerData, err := os.ReadFile(filepath.Join(basePath, HeaderFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(headerData, &r.header); err != nil {
			return nil, fmt.Errorf("failed to parse header: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	indexData, err := os.ReadFile(filepath.Join(basePath, IndexFile))
	switch {
	case err == nil:
		entrySize := binary.Size(IndexEntry{})
		if len(indexData)%entrySize != 0 {
			return nil, fmt.Errorf("index size %d is not a multiple of %d", len(indexData), entrySize)
		}
		r.index = make([]IndexEntry, len(indexData)/entrySize)
		if err := binary.Read(bytes.NewReader(indexData), binary.LittleEndian, r.index); err != nil {
			return nil, fmt.Errorf("failed to read index: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	r.chunks, err = listChunks(basePath)
	if err != nil {
		return nil, err
	}
	if len(r.chunks) == 0 {
		return nil, fmt.Errorf("no chunk files in %s", basePath)
	}
	return r, nil
}

// listChunks returns the chunk numbers present, ascending.
func listChunks(dir string) ([]int, error) {
	names, err := filepath.Glob(filepath.Join(dir, "pHistBytes_*.bin"))
	if err != nil {
		return nil, err
	}
	var chunks []int
	for _, name := range names {
		base := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(name), "pHistBytes_"), ".bin")
		n, err := strconv.Atoi(base)
		if err != nil {
			continue
		}
		chunks = append(chunks, n)
	}
	sort.Ints(chunks)
	return chunks, nil
}

func (r *Replayer) Header() LogHeader { return r.header }

// TotalFrames is the number of indexed frames.
func (r *Replayer) TotalFrames() int { return len(r.index) }

// Read implements io.Reader over the concatenated chunks.
func (r *Replayer) Read(p []byte) (int, error) {
	for {
		if r.stream == nil {
			if r.streamChunk >= len(r.chunks) {
				return 0, io.EOF
			}
			f, err := os.Open(filepath.Join(r.basePath, ChunkName(r.chunks[r.streamChunk])))
			if err != nil {
				return 0, fmt.Errorf("failed to open chunk: %w", err)
			}
			r.stream = f
		}
		n, err := r.stream.Read(p)
		if errors.Is(err, io.EOF) {
			r.stream.Close()
			r.stream = nil
			r.streamChunk++
			err = nil
			if n == 0 {
				continue
			}
		}
		return n, err
	}
}

// Seek positions ReadFrame at frame index frameIdx.
func (r *Replayer) Seek(frameIdx int) error {
	if r.index == nil {
		return ErrNoIndex
	}
	if frameIdx < 0 || frameIdx >= len(r.index) {
		return fmt.Errorf("frame index %d out of range [0, %d)", frameIdx, len(r.index))
	}
	r.currentIdx = frameIdx
	return nil
}

// ReadFrame returns the raw bytes of the next indexed frame and its entry.
func (r *Replayer) ReadFrame() ([]byte, IndexEntry, error) {
	if r.index == nil {
		return nil, IndexEntry{}, ErrNoIndex
	}
	if r.currentIdx >= len(r.index) {
		return nil, IndexEntry{}, io.EOF
	}
	entry := r.index[r.currentIdx]

	if int(entry.Chunk) != r.loadedChunk {
		if err := r.loadChunk(int(entry.Chunk)); err != nil {
			return nil, entry, err
		}
	}
	end := uint64(entry.Offset) + uint64(entry.Length)
	if end > uint64(len(r.chunkData)) {
		return nil, entry, fmt.Errorf("frame %d extends past chunk %d", entry.Seq, entry.Chunk)
	}

	r.currentIdx++
	return r.chunkData[entry.Offset:end], entry, nil
}

func (r *Replayer) loadChunk(chunk int) error {
	data, err := os.ReadFile(filepath.Join(r.basePath, ChunkName(chunk)))
	if err != nil {
		return fmt.Errorf("failed to read chunk: %w", err)
	}
	r.chunkData = data
	r.loadedChunk = chunk
	return nil
}

func (r *Replayer) Close() error {
	r.chunkData = nil
	if r.stream != nil {
		err := r.stream.Close()
		r.stream = nil
		return err
	}
	return nil
}

// Open returns a byte source for path: a recording directory is replayed
// through a Replayer, anything else is opened as a flat capture file.
func Open(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return NewReplayer(path)
	}
	return os.Open(path)
}
