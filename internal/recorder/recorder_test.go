package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/mmwave/uart"
	"github.com/banshee-data/mmwave.report/internal/testutil"
	"github.com/banshee-data/mmwave.report/internal/timeutil"
)

func record(t *testing.T, dir string, opts Options, frames ...[]byte) *Recorder {
	t.Helper()
	rec, err := NewRecorder(dir, opts)
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, rec.Record(f))
	}
	require.NoError(t, rec.Close())
	return rec
}

func TestRecorder_ChunksNumberFromOne(t *testing.T) {
	dir := t.TempDir()
	var frames [][]byte
	for i := 0; i < 5; i++ {
		frames = append(frames, testutil.PointFrame(uint32(i), [4]float32{float32(i), 0, 0, 0}))
	}
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	rec := record(t, dir, Options{Device: "xWR6843", FramesPerChunk: 2, Clock: clock, SessionID: "s1"}, frames...)

	for _, n := range []int{1, 2, 3} {
		assert.FileExists(t, filepath.Join(dir, ChunkName(n)))
	}
	assert.NoFileExists(t, filepath.Join(dir, ChunkName(0)))
	assert.NoFileExists(t, filepath.Join(dir, ChunkName(4)))

	chunk1, err := os.ReadFile(filepath.Join(dir, ChunkName(1)))
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, frames[0]...), frames[1]...), chunk1)

	h := rec.Header()
	assert.Equal(t, uint64(5), h.TotalFrames)
	assert.Equal(t, 3, h.Chunks)
	assert.Equal(t, "s1", h.SessionID)
	assert.Equal(t, "xWR6843", h.Device)

	var onDisk LogHeader
	data, err := os.ReadFile(filepath.Join(dir, HeaderFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, h, onDisk)
}

func TestRecorder_DefaultSessionIDAndPath(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	rec, err := NewRecorder("", Options{Device: "xWRL6432"})
	require.NoError(t, err)
	defer rec.Close()

	assert.DirExists(t, rec.Path())
	assert.Contains(t, filepath.Base(rec.Path()), "mmwave_xWRL6432_")
	assert.Len(t, rec.Header().SessionID, 36)
	assert.Equal(t, DefaultFramesPerChunk, rec.Header().FramesPerChunk)
}

func TestRecorder_RecordAfterClose(t *testing.T) {
	rec := record(t, t.TempDir(), Options{})
	assert.ErrorIs(t, rec.Record([]byte{1}), ErrClosed)
	assert.NoError(t, rec.Close())
}

func TestReplayer_SeekAndReadFrame(t *testing.T) {
	dir := t.TempDir()
	frames := [][]byte{
		testutil.PointFrame(10, [4]float32{1, 0, 0, 0}),
		testutil.PointFrame(11, [4]float32{2, 0, 0, 0}, [4]float32{3, 0, 0, 0}),
		testutil.PointFrame(12),
	}
	record(t, dir, Options{FramesPerChunk: 2}, frames...)

	rp, err := NewReplayer(dir)
	require.NoError(t, err)
	defer rp.Close()
	require.Equal(t, 3, rp.TotalFrames())

	require.NoError(t, rp.Seek(2))
	raw, entry, err := rp.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, frames[2], raw)
	assert.Equal(t, uint32(2), entry.Chunk)
	assert.Equal(t, uint32(0), entry.Offset)

	_, _, err = rp.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, rp.Seek(1))
	raw, entry, err = rp.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, frames[1], raw)
	assert.Equal(t, uint32(len(frames[0])), entry.Offset)
	assert.Equal(t, uint64(1), entry.Seq)

	assert.Error(t, rp.Seek(3))
	assert.Error(t, rp.Seek(-1))
}

func TestReplayer_StreamDecodesThroughUART(t *testing.T) {
	dir := t.TempDir()
	var want []uint32
	var frames [][]byte
	for i := uint32(0); i < 7; i++ {
		frames = append(frames, testutil.PointFrame(i, [4]float32{1, 2, 3, 4}))
		want = append(want, i)
	}
	record(t, dir, Options{FramesPerChunk: 3}, frames...)

	src, err := Open(dir)
	require.NoError(t, err)
	defer src.Close()

	r := uart.NewReader(src, uart.Options{ChunkSize: 100})
	var got []uint32
	for {
		f, err := r.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		require.Equal(t, parse.ErrNone, f.Error)
		got = append(got, f.FrameNumber)
	}
	assert.Equal(t, want, got)
}

func TestReplayer_ChunksWithoutIndex(t *testing.T) {
	dir := t.TempDir()
	a := testutil.PointFrame(1)
	b := testutil.PointFrame(2)
	// Numeric order, not lexical: 10 sorts after 2.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChunkName(10)), b, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChunkName(2)), a, 0644))

	rp, err := NewReplayer(dir)
	require.NoError(t, err)
	defer rp.Close()

	all, err := io.ReadAll(rp)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, a...), b...), all)

	_, _, err = rp.ReadFrame()
	assert.ErrorIs(t, err, ErrNoIndex)
	assert.ErrorIs(t, rp.Seek(0), ErrNoIndex)
}

func TestReplayer_Errors(t *testing.T) {
	_, err := NewReplayer(t.TempDir())
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChunkName(1)), []byte{1}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), []byte{1, 2, 3}, 0644))
	_, err = NewReplayer(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, HeaderFile), []byte("{"), 0644))
	_, err = NewReplayer(dir)
	assert.Error(t, err)
}

func TestRecorder_AsOnFrameHook(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, Options{})
	require.NoError(t, err)

	stream := append(testutil.PointFrame(1), testutil.PointFrame(2)...)
	var errs []error
	r := uart.NewReader(bytes.NewReader(stream), uart.Options{
		OnFrame: rec.RecordFunc(func(err error) { errs = append(errs, err) }),
	})
	for {
		if _, err := r.Next(context.Background()); err != nil {
			break
		}
	}
	require.NoError(t, rec.Close())
	assert.Empty(t, errs)
	assert.Equal(t, uint64(2), rec.FrameCount())

	data, err := os.ReadFile(filepath.Join(dir, ChunkName(1)))
	require.NoError(t, err)
	assert.Equal(t, stream, data)
}

func TestOpen_FlatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.bin")
	frame := testutil.PointFrame(4)
	require.NoError(t, os.WriteFile(path, frame, 0644))

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()
	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	_, err = Open(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
