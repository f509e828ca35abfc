package api

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/serialmux"
	"github.com/banshee-data/mmwave.report/internal/testutil"
)

func trackFrame(n uint32, tracks ...parse.Track) []byte {
	return testutil.Frame(parse.Header{FrameNumber: n},
		testutil.PointCloud([4]float32{1, 2, 0.5, 0}),
		testutil.Tracks3D(tracks...))
}

func vitalsFrame(n uint32, v parse.Vitals) []byte {
	return testutil.Frame(parse.Header{FrameNumber: n},
		testutil.Tracks3D(parse.Track{ID: 0, PosY: 1}),
		testutil.VitalSigns(v))
}

// replayMux returns a mux whose single port replays frames back to back.
func replayMux(frames ...[]byte) *serialmux.SerialMux[*serialmux.ReplayPort] {
	port := serialmux.NewReplayPort(bytes.NewReader(bytes.Join(frames, nil)))
	return serialmux.NewSingleCOMSerialMux(port, serialmux.Options{SubscriberBuffer: 16})
}

// drained runs Monitor to the end of the replay.
func drained(t *testing.T, frames ...[]byte) *serialmux.SerialMux[*serialmux.ReplayPort] {
	t.Helper()
	m := replayMux(frames...)
	require.NoError(t, m.Monitor(context.Background()))
	t.Cleanup(func() { m.Close() })
	return m
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}
