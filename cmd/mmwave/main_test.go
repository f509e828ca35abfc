package main

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/mmwave.report/internal/config"
	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/recorder"
	"github.com/banshee-data/mmwave.report/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func writeRecording(t *testing.T, frames ...[]byte) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "capture")
	rec, err := recorder.NewRecorder(dir, recorder.Options{Device: "xWR6843", FramesPerChunk: 2})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for _, f := range frames {
		if err := rec.Record(f); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return dir
}

func TestMockFrameDecodes(t *testing.T) {
	f := parse.Parse(mockFrame())
	if f.Error != parse.ErrNone {
		t.Fatalf("mock frame error = %v", f.ErrorSummary())
	}
	if got := len(f.DetectedPoints()); got != 2 {
		t.Errorf("mock frame points = %d, want 2", got)
	}
}

func TestRunReplayPersistsAndRecords(t *testing.T) {
	capture := writeRecording(t,
		testutil.PointFrame(1, [4]float32{1, 2, 0, 0}),
		testutil.Frame(parse.Header{FrameNumber: 2}, testutil.Tracks3D(parse.Track{ID: 1, PosY: 2})),
		testutil.PointFrame(3),
	)
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "run.db")
	rerecord := filepath.Join(tmp, "rerecord")
	conf := &config.AppConfig{
		DBPath:     ptr(dbPath),
		ListenAddr: ptr("127.0.0.1:0"),
		RecordDir:  ptr(rerecord),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := run(ctx, runOptions{conf: conf, replayPath: capture, sendCfg: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("run only returned at the deadline; a finished replay should end it")
	}

	store, err := db.OpenDB(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	sessions, err := store.ListSessions(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	sess := sessions[0]
	if sess.Frames != 3 {
		t.Errorf("stored frames = %d, want 3", sess.Frames)
	}
	if sess.EndedAt == nil {
		t.Error("session was not ended")
	}
	if sess.Source != "replay:"+capture {
		t.Errorf("source = %q", sess.Source)
	}

	rp, err := recorder.NewReplayer(rerecord)
	if err != nil {
		t.Fatalf("re-recording: %v", err)
	}
	defer rp.Close()
	if rp.TotalFrames() != 3 {
		t.Errorf("re-recorded frames = %d, want 3", rp.TotalFrames())
	}
	if rp.Header().SessionID != sess.ID {
		t.Errorf("recording session %q, database session %q", rp.Header().SessionID, sess.ID)
	}
}

func TestRunMockServesFrames(t *testing.T) {
	conf := &config.AppConfig{ListenAddr: ptr("127.0.0.1:0")}
	ready := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, runOptions{conf: conf, mock: true, noDB: true, ready: ready})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server never became ready")
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/api/frames/latest?summary=1")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("no frame served before the deadline (last err %v)", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRunRejectsConflictingSources(t *testing.T) {
	conf := &config.AppConfig{UDPAddr: ptr("127.0.0.1:0")}
	err := run(context.Background(), runOptions{conf: conf, mock: true, noDB: true})
	if err == nil || !strings.Contains(err.Error(), "choose one frame source") {
		t.Errorf("expected source conflict, got %v", err)
	}
}

func TestRunListenFailureStopsWorkers(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	conf := &config.AppConfig{ListenAddr: ptr(busy.Addr().String())}
	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), runOptions{conf: conf, mock: true, noDB: true})
	}()
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "failed to listen") {
			t.Fatalf("run error = %v, want listen failure", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after the listen failure")
	}
}

func TestRunMissingReplay(t *testing.T) {
	conf := &config.AppConfig{ListenAddr: ptr("127.0.0.1:0")}
	err := run(context.Background(), runOptions{conf: conf, noDB: true, replayPath: filepath.Join(t.TempDir(), "gone")})
	if err == nil {
		t.Error("expected an error for a missing replay")
	}
}

func TestApplyOverrides(t *testing.T) {
	oldDevice, oldDB, oldDiag := *device, *dbPath, *diagLog
	t.Cleanup(func() { *device, *dbPath, *diagLog = oldDevice, oldDB, oldDiag })

	*device = "xWRL6432"
	*dbPath = "other.db"
	*diagLog = true
	conf := &config.AppConfig{DBPath: ptr("file.db"), CLIPort: ptr("/dev/ttyACM0")}
	applyOverrides(conf, map[string]bool{"device": true, "diag": true})

	if conf.GetDevice().Name != "xWRL6432" {
		t.Errorf("device = %s", conf.GetDevice().Name)
	}
	if conf.GetDBPath() != "file.db" {
		t.Errorf("unset -db flag replaced db_path: %s", conf.GetDBPath())
	}
	if !conf.GetDiagLog() {
		t.Error("diag flag not applied")
	}
	if conf.GetCLIPort() != "/dev/ttyACM0" {
		t.Errorf("cli port = %s", conf.GetCLIPort())
	}
}

func TestLoadConfigRejectsUnknownDevice(t *testing.T) {
	old := *device
	t.Cleanup(func() { *device = old })
	*device = "IWR1443"
	if _, err := loadConfig(map[string]bool{"device": true}); err == nil {
		t.Error("expected unknown device to be rejected")
	}
}

func TestDescribeSource(t *testing.T) {
	o := runOptions{conf: &config.AppConfig{CLIPort: ptr("/dev/ttyACM0"), Device: ptr("xWRL1432")}}
	if got := o.describe(sourceLive); got != "/dev/ttyACM0" {
		t.Errorf("single-COM live source = %q", got)
	}
	o.conf.Device = ptr("xWR6843")
	if got := o.describe(sourceLive); got != "/dev/ttyUSB1" {
		t.Errorf("two-port live source = %q", got)
	}
	o.pcapPath, o.pcapPort = "cap.pcapng", 7000
	if got := o.describe(sourcePCAP); got != "pcap:cap.pcapng:7000" {
		t.Errorf("pcap source = %q", got)
	}
}
