package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/mmwave/cfg"
	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/mmwave/vitals"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
	"github.com/banshee-data/mmwave.report/internal/serialmux"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLatestFrame_NoneYet(t *testing.T) {
	s := NewServer(serialmux.NewDisabledSerialMux(), Options{})
	w := get(t, s.ServeMux(), "/api/frames/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No frame received yet")
}

func TestLatestFrame(t *testing.T) {
	m := drained(t,
		trackFrame(1, parse.Track{ID: 3, PosX: 1}),
		trackFrame(2, parse.Track{ID: 4, PosX: 2}, parse.Track{ID: 5, PosY: 1}),
	)
	s := NewServer(m, Options{})

	w := get(t, s.ServeMux(), "/api/frames/latest")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var f parse.Frame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, uint32(2), f.FrameNumber)
	require.Len(t, f.Tracks, 2)
	assert.Equal(t, uint32(4), f.Tracks[0].ID)
	assert.Equal(t, parse.ErrNone, f.Error)

	w = get(t, s.ServeMux(), "/api/frames/latest?summary=1")
	require.Equal(t, http.StatusOK, w.Code)
	var sum parse.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, parse.Summary{FrameNumber: 2, Points: 1, Tracks: 2, TLVs: 2}, sum)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(serialmux.NewDisabledSerialMux(), Options{DB: newTestDB(t)})
	for _, path := range []string{
		"/api/frames/latest", "/api/frames/recent", "/api/frames/tracks",
		"/api/session", "/api/sessions", "/api/config", "/api/vitals",
	} {
		w := httptest.NewRecorder()
		s.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
	}
}

func TestDBEndpointsWithoutDB(t *testing.T) {
	s := NewServer(serialmux.NewDisabledSerialMux(), Options{})
	for _, path := range []string{
		"/api/frames/recent", "/api/frames/tracks?id=1", "/api/sessions", "/api/serial/configs",
	} {
		w := get(t, s.ServeMux(), path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func recordSession(t *testing.T, d *db.DB, frames int) *db.Session {
	t.Helper()
	sess, err := d.StartSession("xWR6843", "/dev/ttyUSB1", "people.cfg", time.Unix(1700000000, 0))
	require.NoError(t, err)
	for i := 1; i <= frames; i++ {
		f := parse.Parse(trackFrame(uint32(i), parse.Track{ID: uint32(i), PosX: float64(i)}))
		_, err := d.RecordFrame(sess.ID, f, time.Unix(1700000000, int64(i)*int64(time.Millisecond)))
		require.NoError(t, err)
	}
	return sess
}

func TestRecentFrames(t *testing.T) {
	d := newTestDB(t)
	other := recordSession(t, d, 2)
	sess := recordSession(t, d, 3)
	s := NewServer(serialmux.NewDisabledSerialMux(), Options{DB: d, SessionID: sess.ID})

	w := get(t, s.ServeMux(), "/api/frames/recent?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var frames []db.FrameRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &frames))
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(3), frames[0].FrameNumber)
	assert.Equal(t, uint32(2), frames[1].FrameNumber)
	assert.Equal(t, sess.ID, frames[0].SessionID)

	w = get(t, s.ServeMux(), "/api/frames/recent?session="+other.ID)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &frames))
	assert.Len(t, frames, 2)

	w = get(t, s.ServeMux(), "/api/frames/recent?session=all")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &frames))
	assert.Len(t, frames, 5)

	w = get(t, s.ServeMux(), "/api/frames/recent?session=missing")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	for _, bad := range []string{"0", "-3", "ten"} {
		w = get(t, s.ServeMux(), "/api/frames/recent?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestFrameTracks(t *testing.T) {
	d := newTestDB(t)
	sess := recordSession(t, d, 1)
	frames, err := d.RecentFrames(sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	s := NewServer(serialmux.NewDisabledSerialMux(), Options{DB: d})
	w := get(t, s.ServeMux(), fmt.Sprintf("/api/frames/tracks?id=%d", frames[0].ID))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		FrameID int64         `json:"frame_id"`
		Tracks  []parse.Track `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, frames[0].ID, resp.FrameID)
	require.Len(t, resp.Tracks, 1)
	assert.Equal(t, uint32(1), resp.Tracks[0].ID)

	w = get(t, s.ServeMux(), "/api/frames/tracks?id=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSession(t *testing.T) {
	d := newTestDB(t)
	sess := recordSession(t, d, 2)
	m := drained(t, trackFrame(7), trackFrame(8))
	s := NewServer(m, Options{DB: d, SessionID: sess.ID})

	w := get(t, s.ServeMux(), "/api/session")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		SessionID string          `json:"session_id"`
		Stats     serialmux.Stats `json:"stats"`
		Session   *db.Session     `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, sess.ID, resp.SessionID)
	assert.Equal(t, uint64(2), resp.Stats.FramesRead)
	require.NotNil(t, resp.Session)
	assert.Equal(t, int64(2), resp.Session.Frames)
	assert.Equal(t, "xWR6843", resp.Session.Device)
}

func TestSessionWithoutDB(t *testing.T) {
	s := NewServer(serialmux.NewDisabledSerialMux(), Options{SessionID: "abc"})
	w := get(t, s.ServeMux(), "/api/session")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session_id":"abc"`)
	assert.NotContains(t, w.Body.String(), `"session":`)
}

func TestListSessions(t *testing.T) {
	d := newTestDB(t)
	recordSession(t, d, 1)
	recordSession(t, d, 0)
	s := NewServer(serialmux.NewDisabledSerialMux(), Options{DB: d})

	w := get(t, s.ServeMux(), "/api/sessions?limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []db.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 2)
}

const vitalsCfg = `% vital signs
channelCfg 15 7 0
chirpComnCfg 10 0 0 256 4 28 0
chirpTimingCfg 6 63 0 75 60
frameCfg 0 2 96 0 100.00 1 0
trackingCfg 1 2 800 1 46 96 55
sigProcChainCfg 32 2 3 2
measureRangeBiasAndRxChanPhase 1 0.5 0.2
`

func TestConfig(t *testing.T) {
	dev, err := cfg.LookupDevice("xWR6843")
	require.NoError(t, err)
	sc, err := cfg.Parse(strings.NewReader(vitalsCfg), dev)
	require.NoError(t, err)

	s := NewServer(serialmux.NewDisabledSerialMux(), Options{Sensor: sc, SessionID: "s1"})
	w := get(t, s.ServeMux(), "/api/config")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Version   string     `json:"version"`
		SessionID string     `json:"session_id"`
		Device    cfg.Device `json:"device"`
		Sensor    struct {
			MaxTracks       *int     `json:"max_tracks"`
			FramePeriodMs   float64  `json:"frame_period_ms"`
			RangeResolution float64  `json:"range_resolution_m"`
			RangeBins       int      `json:"range_bins"`
			MajorMotion     bool     `json:"major_motion"`
			MinorMotion     bool     `json:"minor_motion"`
			Commands        int      `json:"commands"`
			Calibration     []string `json:"calibration_issues"`
		} `json:"sensor"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.NotEmpty(t, resp.Version)
	assert.Equal(t, "xWR6843", resp.Device.Name)
	require.NotNil(t, resp.Sensor.MaxTracks)
	assert.Equal(t, 1, *resp.Sensor.MaxTracks)
	assert.InDelta(t, 100.0, resp.Sensor.FramePeriodMs, 1e-9)
	assert.Equal(t, 128, resp.Sensor.RangeBins)
	assert.Greater(t, resp.Sensor.RangeResolution, 0.0)
	assert.True(t, resp.Sensor.MajorMotion)
	assert.True(t, resp.Sensor.MinorMotion)
	assert.Equal(t, 7, resp.Sensor.Commands)
}

func TestConfigWithoutSensor(t *testing.T) {
	s := NewServer(serialmux.NewDisabledSerialMux(), Options{})
	w := get(t, s.ServeMux(), "/api/config")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"sensor"`)
}

func TestVitals(t *testing.T) {
	s := NewServer(serialmux.NewDisabledSerialMux(), Options{})
	assert.Equal(t, http.StatusNotFound, get(t, s.ServeMux(), "/api/vitals").Code)

	tracker := vitals.NewTracker(vitals.Config{})
	tracker.Update(parse.Parse(vitalsFrame(1, parse.Vitals{ID: 1, BreathDeviation: 0.5, HeartRate: 72, BreathRate: 14})))
	s = NewServer(serialmux.NewDisabledSerialMux(), Options{Vitals: tracker})

	w := get(t, s.ServeMux(), "/api/vitals")
	require.Equal(t, http.StatusOK, w.Code)
	var patients []vitals.Patient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &patients))
	require.Len(t, patients, 2)
	assert.Equal(t, vitals.StatusUnknown, patients[0].Status)
	assert.Equal(t, vitals.StatusPresence, patients[1].Status)
	assert.InDelta(t, 72, patients[1].MedianHeartRate, 1e-4)
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	prev := monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	s := NewServer(serialmux.NewDisabledSerialMux(), Options{})
	get(t, LoggingMiddleware(s.ServeMux()), "/api/frames/latest?x=1")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "/api/frames/latest?x=1")
	assert.Contains(t, lines[0], statusCodeColor(http.StatusNotFound))
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "100", statusCodeColor(100))
}
