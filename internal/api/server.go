// Package api serves decoded frames, session history and sensor settings
// over HTTP, and streams frames to websocket clients.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/mmwave.report/internal/db"
	"github.com/banshee-data/mmwave.report/internal/httputil"
	"github.com/banshee-data/mmwave.report/internal/mmwave/cfg"
	"github.com/banshee-data/mmwave.report/internal/mmwave/vitals"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
	"github.com/banshee-data/mmwave.report/internal/serialmux"
	"github.com/banshee-data/mmwave.report/internal/timeutil"
	"github.com/banshee-data/mmwave.report/internal/version"
)

// ANSI escape codes for request logs
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

// Options wires the optional parts of a Server. Nil fields disable the
// endpoints that need them.
type Options struct {
	DB        *db.DB
	Sensor    *cfg.SensorConfig
	Vitals    *vitals.Tracker
	SessionID string
	Clock     timeutil.Clock
	// PingInterval paces websocket keepalives.
	PingInterval time.Duration
}

type Server struct {
	m        serialmux.SerialMuxInterface
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(m serialmux.SerialMuxInterface, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = pingEvery
	}
	return &Server{
		m:    m,
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration. Websocket
// upgrades are passed through untouched since the wrapper cannot hijack.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/frames/latest", s.latestFrame)
	mux.HandleFunc("/api/frames/recent", s.recentFrames)
	mux.HandleFunc("/api/frames/tracks", s.frameTracks)
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/vitals", s.showVitals)
	mux.HandleFunc("/api/serial/configs", s.handleSerialConfigsOrCreate)
	mux.HandleFunc("/api/serial/configs/", s.handleSerialConfigByID)
	mux.HandleFunc("/api/ws", s.handleWS)
	return mux
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return false
	}
	return true
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.opts.DB == nil {
		httputil.ServiceUnavailable(w, "Database disabled")
		return false
	}
	return true
}

// limitParam reads ?limit=, defaulting and capping it.
func limitParam(r *http.Request) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return defaultRecentLimit, true
	}
	n, err := strconv.Atoi(l)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, maxRecentLimit), true
}

func (s *Server) latestFrame(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	f := s.m.Latest()
	if f == nil {
		httputil.NotFound(w, "No frame received yet")
		return
	}
	if r.URL.Query().Get("summary") == "1" {
		httputil.WriteJSON(w, http.StatusOK, f.Summary())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, f)
}

// recentFrames lists stored frame summaries, newest first. ?session=
// defaults to the running session; "all" lists every session.
func (s *Server) recentFrames(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) || !s.requireDB(w) {
		return
	}
	limit, ok := limitParam(r)
	if !ok {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return
	}
	session := r.URL.Query().Get("session")
	switch session {
	case "":
		session = s.opts.SessionID
	case "all":
		session = ""
	}
	frames, err := s.opts.DB.RecentFrames(session, limit)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve frames: "+err.Error())
		return
	}
	if frames == nil {
		frames = []db.FrameRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, frames)
}

func (s *Server) frameTracks(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) || !s.requireDB(w) {
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id < 1 {
		httputil.BadRequest(w, "Invalid 'id' parameter")
		return
	}
	tracks, err := s.opts.DB.FrameTracks(id)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve tracks: "+err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"frame_id": id, "tracks": tracks})
}

// showSession reports the running session and the reader counters.
func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	resp := map[string]any{
		"session_id": s.opts.SessionID,
		"stats":      s.m.Stats(),
	}
	if s.opts.DB != nil && s.opts.SessionID != "" {
		sess, err := s.opts.DB.GetSession(s.opts.SessionID)
		if err != nil {
			httputil.InternalServerError(w, "Failed to retrieve session: "+err.Error())
			return
		}
		if sess != nil {
			resp["session"] = sess
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) || !s.requireDB(w) {
		return
	}
	limit, ok := limitParam(r)
	if !ok {
		httputil.BadRequest(w, "Invalid 'limit' parameter")
		return
	}
	sessions, err := s.opts.DB.ListSessions(limit)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve sessions: "+err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

// sensorSummary is the /api/config view of a SensorConfig plus the values
// derived from it.
type sensorSummary struct {
	*cfg.SensorConfig
	FramePeriodMs   float64  `json:"frame_period_ms,omitempty"`
	RangeResolution float64  `json:"range_resolution_m,omitempty"`
	RangeBins       int      `json:"range_bins,omitempty"`
	MajorMotion     bool     `json:"major_motion"`
	MinorMotion     bool     `json:"minor_motion"`
	Calibration     []string `json:"calibration_issues,omitempty"`
	Commands        int      `json:"commands"`
}

func summarize(sc *cfg.SensorConfig) sensorSummary {
	out := sensorSummary{
		SensorConfig:  sc,
		FramePeriodMs: float64(sc.FramePeriod()) / float64(time.Millisecond),
		MajorMotion:   sc.MajorMotion(),
		MinorMotion:   sc.MinorMotion(),
		Commands:      len(sc.Commands()),
	}
	if res, err := sc.RangeResolution(); err == nil {
		out.RangeResolution = res
		out.RangeBins = sc.ChirpCommon.NumOfAdcSamples / 2
	}
	if sc.RangePhaseCal != nil {
		out.Calibration = sc.CalibrationIssues()
	}
	return out
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	resp := map[string]any{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"session_id": s.opts.SessionID,
	}
	if s.opts.Sensor != nil {
		resp["device"] = s.opts.Sensor.Device
		resp["sensor"] = summarize(s.opts.Sensor)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) showVitals(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	if s.opts.Vitals == nil {
		httputil.NotFound(w, "Vital signs tracking disabled")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.opts.Vitals.Patients())
}
