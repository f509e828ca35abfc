package serialmux

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/testutil"
)

func TestAdminRoutes_SendCommandAPI(t *testing.T) {
	mux, cli, _ := newCLIMux(t, "xWR6843", "Done\nmmwDemo:/>\n")
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	tests := []struct {
		name   string
		method string
		form   url.Values
		status int
		body   string
	}{
		{"valid command", http.MethodPost, url.Values{"command": {"sensorStop"}}, http.StatusOK, "mmwDemo:/>"},
		{"empty command", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest, "Missing command"},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed, "Method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.LocalRequest(tt.method, "/debug/send-command-api", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			httpMux.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
	assert.Equal(t, "sensorStop\n", string(cli.GetWrittenData()))
}

func TestAdminRoutes_PagesAndLatest(t *testing.T) {
	mux, data := newDataMux(t)
	defer mux.Close()
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, testutil.LocalRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/debug/send-command")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tail.js")

	w = get("/debug/tail.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "EventSource")

	assert.Equal(t, http.StatusNotFound, get("/debug/radar-latest").Code)

	_, ch := mux.Subscribe()
	cancel, _ := runMonitor(mux)
	defer cancel()
	data.AddReadData(testutil.PointFrame(21, [4]float32{1, 2, 3, 4}))
	recvFrame(t, ch)

	w = get("/debug/radar-latest")
	require.Equal(t, http.StatusOK, w.Code)
	var f parse.Frame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, uint32(21), f.FrameNumber)
	assert.Len(t, f.Points, 1)

	w = get("/debug/radar-stats")
	require.Equal(t, http.StatusOK, w.Code)
	var st Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, uint64(1), st.FramesRead)
}

func TestAdminRoutes_TailStreamsSummaries(t *testing.T) {
	mux, data := newDataMux(t)
	defer mux.Close()
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)
	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	cancel, _ := runMonitor(mux)
	defer cancel()

	resp, err := http.Get(srv.URL + "/debug/tail")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	require.Equal(t, ": ping", <-lines)
	data.AddReadData(testutil.PointFrame(33, [4]float32{1, 1, 1, 1}, [4]float32{2, 2, 2, 2}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var s parse.Summary
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &s))
			assert.Equal(t, uint32(33), s.FrameNumber)
			assert.Equal(t, 2, s.Points)
			return
		case <-deadline:
			t.Fatal("no SSE data")
		}
	}
}

func TestDisabledSerialMux_AdminRoute(t *testing.T) {
	httpMux := http.NewServeMux()
	NewDisabledSerialMux().AttachAdminRoutes(httpMux)
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "serial disabled", w.Body.String())
}
