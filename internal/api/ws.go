package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
	"github.com/banshee-data/mmwave.report/internal/mmwave/vitals"
	"github.com/banshee-data/mmwave.report/internal/monitoring"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

// wsMessage is the envelope for everything sent on /api/ws.
type wsMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Device    string           `json:"device,omitempty"`
	Frame     *parse.Frame     `json:"frame,omitempty"`
	Summary   *parse.Summary   `json:"summary,omitempty"`
	Patients  []vitals.Patient `json:"patients,omitempty"`
	Current   *parse.Vitals    `json:"current,omitempty"`
}

func writeMessage(conn *websocket.Conn, messageType int, payload []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}

func writeWSJSON(conn *websocket.Conn, msg wsMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return writeMessage(conn, websocket.TextMessage, payload)
}

// handleWS pushes every published frame to the client. With ?summary=1 the
// compact summary is sent instead of the full frame. Frames carrying vital
// signs are followed by a "vitals" message carrying that frame's reading and
// the patient snapshot. The tracker is fed on another subscription, so the
// snapshot may not include the reading yet.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	summaryOnly := r.URL.Query().Get("summary") == "1"

	id, frames := s.m.Subscribe()
	defer s.m.Unsubscribe(id)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Client messages are ignored; reading drives pong handling and notices
	// the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	hello := wsMessage{Type: "hello", SessionID: s.opts.SessionID}
	if s.opts.Sensor != nil {
		hello.Device = s.opts.Sensor.Device.Name
	}
	if err := writeWSJSON(conn, hello); err != nil {
		return
	}

	ticker := s.opts.Clock.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case f, ok := <-frames:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "frame source closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			msg := wsMessage{Type: "frame", Frame: f}
			if summaryOnly {
				sum := f.Summary()
				msg = wsMessage{Type: "summary", Summary: &sum}
			}
			if err := writeWSJSON(conn, msg); err != nil {
				if _, isJSON := err.(*json.UnsupportedValueError); isJSON {
					monitoring.Logf("websocket: skipping frame %d: %v", f.FrameNumber, err)
					continue
				}
				return
			}
			if s.opts.Vitals != nil && f.Vitals.Valid() {
				vm := wsMessage{Type: "vitals", Current: f.Vitals, Patients: s.opts.Vitals.Patients()}
				if err := writeWSJSON(conn, vm); err != nil {
					if _, isJSON := err.(*json.UnsupportedValueError); isJSON {
						monitoring.Logf("websocket: skipping vitals of frame %d: %v", f.FrameNumber, err)
						continue
					}
					return
				}
			}
		case <-ticker.C():
			if err := writeMessage(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
