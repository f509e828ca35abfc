package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/mmwave.report/internal/mmwave/parse"
)

// FrameRecord is the stored summary of one decoded frame.
type FrameRecord struct {
	ID             int64           `json:"id"`
	SessionID      string          `json:"session_id"`
	ReceivedAt     time.Time       `json:"received_at"`
	FrameNumber    uint32          `json:"frame_number"`
	SubFrameNumber uint32          `json:"subframe_number"`
	Error          parse.ErrorCode `json:"error"`
	Points         int             `json:"points"`
	Tracks         int             `json:"tracks"`
	TLVs           int             `json:"tlvs"`
	Failures       int             `json:"failures"`
}

// RecordFrame stores a frame's summary, its tracks, vital signs and
// telemetry in one transaction and returns the frame row id.
func (db *DB) RecordFrame(sessionID string, f *parse.Frame, receivedAt time.Time) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sum := f.Summary()
	result, err := tx.Exec(`INSERT INTO frames (
			session_id, received_at, frame_number, subframe_number, error_code,
			num_points, num_tracks, num_tlvs, tlv_failures
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, receivedAt.UnixNano(), sum.FrameNumber, sum.SubFrameNumber, int(sum.Error),
		sum.Points, sum.Tracks, sum.TLVs, sum.Failures)
	if err != nil {
		return 0, fmt.Errorf("failed to insert frame: %w", err)
	}
	frameID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	for _, t := range f.Tracks {
		if _, err := tx.Exec(`INSERT INTO tracks (
				frame_id, tid, pos_x, pos_y, pos_z, vel_x, vel_y, vel_z, acc_x, acc_y, acc_z, g, confidence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			frameID, t.ID, t.PosX, t.PosY, t.PosZ, t.VelX, t.VelY, t.VelZ, t.AccX, t.AccY, t.AccZ, t.G, t.Confidence); err != nil {
			return 0, fmt.Errorf("failed to insert track: %w", err)
		}
	}

	if v := f.Vitals; v.Valid() {
		if _, err := tx.Exec(`INSERT INTO vitals (frame_id, patient_id, range_bin, breath_deviation, heart_rate, breath_rate)
			VALUES (?, ?, ?, ?, ?, ?)`,
			frameID, v.ID, v.RangeBin, v.BreathDeviation, v.HeartRate, v.BreathRate); err != nil {
			return 0, fmt.Errorf("failed to insert vitals: %w", err)
		}
	}

	if f.ProcTime != nil || f.Power != nil || f.Temperature != nil {
		var pt parse.ProcTime
		var pw parse.Power
		var tp parse.Temperature
		if f.ProcTime != nil {
			pt = *f.ProcTime
		}
		if f.Power != nil {
			pw = *f.Power
		}
		if f.Temperature != nil {
			tp = *f.Temperature
		}
		if _, err := tx.Exec(`INSERT INTO telemetry (
				frame_id, inter_frame_proc_time_us, transmit_out_time_us,
				power_1v8, power_3v3, power_1v2, power_1v2_rf,
				temp_rx, temp_tx, temp_pm, temp_dig
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			frameID, pt.InterFrameProcTimeUs, pt.TransmitOutTimeUs,
			pw.Rail1v8, pw.Rail3v3, pw.Rail1v2, pw.Rail1v2RF,
			tp.Rx, tp.Tx, tp.PM, tp.DIG); err != nil {
			return 0, fmt.Errorf("failed to insert telemetry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit frame: %w", err)
	}
	return frameID, nil
}

// RecentFrames returns up to limit frames, newest first. An empty sessionID
// spans all sessions.
func (db *DB) RecentFrames(sessionID string, limit int) ([]FrameRecord, error) {
	query := `SELECT frame_id, session_id, received_at, frame_number, subframe_number, error_code,
			num_points, num_tracks, num_tlvs, tlv_failures
		FROM frames`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY frame_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var r FrameRecord
		var received int64
		var code int
		if err := rows.Scan(&r.ID, &r.SessionID, &received, &r.FrameNumber, &r.SubFrameNumber, &code,
			&r.Points, &r.Tracks, &r.TLVs, &r.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		r.ReceivedAt = time.Unix(0, received)
		r.Error = parse.ErrorCode(code)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FrameTracks returns the tracks stored for one frame.
func (db *DB) FrameTracks(frameID int64) ([]parse.Track, error) {
	rows, err := db.Query(`SELECT tid, pos_x, pos_y, pos_z, vel_x, vel_y, vel_z, acc_x, acc_y, acc_z, g, confidence
		FROM tracks WHERE frame_id = ? ORDER BY rowid`, frameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var out []parse.Track
	for rows.Next() {
		var t parse.Track
		// Non-finite floats are bound as NULL by the driver.
		var f [11]sql.NullFloat64
		if err := rows.Scan(&t.ID, &f[0], &f[1], &f[2], &f[3], &f[4], &f[5],
			&f[6], &f[7], &f[8], &f[9], &f[10]); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		dst := []*float64{&t.PosX, &t.PosY, &t.PosZ, &t.VelX, &t.VelY, &t.VelZ,
			&t.AccX, &t.AccY, &t.AccZ, &t.G, &t.Confidence}
		for i, v := range f {
			*dst[i] = nullFloat(v)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// nullFloat reads a stored NULL back as zero so the track stays JSON-encodable.
func nullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return 0
	}
	return v.Float64
}
