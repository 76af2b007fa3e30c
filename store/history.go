// Package store keeps training history and chat transcripts in sqlite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/seq2seq"
)

// History is a handle on one sqlite file.
type History struct {
	db *sql.DB
}

// Open creates the tables on first use. path may be ":memory:".
func Open(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection: ":memory:" databases are per connection
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS runs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started REAL NOT NULL,
			config TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS epochs(
			run_id INTEGER NOT NULL REFERENCES runs(id),
			epoch INTEGER NOT NULL,
			loss REAL NOT NULL,
			accuracy REAL NOT NULL,
			val_loss REAL NOT NULL,
			val_accuracy REAL NOT NULL,
			scored INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			PRIMARY KEY(run_id, epoch)
		)`,
		`CREATE TABLE IF NOT EXISTS messages(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts REAL NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: init %s: %w", path, err)
		}
	}
	return &History{db: db}, nil
}

func (h *History) Close() error { return h.db.Close() }

func now() float64 { return float64(time.Now().UnixMilli()) / 1000.0 }

// StartRun records cfg and returns the new run id.
func (h *History) StartRun(ctx context.Context, cfg params.TrainingConfig) (int64, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return 0, err
	}
	res, err := h.db.ExecContext(ctx, "INSERT INTO runs(started, config) VALUES(?,?)", now(), string(raw))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestRun returns the id of the most recent run, or sql.ErrNoRows when
// nothing has been recorded yet.
func (h *History) LatestRun(ctx context.Context) (int64, error) {
	var id int64
	err := h.db.QueryRowContext(ctx, "SELECT id FROM runs ORDER BY id DESC LIMIT 1").Scan(&id)
	return id, err
}

// RunConfig returns the config stored for run.
func (h *History) RunConfig(ctx context.Context, run int64) (params.TrainingConfig, error) {
	var raw string
	if err := h.db.QueryRowContext(ctx, "SELECT config FROM runs WHERE id = ?", run).Scan(&raw); err != nil {
		return params.TrainingConfig{}, err
	}
	var cfg params.TrainingConfig
	err := json.Unmarshal([]byte(raw), &cfg)
	return cfg, err
}

func (h *History) RecordEpoch(ctx context.Context, run int64, s seq2seq.EpochStats) error {
	_, err := h.db.ExecContext(ctx, `INSERT INTO epochs(run_id, epoch, loss, accuracy, val_loss, val_accuracy,
		scored, skipped, dropped, duration_ms) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		run, s.Epoch, s.Loss, s.Accuracy, s.ValLoss, s.ValAccuracy,
		s.Scored, s.Skipped, s.Dropped, s.Duration.Milliseconds())
	return err
}

// Epochs returns the stats recorded for run, in epoch order.
func (h *History) Epochs(ctx context.Context, run int64) ([]seq2seq.EpochStats, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT epoch, loss, accuracy, val_loss, val_accuracy,
		scored, skipped, dropped, duration_ms FROM epochs WHERE run_id = ? ORDER BY epoch`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []seq2seq.EpochStats
	for rows.Next() {
		var s seq2seq.EpochStats
		var ms int64
		if err := rows.Scan(&s.Epoch, &s.Loss, &s.Accuracy, &s.ValLoss, &s.ValAccuracy,
			&s.Scored, &s.Skipped, &s.Dropped, &ms); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

// Message is one line of a chat transcript.
type Message struct {
	Role, Text string
}

func (h *History) AddMessage(ctx context.Context, role, text string) error {
	_, err := h.db.ExecContext(ctx, "INSERT INTO messages(ts, role, text) VALUES(?,?,?)", now(), role, text)
	return err
}

// RecentMessages returns the last limit messages, oldest first.
func (h *History) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	rows, err := h.db.QueryContext(ctx, "SELECT role, text FROM messages ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Text); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	// Reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, rows.Err()
}
