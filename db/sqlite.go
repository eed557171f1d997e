package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the prediction audit log.
type DB struct {
	*sql.DB
}

// Open opens (and if needed creates) the SQLite audit database.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT NOT NULL,
        model_version TEXT NOT NULL,
        record_index INTEGER NOT NULL,
        probability REAL NOT NULL,
        prediction INTEGER NOT NULL,
        threshold REAL NOT NULL,
        created_at DATETIME NOT NULL,
        UNIQUE(request_id, record_index)
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS model_loads (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name TEXT NOT NULL,
        version TEXT NOT NULL,
        roc_auc REAL,
        trained_on TEXT,
        trained_at TEXT,
        feature_count INTEGER NOT NULL,
        loaded_at DATETIME NOT NULL
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &DB{database}, nil
}

// PredictionLog is one served batch.
type PredictionLog struct {
	RequestID     string
	ModelVersion  string
	Threshold     float64
	Probabilities []float64
	Predictions   []int
	CreatedAt     time.Time
}

// PredictionRow is a single stored record outcome.
type PredictionRow struct {
	RequestID    string    `json:"request_id"`
	ModelVersion string    `json:"model_version"`
	RecordIndex  int       `json:"record_index"`
	Probability  float64   `json:"probability"`
	Prediction   int       `json:"prediction"`
	Threshold    float64   `json:"threshold"`
	CreatedAt    time.Time `json:"created_at"`
}

// SavePredictions stores every record of a batch in one transaction.
func (d *DB) SavePredictions(ctx context.Context, log PredictionLog) error {
	if len(log.Probabilities) != len(log.Predictions) {
		return errors.New("probabilities/predictions length mismatch")
	}
	if log.RequestID == "" {
		return errors.New("request id required")
	}
	if len(log.Probabilities) == 0 {
		return nil
	}
	createdAt := log.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO predictions (
            request_id, model_version, record_index, probability, prediction, threshold, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, prob := range log.Probabilities {
		if _, err := stmt.ExecContext(ctx, log.RequestID, log.ModelVersion, i, prob, log.Predictions[i], log.Threshold, createdAt.UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// RecentPredictions returns the newest stored records first.
func (d *DB) RecentPredictions(ctx context.Context, limit int) ([]PredictionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.QueryContext(ctx, `
        SELECT request_id, model_version, record_index, probability, prediction, threshold, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]PredictionRow, 0)
	for rows.Next() {
		var r PredictionRow
		if err := rows.Scan(&r.RequestID, &r.ModelVersion, &r.RecordIndex, &r.Probability, &r.Prediction, &r.Threshold, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ModelLoad records which artifact a process started with.
type ModelLoad struct {
	ModelName    string    `json:"model_name"`
	Version      string    `json:"version"`
	ROCAUC       float64   `json:"roc_auc"`
	TrainedOn    string    `json:"trained_on"`
	TrainedAt    string    `json:"trained_at"`
	FeatureCount int       `json:"feature_count"`
	LoadedAt     time.Time `json:"loaded_at"`
}

func (d *DB) RecordModelLoad(ctx context.Context, load ModelLoad) error {
	if load.LoadedAt.IsZero() {
		load.LoadedAt = time.Now()
	}
	_, err := d.ExecContext(ctx, `
        INSERT INTO model_loads (model_name, version, roc_auc, trained_on, trained_at, feature_count, loaded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		load.ModelName, load.Version, load.ROCAUC, load.TrainedOn, load.TrainedAt, load.FeatureCount, load.LoadedAt.UTC())
	return err
}

func (d *DB) ModelLoads(ctx context.Context) ([]ModelLoad, error) {
	rows, err := d.QueryContext(ctx, `
        SELECT model_name, version, roc_auc, trained_on, trained_at, feature_count, loaded_at
        FROM model_loads
        ORDER BY loaded_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loads := make([]ModelLoad, 0)
	for rows.Next() {
		var l ModelLoad
		if err := rows.Scan(&l.ModelName, &l.Version, &l.ROCAUC, &l.TrainedOn, &l.TrainedAt, &l.FeatureCount, &l.LoadedAt); err != nil {
			return nil, err
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}
