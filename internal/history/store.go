// Package history stores finished predictions in Postgres.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Skufu/proactivecare/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS health_entries (
	id                UUID PRIMARY KEY,
	user_id           TEXT NOT NULL,
	recorded_at       TIMESTAMPTZ NOT NULL,
	symptoms_text     TEXT NOT NULL,
	symptom_tags      JSONB NOT NULL,
	heart_rate        DOUBLE PRECISION,
	systolic_bp       DOUBLE PRECISION,
	diastolic_bp      DOUBLE PRECISION,
	temperature       DOUBLE PRECISION,
	spo2              DOUBLE PRECISION,
	glucose           DOUBLE PRECISION,
	weight            DOUBLE PRECISION,
	risk_score        INTEGER NOT NULL,
	risk_level        TEXT NOT NULL,
	emergency_warning BOOLEAN NOT NULL,
	predictions       JSONB NOT NULL,
	explanation       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS health_entries_user_id_idx ON health_entries (user_id, recorded_at DESC);
`

const insertEntry = `
INSERT INTO health_entries (
	id, user_id, recorded_at, symptoms_text, symptom_tags,
	heart_rate, systolic_bp, diastolic_bp, temperature, spo2, glucose, weight,
	risk_score, risk_level, emergency_warning, predictions, explanation
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements pipeline.Recorder.
type Store struct {
	db    execer
	now   func() time.Time
	newID func() string
}

func NewStore(pool *pgxpool.Pool) *Store {
	return newStore(pool)
}

func newStore(db execer) *Store {
	return &Store{db: db, now: time.Now, newID: uuid.NewString}
}

// EnsureSchema creates the table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create health_entries: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, e pipeline.Entry) (string, error) {
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return "", err
	}
	predictions, err := json.Marshal(e.Predictions)
	if err != nil {
		return "", err
	}
	explanation, err := json.Marshal(e.Explanation)
	if err != nil {
		return "", err
	}

	userID := e.UserID
	if userID == "" {
		userID = "anonymous"
	}
	id := s.newID()
	v := e.Vitals
	_, err = s.db.Exec(ctx, insertEntry,
		id, userID, s.now().UTC(), e.Text, tags,
		v.HeartRate, v.SystolicBP, v.DiastolicBP, v.Temperature, v.SpO2, v.Glucose, v.Weight,
		e.Risk.Score, e.Risk.Level, e.Risk.EmergencyWarning, predictions, explanation,
	)
	if err != nil {
		return "", fmt.Errorf("insert health entry: %w", err)
	}
	return id, nil
}
