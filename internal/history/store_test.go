package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/proactivecare/internal/model"
	"github.com/Skufu/proactivecare/internal/pipeline"
	"github.com/Skufu/proactivecare/internal/risk"
	"github.com/Skufu/proactivecare/internal/vitals"
)

type call struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []call
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func newTestStore(db execer) *Store {
	s := newStore(db)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	s.newID = func() string { return "7d4f1c2e-0000-4000-8000-000000000001" }
	return s
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, newTestStore(db).EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS health_entries")
}

func TestRecord_WritesEntry(t *testing.T) {
	db := &fakeExecer{}
	hr := 118.0
	entry := pipeline.Entry{
		UserID:      "42",
		Text:        "fever and cough",
		Vitals:      vitals.Snapshot{HeartRate: &hr},
		Tags:        []string{"cough", "fever"},
		Predictions: []model.Prediction{{Condition: "Influenza", Confidence: 0.71}},
		Risk:        risk.Result{Score: 40, Level: risk.LevelModerate},
		Explanation: []string{"fever", "heart rate"},
	}

	id, err := newTestStore(db).Record(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, "7d4f1c2e-0000-4000-8000-000000000001", id)

	require.Len(t, db.calls, 1)
	c := db.calls[0]
	assert.True(t, strings.HasPrefix(strings.TrimSpace(c.sql), "INSERT INTO health_entries"))
	require.Len(t, c.args, 17)
	assert.Equal(t, id, c.args[0])
	assert.Equal(t, "42", c.args[1])
	assert.Equal(t, "fever and cough", c.args[3])
	assert.JSONEq(t, `["cough","fever"]`, string(c.args[4].([]byte)))
	assert.Equal(t, &hr, c.args[5])
	assert.Nil(t, c.args[6].(*float64))
	assert.Equal(t, 40, c.args[12])
	assert.JSONEq(t, `[{"condition":"Influenza","confidence":0.71}]`, string(c.args[15].([]byte)))
	assert.JSONEq(t, `["fever","heart rate"]`, string(c.args[16].([]byte)))
}

func TestRecord_AnonymousUser(t *testing.T) {
	db := &fakeExecer{}
	_, err := newTestStore(db).Record(context.Background(), pipeline.Entry{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "anonymous", db.calls[0].args[1])
}

func TestRecord_DatabaseError(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection refused")}
	_, err := newTestStore(db).Record(context.Background(), pipeline.Entry{Text: "x"})
	assert.ErrorContains(t, err, "insert health entry")
}
