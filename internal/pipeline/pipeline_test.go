package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/proactivecare/internal/model"
	"github.com/Skufu/proactivecare/internal/ratelimit"
	"github.com/Skufu/proactivecare/internal/risk"
	"github.com/Skufu/proactivecare/internal/symptoms"
	"github.com/Skufu/proactivecare/internal/vitals"
)

var (
	engineOnce sync.Once
	engine     *model.Engine
	engineErr  error
)

func sharedEngine(t *testing.T) *model.Engine {
	t.Helper()
	engineOnce.Do(func() {
		opts := model.DefaultTrainOptions()
		opts.Samples = 700
		opts.Epochs = 150
		var a *model.Artifacts
		a, _, engineErr = model.Train(context.Background(), opts)
		if engineErr == nil {
			engine = model.NewEngine(a)
		}
	})
	require.NoError(t, engineErr)
	return engine
}

func newPipeline(t *testing.T, admitter Admitter, opts ...Option) *Pipeline {
	t.Helper()
	extractor, err := symptoms.NewExtractor(context.Background())
	require.NoError(t, err)
	return New(admitter, extractor, sharedEngine(t), opts...)
}

type fakeRecorder struct {
	entries []Entry
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, entry Entry) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.entries = append(f.entries, entry)
	return "entry-1", nil
}

type fakeNotifier struct {
	alerts []Alert
	err    error
}

func (f *fakeNotifier) NotifyEmergency(_ context.Context, alert Alert) error {
	f.alerts = append(f.alerts, alert)
	return f.err
}

// stubPredictor returns fixed predictions.
type stubPredictor struct {
	preds     []model.Prediction
	explained bool
}

func (s *stubPredictor) PredictTop3(model.Input, []string) []model.Prediction { return s.preds }

func (s *stubPredictor) Explain(model.Input, []string, string) []string {
	s.explained = true
	return []string{"fever"}
}

func ptr(v float64) *float64 { return &v }

func TestRun_FeverAndCoughRoundTrip(t *testing.T) {
	p := newPipeline(t, ratelimit.NewGuard(20))

	resp, err := p.Run(context.Background(), Request{SymptomsText: "fever and cough", AdmissionKey: "u1:127.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"cough", "fever"}, resp.SymptomTags)
	assert.Equal(t, symptoms.SourceDefault, resp.NLPSource)
	require.NotEmpty(t, resp.Predictions)
	assert.LessOrEqual(t, len(resp.Predictions), 3)
	assert.GreaterOrEqual(t, len(resp.Predictions[0].RecommendedNextSteps), 3)
	for i := 1; i < len(resp.Predictions); i++ {
		assert.GreaterOrEqual(t, resp.Predictions[i-1].Confidence, resp.Predictions[i].Confidence)
	}

	assert.NotEmpty(t, resp.TopContributingFeatures)
	assert.LessOrEqual(t, len(resp.TopContributingFeatures), 5)
	assert.Equal(t, Disclaimer, resp.Disclaimer)
	assert.Empty(t, resp.EntryID)

	assert.False(t, resp.EmergencyWarning)
	assert.Nil(t, resp.WarningMessage)
	want := risk.Score(vitals.Snapshot{}, resp.Predictions[0].Confidence)
	assert.Equal(t, want.Score, resp.RiskScore)
	assert.Equal(t, want.Level, resp.RiskLevel)
}

func TestRun_EmergencyVitals(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newPipeline(t, ratelimit.NewGuard(20), WithNotifier(notifier))

	resp, err := p.Run(context.Background(), Request{
		SymptomsText: "shortness of breath and chest pain",
		Vitals:       vitals.Snapshot{SpO2: ptr(88)},
		AdmissionKey: "u1:127.0.0.1",
		UserID:       "u1",
	})
	require.NoError(t, err)

	assert.True(t, resp.EmergencyWarning)
	require.NotNil(t, resp.WarningMessage)
	assert.Equal(t, risk.EmergencyMessage, *resp.WarningMessage)
	assert.GreaterOrEqual(t, resp.RiskScore, 85)
	assert.Equal(t, risk.LevelHigh, resp.RiskLevel)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "u1", notifier.alerts[0].UserID)
	assert.Equal(t, resp.Predictions[0].Condition, notifier.alerts[0].TopCondition)
}

func TestRun_NotifierFailureIsNotFatal(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("broker down")}
	p := newPipeline(t, ratelimit.NewGuard(20), WithNotifier(notifier))

	resp, err := p.Run(context.Background(), Request{
		SymptomsText: "dizzy",
		Vitals:       vitals.Snapshot{SystolicBP: ptr(200)},
		AdmissionKey: "k",
	})
	require.NoError(t, err)
	assert.True(t, resp.EmergencyWarning)
	assert.Len(t, notifier.alerts, 1)
}

func TestRun_RateLimitRejectsBeforeWork(t *testing.T) {
	predictor := &stubPredictor{preds: []model.Prediction{{Condition: "Influenza", Confidence: 0.9}}}
	extractor, err := symptoms.NewExtractor(context.Background())
	require.NoError(t, err)
	p := New(ratelimit.NewGuard(2), extractor, predictor)

	req := Request{SymptomsText: "fever", AdmissionKey: "same"}
	for i := 0; i < 2; i++ {
		_, err := p.Run(context.Background(), req)
		require.NoError(t, err)
	}
	predictor.explained = false

	_, err = p.Run(context.Background(), req)
	assert.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)
	assert.False(t, predictor.explained)

	_, err = p.Run(context.Background(), Request{SymptomsText: "fever", AdmissionKey: "other"})
	assert.NoError(t, err)
}

func TestRun_SavesEntryWhenRequested(t *testing.T) {
	recorder := &fakeRecorder{}
	p := newPipeline(t, ratelimit.NewGuard(20), WithRecorder(recorder))

	resp, err := p.Run(context.Background(), Request{
		SymptomsText: "headache and nausea",
		Vitals:       vitals.Snapshot{HeartRate: ptr(72)},
		AdmissionKey: "u2:10.0.0.1",
		UserID:       "u2",
		SaveEntry:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "entry-1", resp.EntryID)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, "u2", entry.UserID)
	assert.Equal(t, resp.SymptomTags, entry.Tags)
	assert.Equal(t, resp.RiskScore, entry.Risk.Score)
	assert.Equal(t, resp.TopContributingFeatures, entry.Explanation)

	_, err = p.Run(context.Background(), Request{SymptomsText: "headache", AdmissionKey: "u2:10.0.0.1"})
	require.NoError(t, err)
	assert.Len(t, recorder.entries, 1)
}

func TestRun_RecorderFailureIsReturned(t *testing.T) {
	p := newPipeline(t, ratelimit.NewGuard(20), WithRecorder(&fakeRecorder{err: errors.New("db down")}))

	_, err := p.Run(context.Background(), Request{SymptomsText: "cough", AdmissionKey: "k", SaveEntry: true})
	assert.ErrorContains(t, err, "save entry")
}

func TestRun_EmergencyNotifiedWhenSaveFails(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newPipeline(t, ratelimit.NewGuard(20),
		WithRecorder(&fakeRecorder{err: errors.New("db down")}),
		WithNotifier(notifier),
	)

	_, err := p.Run(context.Background(), Request{
		SymptomsText: "short of breath",
		Vitals:       vitals.Snapshot{SpO2: ptr(86)},
		AdmissionKey: "k",
		UserID:       "u9",
		SaveEntry:    true,
	})
	assert.ErrorContains(t, err, "save entry")

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "u9", notifier.alerts[0].UserID)
	assert.Empty(t, notifier.alerts[0].EntryID)
}

func TestRun_NoPredictionsUsesZeroConfidence(t *testing.T) {
	predictor := &stubPredictor{}
	extractor, err := symptoms.NewExtractor(context.Background())
	require.NoError(t, err)
	p := New(ratelimit.NewGuard(20), extractor, predictor)

	resp, err := p.Run(context.Background(), Request{SymptomsText: "I feel off", AdmissionKey: "k"})
	require.NoError(t, err)

	assert.Equal(t, []string{symptoms.GeneralMalaise}, resp.SymptomTags)
	assert.Empty(t, resp.Predictions)
	assert.Equal(t, 0, resp.RiskScore)
	assert.Equal(t, risk.LevelLow, resp.RiskLevel)
	assert.Equal(t, []string{model.FallbackFeature}, resp.TopContributingFeatures)
	assert.False(t, predictor.explained)
}
