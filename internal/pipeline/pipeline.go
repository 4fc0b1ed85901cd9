// Package pipeline runs one prediction request end to end: admission,
// symptom extraction, classification, risk, explanation and advice.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Skufu/proactivecare/internal/model"
	"github.com/Skufu/proactivecare/internal/recommend"
	"github.com/Skufu/proactivecare/internal/risk"
	"github.com/Skufu/proactivecare/internal/symptoms"
	"github.com/Skufu/proactivecare/internal/vitals"
)

const Disclaimer = "This is not medical advice. Consult a licensed clinician for diagnosis."

type Admitter interface {
	Admit(ctx context.Context, key string) error
}

type Extractor interface {
	Extract(ctx context.Context, text string) symptoms.Result
}

type Predictor interface {
	PredictTop3(in model.Input, tags []string) []model.Prediction
	Explain(in model.Input, tags []string, topCondition string) []string
}

// Recorder persists a finished prediction and returns its id.
type Recorder interface {
	Record(ctx context.Context, entry Entry) (string, error)
}

// Notifier is told about emergencies. Failures are logged, never returned.
type Notifier interface {
	NotifyEmergency(ctx context.Context, alert Alert) error
}

type Request struct {
	SymptomsText string
	Vitals       vitals.Snapshot
	AdmissionKey string
	UserID       string
	SaveEntry    bool
}

type ConditionResult struct {
	Condition            string   `json:"condition"`
	Confidence           float64  `json:"confidence"`
	RecommendedNextSteps []string `json:"recommended_next_steps"`
}

type Response struct {
	EntryID                 string            `json:"entry_id,omitempty"`
	SymptomTags             []string          `json:"symptom_tags"`
	NLPSource               string            `json:"nlp_source"`
	Predictions             []ConditionResult `json:"predictions"`
	RiskScore               int               `json:"risk_score"`
	RiskLevel               string            `json:"risk_level"`
	EmergencyWarning        bool              `json:"emergency_warning"`
	WarningMessage          *string           `json:"warning_message"`
	TopContributingFeatures []string          `json:"top_contributing_features"`
	Disclaimer              string            `json:"disclaimer"`
}

// Entry is what a Recorder stores.
type Entry struct {
	UserID      string
	Text        string
	Vitals      vitals.Snapshot
	Tags        []string
	Predictions []model.Prediction
	Risk        risk.Result
	Explanation []string
}

type Alert struct {
	UserID       string          `json:"user_id,omitempty"`
	EntryID      string          `json:"entry_id,omitempty"`
	RiskScore    int             `json:"risk_score"`
	Message      string          `json:"message"`
	Vitals       vitals.Snapshot `json:"vitals"`
	TopCondition string          `json:"top_condition,omitempty"`
	SymptomTags  []string        `json:"symptom_tags"`
}

type Option func(*Pipeline)

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

type Pipeline struct {
	admitter  Admitter
	extractor Extractor
	predictor Predictor
	recorder  Recorder
	notifier  Notifier
	logger    *zap.Logger
}

func New(admitter Admitter, extractor Extractor, predictor Predictor, opts ...Option) *Pipeline {
	p := &Pipeline{
		admitter:  admitter,
		extractor: extractor,
		predictor: predictor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one request. The only errors are a rejected admission and a
// failed save; everything else degrades in place. Emergencies are notified
// even when the save fails.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Response, error) {
	if err := p.admitter.Admit(ctx, req.AdmissionKey); err != nil {
		return nil, err
	}

	extracted := p.extractor.Extract(ctx, req.SymptomsText)
	in := model.Input{SymptomsText: req.SymptomsText, Vitals: req.Vitals}
	predictions := p.predictor.PredictTop3(in, extracted.Tags)

	var topConfidence float64
	var topCondition string
	if len(predictions) > 0 {
		topConfidence = predictions[0].Confidence
		topCondition = predictions[0].Condition
	}
	riskResult := risk.Score(req.Vitals, topConfidence)

	explanation := []string{model.FallbackFeature}
	if topCondition != "" {
		explanation = p.predictor.Explain(in, extracted.Tags, topCondition)
	}

	resp := &Response{
		SymptomTags:             extracted.Tags,
		NLPSource:               extracted.Source,
		Predictions:             make([]ConditionResult, 0, len(predictions)),
		RiskScore:               riskResult.Score,
		RiskLevel:               riskResult.Level,
		EmergencyWarning:        riskResult.EmergencyWarning,
		WarningMessage:          riskResult.WarningMessage,
		TopContributingFeatures: explanation,
		Disclaimer:              Disclaimer,
	}
	for _, pred := range predictions {
		resp.Predictions = append(resp.Predictions, ConditionResult{
			Condition:            pred.Condition,
			Confidence:           pred.Confidence,
			RecommendedNextSteps: recommend.For(pred.Condition),
		})
	}

	var saveErr error
	if req.SaveEntry && p.recorder != nil {
		id, err := p.recorder.Record(ctx, Entry{
			UserID:      req.UserID,
			Text:        req.SymptomsText,
			Vitals:      req.Vitals,
			Tags:        extracted.Tags,
			Predictions: predictions,
			Risk:        riskResult,
			Explanation: explanation,
		})
		if err != nil {
			saveErr = fmt.Errorf("save entry: %w", err)
		}
		resp.EntryID = id
	}

	// Sent whether or not the save succeeded.
	if riskResult.EmergencyWarning && p.notifier != nil {
		alert := Alert{
			UserID:       req.UserID,
			EntryID:      resp.EntryID,
			RiskScore:    riskResult.Score,
			Message:      risk.EmergencyMessage,
			Vitals:       req.Vitals,
			TopCondition: topCondition,
			SymptomTags:  extracted.Tags,
		}
		if err := p.notifier.NotifyEmergency(ctx, alert); err != nil {
			p.logger.Warn("emergency alert not delivered", zap.Error(err), zap.String("entry_id", resp.EntryID))
		}
	}
	if saveErr != nil {
		return nil, saveErr
	}

	p.logger.Debug("prediction complete",
		zap.Strings("tags", extracted.Tags),
		zap.String("top_condition", topCondition),
		zap.Int("risk_score", riskResult.Score),
	)
	return resp, nil
}
