package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Skufu/proactivecare/internal/model"
	"github.com/Skufu/proactivecare/internal/symptoms"
	"github.com/Skufu/proactivecare/internal/vitals"
)

// sampleVitals are the fixed readings used for ad-hoc predictions.
var sampleVitals = vitals.Snapshot{
	HeartRate:   lo.ToPtr(90.0),
	SystolicBP:  lo.ToPtr(120.0),
	DiastolicBP: lo.ToPtr(80.0),
	Temperature: lo.ToPtr(37.8),
	SpO2:        lo.ToPtr(96.0),
	Glucose:     lo.ToPtr(110.0),
	Weight:      lo.ToPtr(70.0),
}

func main() {
	dir := flag.String("model-dir", "artifacts", "Directory holding trained model artifacts")
	text := flag.String("text", "", "Free-text symptom description")
	withTags := flag.Bool("tags", false, "Extract symptom tags and append them to the model text")
	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(context.Background(), *dir, *text, *withTags); err != nil {
		log.Fatalf("predict: %v", err)
	}
}

func run(ctx context.Context, dir, text string, withTags bool) error {
	engine, err := model.Bootstrap(ctx, dir, nil, zap.NewNop())
	if errors.Is(err, model.ErrArtifactUnavailable) {
		return fmt.Errorf("%w (run cmd/train first)", err)
	}
	if err != nil {
		return err
	}

	var tags []string
	if withTags {
		extractor, err := symptoms.NewExtractor(ctx)
		if err != nil {
			return err
		}
		tags = extractor.Extract(ctx, text).Tags
		fmt.Printf("Symptom tags: %s\n", strings.Join(tags, ", "))
	}

	in := model.Input{SymptomsText: text, Vitals: sampleVitals}
	predictions := engine.PredictTop3(in, tags)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Rank", "Condition", "Confidence"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for i, p := range predictions {
		table.Append([]string{fmt.Sprint(i + 1), p.Condition, fmt.Sprintf("%.3f", p.Confidence)})
	}
	table.Render()

	if len(predictions) > 0 {
		fmt.Printf("Explanation: %s\n", strings.Join(engine.Explain(in, tags, predictions[0].Condition), "; "))
	}
	return nil
}
