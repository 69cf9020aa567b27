package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/arca/internal/findings"
	"github.com/yourorg/arca/internal/metrics"
	"github.com/yourorg/arca/internal/report"
	"github.com/yourorg/arca/internal/storage"
)

var errPDFNotConfigured = errors.New("pdf output requested but no renderer or output key configured")

type GeneratorDeps struct {
	Storage    storage.Storage
	Classifier *findings.Classifier
	// FindingsKey is read, ReportKey written.
	FindingsKey string
	ReportKey   string
	// PDFKey receives the rendered report when PDF is set and the run asks
	// for it.
	PDFKey  string
	PDF     ReportRenderer
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	Now     func() time.Time
}

type GenerateOptions struct {
	PDF bool
}

type GenerateResult struct {
	RunID   string
	Written bool
	Report  report.Report
	Skipped []findings.SkipEvent
	PDFKey  string
}

// Generator turns the auditor findings into the compliance report.
type Generator struct {
	GeneratorDeps
}

func NewGenerator(deps GeneratorDeps) *Generator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Classifier == nil {
		deps.Classifier = findings.NewClassifier(deps.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRecorder()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Generator{GeneratorDeps: deps}
}

// Run writes no report when the findings artifact is absent or malformed;
// only the malformed case is an error.
func (g *Generator) Run(ctx context.Context, opts GenerateOptions) (GenerateResult, error) {
	res := GenerateResult{RunID: newRunID()}
	log := RunLogger(g.Logger, res.RunID)

	classified, err := g.Classifier.Load(ctx, g.Storage, g.FindingsKey)
	if err != nil {
		return res, fmt.Errorf("classify findings: %w", err)
	}
	res.Skipped = classified.Skipped
	g.Metrics.FindingsLoaded.Add(float64(len(classified.Records)))
	g.Metrics.FindingsSkipped.Add(float64(len(classified.Skipped)))
	if classified.Missing {
		log.Warn("findings not found, no report written", "key", g.FindingsKey)
		return res, nil
	}

	res.Report = report.Build(classified.Records, g.Now())
	if err := report.Save(ctx, g.Storage, g.ReportKey, res.Report); err != nil {
		return res, fmt.Errorf("save report: %w", err)
	}
	res.Written = true
	g.Metrics.ReportRisks.Set(float64(res.Report.TotalRisksFlagged))
	log.Info("report written",
		"key", g.ReportKey,
		"regulationId", res.Report.RegulationID,
		"totalRisks", res.Report.TotalRisksFlagged,
		"recommendation", res.Report.Recommendation)

	if !opts.PDF {
		return res, nil
	}
	if g.PDF == nil || g.PDFKey == "" {
		return res, errPDFNotConfigured
	}
	pdf, err := g.PDF.Render(ctx, res.Report)
	if err != nil {
		return res, fmt.Errorf("render pdf: %w", err)
	}
	if err := g.Storage.PutObject(ctx, g.PDFKey, pdf, "application/pdf"); err != nil {
		return res, fmt.Errorf("save pdf: %w", err)
	}
	res.PDFKey = g.PDFKey
	log.Info("pdf written", "key", g.PDFKey, "bytes", len(pdf))
	return res, nil
}
