package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yourorg/arca/internal/config"
	"github.com/yourorg/arca/internal/escalation"
	"github.com/yourorg/arca/internal/findings"
	"github.com/yourorg/arca/internal/metrics"
	"github.com/yourorg/arca/internal/notify"
	"github.com/yourorg/arca/internal/report"
	"github.com/yourorg/arca/internal/storage"
	"github.com/yourorg/arca/internal/tracker"
)

// Sources are the storage keys of the watched upstream artifacts.
type Sources struct {
	Researcher string
	Generator  string
	Auditor    string
}

type Outcome string

const (
	OutcomeNoUpdates  Outcome = "no_updates"
	OutcomeDryRun     Outcome = "dry_run"
	OutcomeDispatched Outcome = "dispatched"
)

// ReportRenderer turns a report into an attachment body.
type ReportRenderer interface {
	Render(ctx context.Context, rep report.Report) ([]byte, error)
}

const attachmentName = "ARCA_Report.pdf"

type NotifyOptions struct {
	DryRun bool
}

type NotifyResult struct {
	RunID          string
	Outcome        Outcome
	Changes        escalation.Changes
	Counts         findings.SeverityCounts
	Skipped        []findings.SkipEvent
	Updates        []string
	Recommendation string
	Receipt        *notify.Receipt
}

type NotifierDeps struct {
	Store       tracker.Store
	Storage     storage.Storage
	Classifier  *findings.Classifier
	Dispatcher  *notify.Dispatcher
	Preferences config.Preferences
	Sources     Sources
	PDF         ReportRenderer
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

// Notifier runs one notification cycle: fingerprint, track, classify,
// escalate, persist, dispatch.
type Notifier struct {
	NotifierDeps
}

func NewNotifier(deps NotifierDeps) *Notifier {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Classifier == nil {
		deps.Classifier = findings.NewClassifier(deps.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRecorder()
	}
	return &Notifier{NotifierDeps: deps}
}

// Run executes the cycle. Tracker state is saved before dispatch, so a failed
// send is reported but not redetected on the next run. A malformed findings
// artifact aborts the run before anything is saved.
func (n *Notifier) Run(ctx context.Context, opts NotifyOptions) (NotifyResult, error) {
	res := NotifyResult{RunID: newRunID()}
	log := RunLogger(n.Logger, res.RunID)

	state, err := n.Store.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load tracker state: %w", err)
	}
	if state == nil {
		state = tracker.NewState()
	}

	subs := n.Preferences.Subscriptions()
	if subs.Internal {
		res.Changes.Internal = n.observe(ctx, log, state, tracker.SourceResearcher, n.Sources.Researcher)
		if res.Changes.Internal {
			res.Changes.InternalQuery = n.researcherQuery(ctx)
		}
	}
	if subs.WantsGenerator() {
		res.Changes.Generator = n.observe(ctx, log, state, tracker.SourceGenerator, n.Sources.Generator)
	}
	res.Counts = findings.SeverityCounts{}
	if subs.WantsFindings() {
		res.Changes.Findings = n.observe(ctx, log, state, tracker.SourceAuditor, n.Sources.Auditor)
		classified, err := n.Classifier.Load(ctx, n.Storage, n.Sources.Auditor)
		if err != nil {
			return res, fmt.Errorf("classify findings: %w", err)
		}
		res.Counts = classified.Counts()
		res.Skipped = classified.Skipped
		n.Metrics.FindingsLoaded.Add(float64(len(classified.Records)))
		n.Metrics.FindingsSkipped.Add(float64(len(classified.Skipped)))
	}

	res.Updates, res.Recommendation = escalation.Evaluate(res.Changes, res.Counts, subs)

	if err := n.Store.Save(ctx, state); err != nil {
		return res, fmt.Errorf("save tracker state: %w", err)
	}

	if len(res.Updates) == 0 {
		log.Info("no updates detected, nothing to send")
		res.Outcome = OutcomeNoUpdates
		n.Metrics.Dispatches.WithLabelValues(metrics.OutcomeNoUpdates).Inc()
		return res, nil
	}

	for _, u := range res.Updates {
		log.Info("update detected", "update", u)
	}
	log.Info("recommendation", "recommendation", res.Recommendation, "dryRun", opts.DryRun)

	receipt, err := n.Dispatcher.Dispatch(ctx, notify.Notification{
		RunID:          res.RunID,
		Updates:        res.Updates,
		Recommendation: res.Recommendation,
		DryRun:         opts.DryRun,
		Attachments:    n.attachments(ctx, log),
	})
	if err != nil {
		n.Metrics.Dispatches.WithLabelValues(metrics.OutcomeFailed).Inc()
		log.Error("dispatch failed", "error", err)
		return res, fmt.Errorf("dispatch: %w", err)
	}
	res.Receipt = &receipt
	if opts.DryRun {
		res.Outcome = OutcomeDryRun
		n.Metrics.Dispatches.WithLabelValues(metrics.OutcomeDryRun).Inc()
		log.Info("email prepared but not sent (dry-run)")
	} else {
		res.Outcome = OutcomeDispatched
		n.Metrics.Dispatches.WithLabelValues(metrics.OutcomeSent).Inc()
		log.Info("email sent")
	}
	return res, nil
}

// observe fingerprints key and records it under name. Metadata errors other
// than absence are logged and treated as absence.
func (n *Notifier) observe(ctx context.Context, log *slog.Logger, state tracker.State, name, key string) bool {
	fp, err := tracker.FingerprintOf(ctx, n.Storage, key)
	if err != nil {
		log.Warn("fingerprint failed, treating source as absent", "source", name, "error", err)
		fp = tracker.None
	}
	changed := state.HasChanged(name, fp)
	if changed {
		n.Metrics.SourceChanges.WithLabelValues(name).Inc()
		log.Debug("source changed", "source", name, "fingerprint", fp)
	}
	return changed
}

// researcherQuery reads the optional "query" field of the researcher output.
func (n *Notifier) researcherQuery(ctx context.Context) string {
	body, err := n.Storage.GetObject(ctx, n.Sources.Researcher)
	if err != nil {
		return ""
	}
	var out struct {
		Query any `json:"query"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return ""
	}
	// only a non-empty string enriches the notice
	q, _ := out.Query.(string)
	return q
}

func (n *Notifier) attachments(ctx context.Context, log *slog.Logger) []notify.Attachment {
	if !n.Preferences.AttachPDF {
		return nil
	}
	if n.PDF == nil {
		log.Warn("attach_pdf is set but no pdf renderer is configured, sending without attachment")
		return nil
	}
	rep, err := report.Load(ctx, n.Storage, n.Sources.Generator)
	if err != nil {
		log.Warn("report unavailable, sending without attachment", "error", err)
		return nil
	}
	pdf, err := n.PDF.Render(ctx, rep)
	if err != nil {
		log.Warn("pdf render failed, sending without attachment", "error", err)
		return nil
	}
	return []notify.Attachment{{Filename: attachmentName, ContentType: "application/pdf", Body: pdf}}
}
