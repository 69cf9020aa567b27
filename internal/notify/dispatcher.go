package notify

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/arca/internal/storage"
)

const DefaultSubject = "📢 ARCA – Compliance Updates"

type DispatcherConfig struct {
	From           string
	To             string
	Subject        string
	NewslettersDir string
}

// Notification is what the escalation step hands to the dispatcher.
type Notification struct {
	RunID          string
	Updates        []string
	Recommendation string
	DryRun         bool
	Attachments    []Attachment
}

// Receipt describes a completed dispatch.
type Receipt struct {
	Message        Message
	Content        Content
	DryRun         bool
	NewsletterHTML string
	NewsletterText string
	Journal        JournalEntry
}

// Dispatcher renders a notification, hands it to the sender and archives the
// result. It never retries.
type Dispatcher struct {
	cfg       DispatcherConfig
	templates *Templates
	sender    Sender
	archive   storage.Storage
	journal   Journal
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatcher(cfg DispatcherConfig, templates *Templates, sender Sender, archive storage.Storage, journal Journal, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	return &Dispatcher{
		cfg:       cfg,
		templates: templates,
		sender:    sender,
		archive:   archive,
		journal:   journal,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source used for message dates and file names.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch sends n. A delivery failure is wrapped in ErrTransport and nothing
// is archived. Archive failures after a successful send are logged only.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) (Receipt, error) {
	content, err := d.templates.Render(n.Updates, n.Recommendation)
	if err != nil {
		return Receipt{}, err
	}
	now := d.now()
	msg := Message{
		From:        d.cfg.From,
		To:          []string{d.cfg.To},
		Subject:     d.cfg.Subject,
		Date:        now,
		Content:     content,
		Attachments: n.Attachments,
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	receipt := Receipt{Message: msg, Content: content, DryRun: n.DryRun}
	if d.archive != nil {
		ts := stamp(now)
		receipt.NewsletterHTML = path.Join(d.cfg.NewslettersDir, "newsletter_"+ts+".html")
		receipt.NewsletterText = path.Join(d.cfg.NewslettersDir, "newsletter_"+ts+".txt")
		if err := d.archive.PutObject(ctx, receipt.NewsletterHTML, []byte(content.HTML), "text/html"); err != nil {
			d.logger.Warn("archive newsletter failed", "key", receipt.NewsletterHTML, "error", err)
		}
		if err := d.archive.PutObject(ctx, receipt.NewsletterText, []byte(content.Text), "text/plain"); err != nil {
			d.logger.Warn("archive newsletter failed", "key", receipt.NewsletterText, "error", err)
		}
	}

	if d.journal != nil {
		entry := JournalEntry{
			ID:             uuid.NewString(),
			RunID:          n.RunID,
			SentAt:         now,
			Updates:        append([]string(nil), n.Updates...),
			Recommendation: n.Recommendation,
			DryRun:         n.DryRun,
		}
		if len(n.Attachments) > 0 {
			entry.Attachment = n.Attachments[0].Filename
		}
		chained, err := HashChain(ctx, d.journal, entry)
		if err != nil {
			d.logger.Warn("journal append failed", "error", err)
		} else {
			receipt.Journal = chained
		}
	}
	return receipt, nil
}
