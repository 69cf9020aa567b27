package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/arca/internal/storage"
)

type failingSender struct{ err error }

func (f failingSender) Send(context.Context, Message) error { return f.err }

func TestDefaultTemplates_Render(t *testing.T) {
	c, err := DefaultTemplates().Render([]string{"a", "b <x>"}, "Do it.")
	require.NoError(t, err)
	assert.Equal(t, "Updates:\n\n - a\n - b <x>\n\nRecommendation: Do it.", c.Text)
	assert.Equal(t, "<html><body><ul><li>a</li><li>b &lt;x&gt;</li></ul><p>Do it.</p></body></html>", c.HTML)

	empty, err := DefaultTemplates().Render(nil, "None.")
	require.NoError(t, err)
	assert.Equal(t, "Updates:\nNo updates\n\nRecommendation: None.", empty.Text)
	assert.Contains(t, empty.HTML, "<li>No updates</li>")
}

func TestLoadTemplates_Overrides(t *testing.T) {
	ctx := context.Background()
	st := storage.NewInMemoryStorage()
	require.NoError(t, st.PutObject(ctx, "t.txt", []byte("{{len .Updates}} | {{.Recommendation}}"), ""))

	tmpl, err := LoadTemplates(ctx, st, "t.html", "t.txt")
	require.NoError(t, err)
	c, err := tmpl.Render([]string{"x", "y"}, "R")
	require.NoError(t, err)
	assert.Equal(t, "2 | R", c.Text)
	assert.Contains(t, c.HTML, "<li>x</li>")

	require.NoError(t, st.PutObject(ctx, "t.html", []byte("{{range}"), ""))
	_, err = LoadTemplates(ctx, st, "t.html", "t.txt")
	assert.Error(t, err)
}

func TestLoadTemplates_LegacyPlaceholders(t *testing.T) {
	ctx := context.Background()
	st := storage.NewInMemoryStorage()
	require.NoError(t, st.PutObject(ctx, "email_template.html", []byte("<h1>ARCA</h1><ul>{{updates}}</ul><p>{{recommendation}}</p>"), ""))
	require.NoError(t, st.PutObject(ctx, "email_template.txt", []byte("ARCA\n{{updates}}\n\n=> {{recommendation}}"), ""))

	tmpl, err := LoadTemplates(ctx, st, "email_template.html", "email_template.txt")
	require.NoError(t, err)

	c, err := tmpl.Render([]string{"a", "b"}, "R")
	require.NoError(t, err)
	assert.Equal(t, "<h1>ARCA</h1><ul><li>a</li><li>b</li></ul><p>R</p>", c.HTML)
	assert.Equal(t, "ARCA\n\n - a\n - b\n\n=> R", c.Text)

	c, err = tmpl.Render(nil, "None")
	require.NoError(t, err)
	assert.Equal(t, "<h1>ARCA</h1><ul><li>No updates</li></ul><p>None</p>", c.HTML)
	assert.Equal(t, "ARCA\nNo updates\n\n=> None", c.Text)
}

func TestMessage_Bytes(t *testing.T) {
	msg := Message{
		From:    "arca@example.com",
		To:      []string{"team@example.com"},
		Subject: DefaultSubject,
		Date:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Content: Content{HTML: "<p>hi</p>", Text: "hi ⚠️"},
		Attachments: []Attachment{{
			Filename:    "ARCA_Report.pdf",
			ContentType: "application/pdf",
			Body:        bytes.Repeat([]byte("%PDF"), 50),
		}},
	}
	raw, err := msg.Bytes()
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSubject, subject)
	assert.Equal(t, "team@example.com", parsed.Header.Get("To"))

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	first, err := mr.NextPart()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Header.Get("Content-Type"), "multipart/alternative"))
	_, _ = io.Copy(io.Discard, first)

	second, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "ARCA_Report.pdf", second.FileName())

	_, err = mr.NextPart()
	assert.Equal(t, io.EOF, err)
}

func TestDispatcher_DryRunArchivesAndChains(t *testing.T) {
	ctx := context.Background()
	st := storage.NewInMemoryStorage()
	journal := NewStorageJournal(st, "logs")
	sender := &DryRunSender{}
	clock := time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC)
	d := NewDispatcher(DispatcherConfig{From: "a@example.com", To: "a@example.com", NewslettersDir: "newsletters"}, nil, sender, st, journal, nil).
		WithClock(func() time.Time { return clock })

	first, err := d.Dispatch(ctx, Notification{RunID: "run-1", Updates: []string{"u1"}, Recommendation: "r", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "newsletters/newsletter_2025_04_01_083000.html", first.NewsletterHTML)
	assert.Equal(t, "newsletters/newsletter_2025_04_01_083000.txt", first.NewsletterText)
	assert.Empty(t, first.Journal.PrevHash)
	assert.True(t, Verify(first.Journal))

	body, err := st.GetObject(ctx, first.NewsletterText)
	require.NoError(t, err)
	assert.Contains(t, string(body), " - u1")

	clock = clock.Add(time.Minute)
	second, err := d.Dispatch(ctx, Notification{RunID: "run-2", Updates: []string{"u2"}, Recommendation: "r", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, first.Journal.Hash, second.Journal.PrevHash)

	last, err := journal.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Journal.ID, last.ID)

	_, err = st.GetObject(ctx, "logs/log_2025_04_01_083100.json")
	require.NoError(t, err)
	assert.Len(t, sender.Messages(), 2)
	assert.Equal(t, DefaultSubject, sender.Messages()[0].Subject)
}

func TestDispatcher_TransportFailure(t *testing.T) {
	ctx := context.Background()
	st := storage.NewInMemoryStorage()
	boom := errors.New("connection refused")
	d := NewDispatcher(DispatcherConfig{To: "x@example.com", NewslettersDir: "n"}, nil, failingSender{err: boom}, st, NewStorageJournal(st, "logs"), nil)

	_, err := d.Dispatch(ctx, Notification{Updates: []string{"u"}, Recommendation: "r"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, st.Keys(), "nothing is archived when delivery fails")
}

func TestVerify_DetectsTampering(t *testing.T) {
	entry := JournalEntry{ID: "1", SentAt: time.Unix(0, 0), Updates: []string{"a"}, Recommendation: "r"}
	entry.Hash = hashEntry(entry)
	assert.True(t, Verify(entry))

	entry.Updates = []string{"b"}
	assert.False(t, Verify(entry))
}

func TestSMTPSender_RequiresPassword(t *testing.T) {
	err := SMTPSender{Host: "smtp.example.com", Port: 587}.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrMissingPassword)
}
