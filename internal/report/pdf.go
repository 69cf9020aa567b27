package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/yourorg/arca/internal/findings"
)

// PDFOptions configures headless Chromium.
type PDFOptions struct {
	ChromiumPath string
	Timeout      time.Duration
}

// PDFRenderer prints a report to PDF via headless Chromium.
type PDFRenderer struct {
	opts PDFOptions
	tmpl *template.Template
}

func NewPDFRenderer(opts PDFOptions) PDFRenderer {
	return PDFRenderer{
		opts: opts,
		tmpl: template.Must(template.New("report").Parse(reportTemplate)),
	}
}

const defaultPDFTimeout = 15 * time.Second

// A4 in inches, as PrintToPDF expects.
const (
	a4Width  = 8.27
	a4Height = 11.69
)

func (o PDFOptions) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.DisableGPU, chromedp.NoSandbox)
	if o.ChromiumPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ChromiumPath))
	}
	return opts
}

func (o PDFOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultPDFTimeout
	}
	return o.Timeout
}

// Render returns the PDF bytes. If Chromium is unavailable it returns an error
// so the caller can decide to skip the attachment.
func (r PDFRenderer) Render(ctx context.Context, rep Report) ([]byte, error) {
	html, err := r.HTML(rep)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	pdf, err := printHTML(ctx, r.opts, html)
	if err != nil {
		return nil, fmt.Errorf("print report %s: %w", rep.RegulationID, err)
	}
	return pdf, nil
}

// printHTML loads html into a blank tab of a fresh headless browser and
// prints it. The browser is torn down before returning.
func printHTML(ctx context.Context, opts PDFOptions, html string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()
	ctx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts.allocatorOptions()...)
	defer cancelAlloc()
	ctx, cancelTab := chromedp.NewContext(ctx)
	defer cancelTab()

	var pdf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

type pdfSeverityRow struct {
	Literal string
	Count   int
}

// HTML renders the printable page.
func (r PDFRenderer) HTML(rep Report) (string, error) {
	counts := findings.Count(rep.Risks)
	rows := []pdfSeverityRow{
		{Literal: findings.SeverityHigh.Literal, Count: counts.High()},
		{Literal: findings.SeverityMedium.Literal, Count: counts.Medium()},
		{Literal: findings.SeverityLow.Literal, Count: counts.Low()},
	}
	if n := counts.Unrecognized(); n > 0 {
		rows = append(rows, pdfSeverityRow{Literal: "OTHER", Count: n})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, struct {
		Report     Report
		Date       string
		Severities []pdfSeverityRow
	}{
		Report:     rep,
		Date:       rep.DateProcessed.String(),
		Severities: rows,
	}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var reportTemplate = `
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <style>
    body { font-family: 'Helvetica Neue', Arial, sans-serif; margin: 24px; color: #0f172a; }
    h1 { margin: 0 0 8px; }
    .meta { display: flex; justify-content: space-between; margin-bottom: 16px; }
    .card { border: 1px solid #e2e8f0; border-radius: 8px; padding: 12px; margin-bottom: 12px; }
    .label { font-size: 12px; color: #475569; }
    .value { font-size: 14px; margin-bottom: 4px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { padding: 8px; border-bottom: 1px solid #e2e8f0; text-align: left; vertical-align: top; }
    th { background: #f8fafc; }
    .sev-HIGH { color: #b91c1c; font-weight: 700; }
    .sev-MEDIUM { color: #c2410c; font-weight: 700; }
    .sev-LOW { color: #0369a1; }
  </style>
</head>
<body>
  <div class="meta">
    <h1>ARCA Compliance Report</h1>
    <div style="text-align:right">
      <div class="label">Regulation ID</div>
      <div class="value">{{.Report.RegulationID}}</div>
      <div class="label">Processed</div>
      <div class="value">{{.Date}}</div>
      <div class="label">Risks flagged</div>
      <div class="value">{{.Report.TotalRisksFlagged}}</div>
    </div>
  </div>

  <div class="card">
    <div class="label">Recommendation</div>
    <div class="value">{{.Report.Recommendation}}</div>
    {{range .Severities}}<div class="value"><span class="sev-{{.Literal}}">{{.Literal}}</span>: {{.Count}}</div>{{end}}
  </div>

  <table>
    <thead>
      <tr>
        <th>Policy</th>
        <th>Severity</th>
        <th>Divergence</th>
        <th>Conflicting policy</th>
        <th>New rule</th>
      </tr>
    </thead>
    <tbody>
    {{range .Report.Risks}}
      <tr>
        <td>{{.PolicyID}}</td>
        <td class="sev-{{.Severity.Literal}}">{{.Severity.Literal}}</td>
        <td>{{.DivergenceSummary}}</td>
        <td>{{.ConflictingPolicyExcerpt}}</td>
        <td>{{.NewRuleExcerpt}}</td>
      </tr>
    {{end}}
    </tbody>
  </table>
</body>
</html>
`
