package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/arca/internal/api"
	"github.com/yourorg/arca/internal/config"
	"github.com/yourorg/arca/internal/findings"
	"github.com/yourorg/arca/internal/metrics"
	"github.com/yourorg/arca/internal/notify"
	"github.com/yourorg/arca/internal/pipeline"
	"github.com/yourorg/arca/internal/report"
	"github.com/yourorg/arca/internal/storage"
	"github.com/yourorg/arca/internal/tracker"
)

const smtpTimeout = 30 * time.Second

func runNotify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()
	paths := cfg.Paths
	st := storage.NewLocalStorage("")
	rec := metrics.NewRecorder()
	defer flushMetrics(rec, logger)

	prefs, err := config.LoadPreferences(paths.Resolve(paths.Preferences))
	if errors.Is(err, config.ErrPreferencesNotFound) {
		logger.Warn("preferences not found, using defaults", "path", paths.Resolve(paths.Preferences))
		prefs = config.DefaultPreferences()
	} else if err != nil {
		return err
	}

	store, closeStore, err := openStateStore(cfg, st, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	templates, err := notify.LoadTemplates(ctx, st, paths.Resolve(paths.HTMLTemplate), paths.Resolve(paths.TextTemplate))
	if err != nil {
		return err
	}

	dryRun := notifyDryRun || !notifySend
	var sender notify.Sender = &notify.DryRunSender{}
	if !dryRun {
		sender = notify.SMTPSender{
			Host:     prefs.SMTPHost,
			Port:     prefs.SMTPPort,
			Username: string(prefs.Email),
			Password: prefs.EmailPassword,
			Timeout:  smtpTimeout,
		}
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		From:           string(prefs.Email),
		To:             string(prefs.Email),
		NewslettersDir: paths.Resolve(paths.NewslettersDir),
	}, templates, sender, st, notify.NewStorageJournal(st, paths.Resolve(paths.LogsDir)), logger)

	n := pipeline.NewNotifier(pipeline.NotifierDeps{
		Store:       store,
		Storage:     st,
		Classifier:  findings.NewClassifier(logger),
		Dispatcher:  dispatcher,
		Preferences: prefs,
		Sources: pipeline.Sources{
			Researcher: paths.Resolve(paths.ResearcherOutput),
			Generator:  paths.Resolve(paths.GeneratorReport),
			Auditor:    paths.Resolve(paths.AuditorOutput),
		},
		PDF:     reportRenderer(cfg, prefs.AttachPDF),
		Metrics: rec,
		Logger:  logger,
	})
	res, err := n.Run(ctx, pipeline.NotifyOptions{DryRun: dryRun})
	if err != nil {
		return err
	}
	if res.Outcome == pipeline.OutcomeDryRun && res.Receipt != nil {
		fmt.Fprintln(cmd.OutOrStdout(), res.Receipt.Content.Text)
	}
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()
	paths := cfg.Paths
	rec := metrics.NewRecorder()
	defer flushMetrics(rec, logger)

	g := pipeline.NewGenerator(pipeline.GeneratorDeps{
		Storage:     storage.NewLocalStorage(""),
		Classifier:  findings.NewClassifier(logger),
		FindingsKey: paths.Resolve(paths.AuditorOutput),
		ReportKey:   paths.Resolve(paths.GeneratorReport),
		PDFKey:      paths.Resolve(cfg.PDF.Output),
		PDF:         reportRenderer(cfg, generatePDF),
		Metrics:     rec,
		Logger:      logger,
	})
	res, err := g.Run(cmd.Context(), pipeline.GenerateOptions{PDF: generatePDF || cfg.PDF.Enabled})
	if err != nil {
		return err
	}
	if res.Written {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d risks\t%s\n", res.Report.RegulationID, res.Report.TotalRisksFlagged, res.Report.Recommendation)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()
	paths := cfg.Paths
	st := storage.NewLocalStorage("")

	store, closeStore, err := openStateStore(cfg, st, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewServer(api.Options{
			Storage:   st,
			State:     store,
			Journal:   notify.NewStorageJournal(st, paths.Resolve(paths.LogsDir)),
			ReportKey: paths.Resolve(paths.GeneratorReport),
			KeyHash:   cfg.Server.APIKeyHash,
			Logger:    logger,
		}).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Server.APIKeyHash == "" {
		logger.Warn("server.api_key_hash not set, /api is unauthenticated")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("arca api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	raw, err := api.GenerateKey()
	if err != nil {
		return err
	}
	params := api.DefaultHashParams()
	params.Algorithm = api.HashAlgorithm(keygenAlgo)
	hash, err := api.HashKey(raw, params)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key:  %s\n", raw)
	fmt.Fprintf(out, "hash: %s\n", hash)
	return nil
}

// reportRenderer returns a Chromium renderer when the run wants a PDF or
// pdf.enabled is set, nil otherwise.
func reportRenderer(cfg *config.Config, want bool) pipeline.ReportRenderer {
	if !want && !cfg.PDF.Enabled {
		return nil
	}
	return report.NewPDFRenderer(report.PDFOptions{ChromiumPath: cfg.PDF.ChromiumPath, Timeout: cfg.PDF.Timeout})
}

// openStateStore picks the tracker backend. The returned func releases it.
func openStateStore(cfg *config.Config, st storage.Storage, logger *slog.Logger) (tracker.Store, func(), error) {
	switch cfg.State.Backend {
	case config.BackendRedis:
		rs, err := tracker.NewRedisStoreFromURL(cfg.State.RedisURL, cfg.State.RedisKey, logger)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				logger.Warn("closing redis", "error", err)
			}
		}, nil
	case config.BackendMemory:
		return tracker.NewMemoryStore(nil), func() {}, nil
	default:
		return tracker.NewFileStore(st, cfg.Paths.Resolve(cfg.Paths.StateFile), logger), func() {}, nil
	}
}

func flushMetrics(rec *metrics.Recorder, logger *slog.Logger) {
	rec.Finish(time.Now())
	if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("writing metrics textfile failed", "path", cfg.Metrics.Textfile, "error", err)
	}
}
