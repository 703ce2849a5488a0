package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hypauto/internal/browser"
	"hypauto/internal/cache"
	"hypauto/internal/clinical"
	"hypauto/internal/config"
	"hypauto/internal/engine"
	"hypauto/internal/notify"
	"hypauto/internal/outcome"
	"hypauto/internal/protocol"
	"hypauto/internal/secrets"
	"hypauto/internal/store"
	"hypauto/internal/update"
	"hypauto/internal/worklist"
)

var (
	runPercent int
	runTypes   []string
	runAttach  bool
	runDates   []string
	runLast    int
)

var runCmd = &cobra.Command{
	Use:   "run [patient-id-or-name...]",
	Short: "Work through the given patients, or the portal's patient list",
	Long: `Processes every eligible task card of each patient in turn. Without
arguments the patient list currently shown on the portal is used; --dates and
--last work through the appointment lists of past days instead.

Ctrl-C stops after the card in progress has been finished or cancelled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		days, err := appointmentDays(time.Now())
		if err != nil {
			return err
		}
		if len(days) > 0 && len(args) > 0 {
			return fmt.Errorf("patients and --dates/--last are mutually exclusive")
		}
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (outcome.Summary, error) {
			switch {
			case len(days) > 0:
				return e.RunDates(ctx, days)
			case len(args) == 0:
				return e.RunDailyList(ctx)
			}
			return e.RunPatients(ctx, args)
		})
	},
}

var patientCmd = &cobra.Command{
	Use:   "patient <id|name>",
	Short: "Process a single patient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (outcome.Summary, error) {
			res, err := e.ProcessPatient(ctx, args[0])
			if errors.Is(err, engine.ErrSkipped) {
				fmt.Fprintln(cmd.OutOrStdout(), err)
				err = nil
			}
			if err == nil {
				v := e.Recorder().PatientVerdict(patientKey(res, args[0]))
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", v.Status, v.Message)
			}
			return e.Recorder().Summary(), err
		})
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Process patient ids dropped into the inbox directory",
	Long: `Watches the inbox for <11-digit id>.tc files, processes each patient and
writes a JSON notice per patient to the outbox.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		inbox := notify.NewInbox(cfg.Resolve(cfg.Paths.Inbox))
		outbox := notify.NewOutbox(cfg.Resolve(cfg.Paths.Outbox))
		logger.Info("listening", zap.String("inbox", inbox.Dir()))
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (outcome.Summary, error) {
			err := e.ServeQueue(ctx, inbox, outbox)
			return e.Recorder().Summary(), err
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, patientCmd, listenCmd} {
		c.Flags().IntVar(&runPercent, "percent", 0, "Session target percentage (e.g. 70 or 100)")
		c.Flags().StringSliceVar(&runTypes, "types", nil, "Task types to work on, e.g. HT_IZLEM,DIY_TARAMA (default all)")
		c.Flags().BoolVar(&runAttach, "attach", true, "Attach to a running browser when one answers")
	}
	runCmd.Flags().StringSliceVar(&runDates, "dates", nil, "Appointment dates to work through, e.g. 14.10.2026,15.10.2026")
	runCmd.Flags().IntVar(&runLast, "last", 0, "Work through the appointments of the last N days")
}

// appointmentDays resolves --dates and --last into days, oldest first.
func appointmentDays(now time.Time) ([]time.Time, error) {
	if len(runDates) > 0 && runLast > 0 {
		return nil, fmt.Errorf("--dates and --last are mutually exclusive")
	}
	if runLast < 0 {
		return nil, fmt.Errorf("--last must be positive, got %d", runLast)
	}
	if runLast > 0 {
		return engine.LastDays(now, runLast), nil
	}
	days := make([]time.Time, 0, len(runDates))
	for _, s := range runDates {
		d, err := time.ParseInLocation(worklist.DateLayout, strings.TrimSpace(s), time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q, expected dd.mm.yyyy", s)
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

func applyRunFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("percent") {
		cfg.Run.SessionPercent = runPercent
	}
	if cmd.Flags().Changed("types") {
		cfg.Run.EnabledTypes = runTypes
	}
	if cmd.Flags().Changed("attach") {
		cfg.Browser.AttachExisting = runAttach
	}
}

func patientKey(res engine.PatientResult, query string) string {
	if res.Patient.ID != "" {
		return res.Patient.ID
	}
	return query
}

// withEngine builds the engine from the configuration, records the run in
// the history database and prints the summary when fn returns.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) (outcome.Summary, error)) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	counts := config.NewQuotaStore(configPath)
	month, file, err := counts.OpenMonth()
	if err != nil {
		return err
	}
	cfg.Quota = file.Quota
	if !cfg.MonthConfigured(month) {
		return fmt.Errorf("no targets entered for %s; set them first, e.g. hypauto targets set HT_IZLEM=30",
			config.MonthDisplayName(month))
	}
	rc, err := engine.NewRunConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checkForUpdate(ctx)

	var preg protocol.PregnancyLookup
	if path := cfg.Resolve(cfg.Paths.PregnancyRoster); path != "" {
		roster, err := clinical.LoadPregnancyRoster(path)
		if err != nil {
			logger.Warn("pregnancy roster unavailable, answering no", zap.Error(err))
		} else {
			logger.Info("pregnancy roster loaded", zap.Int("entries", roster.Len()))
			preg = roster
		}
	}

	recorder := outcome.NewRecorder()
	hist, err := store.Open(cfg.Resolve(cfg.Paths.HistoryDB))
	if err != nil {
		logger.Warn("run history disabled", zap.Error(err))
	}
	var runID string
	if hist != nil {
		defer hist.Close()
		if runID, err = hist.BeginRun(time.Now()); err != nil {
			logger.Warn("run history disabled", zap.Error(err))
		} else {
			recorder.AddListener(hist.Listener(runID))
		}
	}

	ctrl := browser.NewController(browser.FromConfig(cfg))
	e := engine.New(rc, engine.Deps{
		Session:  ctrl,
		Counts:   counts,
		Secrets:  pinProvider(),
		Cache:    cache.New(cfg.Resolve(cfg.Paths.CacheFile)),
		OptOut:   cache.NewOptOutList(cfg.Resolve(cfg.Paths.OptOutFile)),
		Runner:   protocol.NewRunner(nil, preg, nil),
		Recorder: recorder,
		Logger:   logger,
	})
	defer e.Stop()

	summary, runErr := fn(ctx, e)

	if hist != nil && runID != "" {
		if err := hist.FinishRun(runID, time.Now(), summary.Stats); err != nil {
			logger.Warn("run history not finalized", zap.Error(err))
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary, e.Tracker().Snapshot()))
	logger.Info("monthly counts saved", zap.String("month", month), zap.String("config", configPath))

	if errors.Is(runErr, context.Canceled) {
		logger.Info("stopped on request")
		return nil
	}
	return runErr
}

func pinProvider() secrets.SecretProvider {
	return secrets.Chain{
		secrets.EnvProvider{},
		secrets.NewAgeStore(cfg.Resolve(cfg.Paths.IdentityFile), cfg.Resolve(cfg.Paths.PINFile)),
	}
}

// checkForUpdate logs once when a newer release is published. It never fails the run.
func checkForUpdate(ctx context.Context) {
	if !cfg.Update.CheckOnBoot || cfg.Update.URL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.GetUpdateTimeout())
	defer cancel()
	res, err := update.Check(ctx, &http.Client{Timeout: cfg.GetUpdateTimeout()}, cfg.Update.URL, update.Version)
	if err != nil {
		logger.Debug("update check failed", zap.Error(err))
		return
	}
	if res.Available {
		logger.Info("update available", zap.String("current", res.Current), zap.String("latest", res.Remote),
			zap.String("download", res.Manifest.DownloadURL))
	}
}
