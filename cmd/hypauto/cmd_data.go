package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"hypauto/internal/cache"
	"hypauto/internal/config"
	"hypauto/internal/quota"
	"hypauto/internal/store"
)

// =============================================================================
// CACHE
// =============================================================================

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or edit the completed-task cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := openCache().Entries()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "Cache is empty")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", e.Patient, e.Type, e.Status, e.Date)
		}
		return nil
	},
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict <patient-id> [task-type]",
	Short: "Forget an outcome so the card is retried",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := openCache()
		if len(args) == 1 {
			if err := c.EvictPatient(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Evicted all outcomes of %s\n", args[0])
			return nil
		}
		t, err := quota.ParseTaskType(args[1])
		if err != nil {
			return err
		}
		if err := c.Evict(args[0], t); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Evicted %s of %s\n", t, args[0])
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop entries older than the configured maximum age",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := openCache().PurgeOlderThan(cfg.GetCacheMaxAge())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d entries\n", n)
		return nil
	},
}

func openCache() *cache.Cache {
	return cache.New(cfg.Resolve(cfg.Paths.CacheFile))
}

// =============================================================================
// OPT-OUT LIST
// =============================================================================

var optOutCmd = &cobra.Command{
	Use:   "optout",
	Short: "Manage patients excluded after the SMS consent gate",
}

var optOutListCmd = &cobra.Command{
	Use:   "list",
	Short: "List opted-out patients",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := cache.NewOptOutList(cfg.Resolve(cfg.Paths.OptOutFile)).List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No opted-out patients")
			return nil
		}
		for _, o := range list {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", o.ID, o.Name, o.Date, o.Reason)
		}
		return nil
	},
}

var optOutRemoveCmd = &cobra.Command{
	Use:   "remove <patient-id>",
	Short: "Allow a patient to be processed again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := cache.NewOptOutList(cfg.Resolve(cfg.Paths.OptOutFile)).Remove(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s is not on the opt-out list", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

// =============================================================================
// HISTORY
// =============================================================================

var historyMissing bool

var historyCmd = &cobra.Command{
	Use:   "history [limit|patient-id]",
	Short: "Show recent runs, or the missing-test ledger with --missing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hist, err := store.Open(cfg.Resolve(cfg.Paths.HistoryDB))
		if err != nil {
			return err
		}
		defer hist.Close()
		out := cmd.OutOrStdout()

		if historyMissing {
			pid := ""
			if len(args) == 1 {
				pid = args[0]
			}
			rows, err := hist.MissingTests(pid)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No missing tests recorded")
			}
			for _, r := range rows {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", r.RecordedAt.Format("2006-01-02"), r.PatientID, r.Task, r.Test)
			}
			return nil
		}

		limit := 10
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("limit must be a positive number, got %q", args[0])
			}
			limit = n
		}
		runs, err := hist.RecentRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded")
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s\t%s\tok=%d cancelled=%d skipped=%d failed=%d\n",
				r.StartedAt.Format("2006-01-02 15:04"), r.ID, r.Succeeded, r.Cancelled, r.Skipped, r.Failed)
		}
		return nil
	},
}

// =============================================================================
// TARGETS
// =============================================================================

var targetsHistory bool

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Show or set this month's targets",
	Long: `Targets are kept per month in the configuration file. A new month starts
without targets and runs are refused until they are entered; the figures of
past months stay available with "targets show --history".`,
}

var targetsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show this month's targets and progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		month, file, err := config.NewQuotaStore(configPath).OpenMonth()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTargets(file, month, targetsHistory))
		return nil
	},
}

var targetsSetCmd = &cobra.Command{
	Use:   "set <TYPE=N>...",
	Short: "Set monthly targets, e.g. HT_IZLEM=30 DIY_TARAMA=12",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := make(map[quota.TaskType]int, len(args))
		for _, a := range args {
			code, num, ok := strings.Cut(a, "=")
			if !ok {
				return fmt.Errorf("expected TYPE=N, got %q", a)
			}
			t, err := quota.ParseTaskType(code)
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(num)
			if err != nil || n < 0 {
				return fmt.Errorf("target of %s must be a non-negative number, got %q", t, num)
			}
			targets[t] = n
		}

		s := config.NewQuotaStore(configPath)
		month, _, err := s.OpenMonth()
		if err != nil {
			return err
		}
		file, err := s.Update(func(c *config.Config) (bool, error) {
			for t, n := range targets {
				c.SetTarget(t, n)
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTargets(file, month, false))
		return nil
	},
}

func init() {
	targetsCmd.AddCommand(targetsShowCmd, targetsSetCmd)
	targetsShowCmd.Flags().BoolVar(&targetsHistory, "history", false, "Also list the performance of past months")
	cacheCmd.AddCommand(cacheListCmd, cacheEvictCmd, cachePurgeCmd)
	optOutCmd.AddCommand(optOutListCmd, optOutRemoveCmd)
	historyCmd.Flags().BoolVar(&historyMissing, "missing", false, "List the missing-test ledger instead of runs")
}
