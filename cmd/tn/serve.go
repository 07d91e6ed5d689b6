package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/tenet/internal/classify"
	"github.com/steveyegge/tenet/internal/config"
	"github.com/steveyegge/tenet/internal/constraint"
	"github.com/steveyegge/tenet/internal/engine"
	"github.com/steveyegge/tenet/internal/lockfile"
	"github.com/steveyegge/tenet/internal/ui"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the health and conflict sweeps once",
	Long: `Re-evaluate every live decision and send review reminders for stale
ones, then run a full conflict detection pass. Use --health or --conflicts to
run only one of them.`,
	Run: func(cmd *cobra.Command, args []string) {
		onlyHealth, _ := cmd.Flags().GetBool("health")
		onlyConflicts, _ := cmd.Flags().GetBool("conflicts")
		runHealth := onlyHealth || !onlyConflicts
		runConflicts := onlyConflicts || !onlyHealth

		out := struct {
			Health    *engine.SweepResult  `json:"health,omitempty"`
			Conflicts *engine.DetectResult `json:"conflicts,omitempty"`
		}{}
		var err error
		if runHealth {
			out.Health, err = eng.SweepHealth(rootCtx)
			FatalIfErr(err)
		}
		if runConflicts {
			out.Conflicts, err = eng.SweepConflicts(rootCtx)
			FatalIfErr(err)
		}

		if jsonOutput {
			outputJSON(out)
			return
		}
		if h := out.Health; h != nil {
			printOK("Health: %d evaluated, %d changed, %d reminded", h.Evaluated, h.Changed, h.Reminded)
			if h.Failed > 0 {
				fmt.Fprintf(os.Stderr, "%s %d decisions could not be evaluated\n", ui.RenderWarn("⚠"), h.Failed)
			}
		}
		if c := out.Conflicts; c != nil {
			printOK("Conflicts: %d pairs compared, %d new, %d updated", c.PairsCompared, c.ConflictsDetected, c.ConflictsUpdated)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the periodic sweeps until interrupted",
	Long: `Run the health sweep every sweep.health-interval and the conflict sweep
every sweep.conflict-interval until interrupted. Classifier and constraint
rule files are reloaded when they change on disk.`,
	Run: func(cmd *cobra.Command, args []string) {
		iv := engine.SweepIntervals{
			Health:    settings.Sweep.HealthInterval,
			Conflicts: settings.Sweep.ConflictInterval,
		}
		if iv.Health <= 0 && iv.Conflicts <= 0 {
			FatalErrorWithHint("both sweeps are disabled",
				"Set sweep.health-interval or sweep.conflict-interval with 'tn config set'")
		}

		lock, err := lockfile.Acquire(serveLockPath(settings), lockfile.Info{
			Database: settings.DB,
			Org:      eng.OrgID(),
			Version:  Version,
		})
		if err != nil {
			FatalErrorWithHint(err.Error(), "Another 'tn serve' is already sweeping this organization")
		}
		defer func() { _ = lock.Release() }()

		logger.Info("serving", "org", eng.OrgID(),
			"health_interval", iv.Health, "conflict_interval", iv.Conflicts)
		if err := serve(rootCtx, iv); err != nil {
			FatalError("%v", err)
		}
		logger.Info("stopped")
	},
}

// serveLockPath is the lock file guarding one organization's sweeps. SQLite
// keeps it next to the database; a Dolt server is shared, so the lock lives
// in the project directory.
func serveLockPath(s config.Settings) string {
	name := "serve-" + filepath.Base(filepath.Clean("/"+s.Org)) + ".lock"
	if s.Backend == config.BackendDolt {
		return filepath.Join(config.DirName, name)
	}
	return filepath.Join(filepath.Dir(s.DB), name)
}

// serve runs the sweeps next to the rule file watchers. The first watcher
// error stops everything.
func serve(ctx context.Context, iv engine.SweepIntervals) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.RunSweeps(ctx, iv)
	})

	if rc, ok := classifier.(*classify.RuleClassifier); ok && settings.Classifier.RulesFile != "" {
		g.Go(func() error {
			return rc.Watch(ctx, settings.Classifier.RulesFile, logger)
		})
	}
	if re, ok := evaluator.(*constraint.RuleEvaluator); ok && settings.Constraint.RulesFile != "" {
		g.Go(func() error {
			return re.Watch(ctx, settings.Constraint.RulesFile, logger)
		})
	}
	return g.Wait()
}

func init() {
	sweepCmd.Flags().Bool("health", false, "Only run the health sweep")
	sweepCmd.Flags().Bool("conflicts", false, "Only run the conflict sweep")

	rootCmd.AddCommand(sweepCmd, serveCmd)
}
