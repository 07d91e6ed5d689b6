package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/tenet/internal/classify"
	"github.com/steveyegge/tenet/internal/config"
	"github.com/steveyegge/tenet/internal/constraint"
	"github.com/steveyegge/tenet/internal/engine"
	"github.com/steveyegge/tenet/internal/logging"
	"github.com/steveyegge/tenet/internal/notification"
	"github.com/steveyegge/tenet/internal/storage"
	"github.com/steveyegge/tenet/internal/telemetry"
	"github.com/steveyegge/tenet/internal/ui"
)

var (
	dbPath     string
	orgID      string
	actorName  string
	leadFlag   bool
	jsonOutput bool

	verboseFlag bool // Enable verbose/debug output
	quietFlag   bool // Suppress non-essential output

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	settings config.Settings
	logger   *slog.Logger
	store    storage.Storage
	eng      *engine.Engine

	// Held so serve can hot-reload rule files.
	classifier classify.Classifier
	evaluator  constraint.Evaluator

	closeNotifier func()
)

// noDbCommands never open the store.
var noDbCommands = map[string]bool{
	"config":     true,
	"version":    true,
	"help":       true,
	"completion": true,
}

func isNoDbCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if noDbCommands[c.Name()] {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: .tenet/tenet.db)")
	rootCmd.PersistentFlags().StringVar(&orgID, "org", "", "Organization id (default: $TENET_ORG or config org)")
	rootCmd.PersistentFlags().StringVar(&actorName, "actor", "", "Actor name for the audit trail (default: $TENET_ACTOR, $USER)")
	rootCmd.PersistentFlags().BoolVar(&leadFlag, "lead", false, "Act as a privileged lead")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
}

var rootCmd = &cobra.Command{
	Use:   "tn",
	Short: "tn - Decision governance and integrity engine",
	Long: `Track organizational decisions, the assumptions they rest on and the
constraints they must honour. tn keeps a health signal per decision, detects
contradictions, gates edits behind leads and keeps a replayable history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()

		if err := config.Initialize(); err != nil {
			FatalError("%v", err)
		}
		applyFlagOverrides(cmd)
		settings = config.Load()

		level := logging.LevelFromFlags(settings.Log.Level, verboseFlag, quietFlag)
		logger = logging.New(os.Stderr, level, settings.Log.Format)
		ui.InitColor()

		if isNoDbCommand(cmd) {
			return
		}

		if err := telemetry.Init(rootCtx, "tn", Version); err != nil {
			logger.Warn("telemetry init failed", "error", err)
		}
		openEngine()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeNotifier != nil {
			closeNotifier()
		}
		if store != nil {
			_ = store.Close()
		}
		if !isNoDbCommand(cmd) {
			if err := telemetry.Shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyFlagOverrides pushes explicitly set flags into the config layer so
// they win over env and config.yaml.
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		config.Set(config.KeyDB, dbPath)
	}
	if flags.Changed("org") {
		config.Set(config.KeyOrg, orgID)
	}
	if flags.Changed("actor") {
		config.Set(config.KeyActor, actorName)
	}
	if flags.Changed("lead") {
		config.Set(config.KeyLead, leadFlag)
	}
}

func openEngine() {
	s, err := openStore(rootCtx, settings)
	if err != nil {
		FatalErrorWithHint(fmt.Sprintf("failed to open database: %v", err),
			"Check the db/backend settings with 'tn config show'")
	}
	store = telemetry.WrapStorage(s)

	if classifier, err = classify.Open(settings.Classifier); err != nil {
		FatalError("failed to set up classifier: %v", err)
	}
	if evaluator, err = constraint.Open(settings.Constraint); err != nil {
		FatalError("failed to set up constraint rules: %v", err)
	}
	dispatcher, closeFn, err := notification.Open(settings.Notify, logger)
	if err != nil {
		FatalError("failed to set up notifications: %v", err)
	}
	closeNotifier = closeFn

	eng = engine.New(store,
		engine.WithConfig(engineConfig(settings)),
		engine.WithClassifier(classifier),
		engine.WithEvaluator(evaluator),
		engine.WithDispatcher(dispatcher),
		engine.WithLogger(logger),
	)
}

func engineConfig(s config.Settings) engine.Config {
	cfg := engine.DefaultConfig()
	if s.Conflict.Threshold > 0 {
		cfg.Threshold = s.Conflict.Threshold
	}
	cfg.DetectOnWrite = s.Conflict.DetectOnWrite
	cfg.StaleAfter = s.Sweep.StaleAfter
	if s.Sweep.Concurrency > 0 {
		cfg.Concurrency = s.Sweep.Concurrency
	}
	return cfg
}

// getActor returns who this invocation acts as.
func getActor() engine.Actor {
	name := settings.Actor
	if name == "" {
		name = "unknown"
	}
	return engine.Actor{Name: name, Lead: settings.Lead}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
