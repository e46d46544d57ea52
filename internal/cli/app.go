package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"finpulse/internal/backend"
	"finpulse/internal/config"
	"finpulse/internal/core"
	"finpulse/internal/log"
	"finpulse/internal/seed"
	"finpulse/internal/services"
	"finpulse/internal/storage"
)

const (
	unavailableNotice = "Storage is unavailable. Check FINPULSE_DB_PATH and its permissions, then try again."
	panicNotice       = "Something went wrong. Please try again; if it keeps happening, run with LOG_LEVEL=debug."
)

// App holds what a command needs once storage is open. One App serves one
// process.
type App struct {
	out    io.Writer
	errOut io.Writer
	logger *log.Logger

	cfg       *config.Config
	res       *backend.Result
	ledger    *services.Ledger
	backupDir string

	now func() time.Time
	loc *time.Location
}

// NewApp returns an App that loads its configuration from the environment
// on first use.
func NewApp(out, errOut io.Writer) *App {
	cfg := log.DefaultConfig()
	cfg.Component = log.ComponentCLI
	cfg.Output = errOut
	return &App{
		out:       out,
		errOut:    errOut,
		logger:    log.New(cfg),
		backupDir: "./backups",
		now:       time.Now,
		loc:       time.Local,
	}
}

// open loads config, opens storage, seeds defaults and loads the ledger.
// It runs once per App.
func (a *App) open(ctx context.Context) error {
	if a.ledger != nil {
		return nil
	}

	if a.res == nil {
		if a.cfg == nil {
			LoadEnvFile()
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			logger, err := SetupLogger(cfg, a.errOut)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			a.backupDir = cfg.BackupDir
		}

		bcfg, err := backend.FromAppConfig(a.cfg)
		if err != nil {
			return err
		}
		res, err := backend.NewFactory(a.logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
		if err != nil {
			return err
		}
		a.res = res
	}

	if err := seed.EnsureDefaults(ctx, a.res.Store); err != nil {
		a.logger.WarnContext(ctx, "Failed to seed defaults, continuing without them", log.FieldError, err)
	}

	a.ledger = services.NewLedger(a.res.Store, services.WithClock(a.now))
	return a.ledger.Load(ctx)
}

// Close releases storage and the broker connection.
func (a *App) Close() error {
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.res == nil || a.res.Cleanup == nil {
		return nil
	}
	return a.res.Cleanup()
}

func (a *App) currency() string {
	return a.ledger.Settings().Currency
}

func (a *App) money(amount float64) string {
	return core.FormatAmount(amount, a.currency())
}

// window resolves a --month value; empty means the current month.
func (a *App) window(month string) (core.Window, error) {
	if month == "" {
		return core.MonthWindow(a.now().In(a.loc)), nil
	}
	return core.ParseMonth(month, a.loc)
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := NewApp(stdout, stderr)
	defer func() {
		if err := app.Close(); err != nil {
			app.logger.Warn("Failed to close storage", log.FieldError, err)
		}
	}()
	return run(ctx, app, NewRootCommand(app), args)
}

// run executes root once. A panic in a command is logged and reported as a
// failure instead of crashing the process.
func run(ctx context.Context, app *App, root *cobra.Command, args []string) (code int) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			app.logger.Error("Command panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			fmt.Fprintln(app.errOut, panicNotice)
			code = 1
		}
	}()

	root.SetArgs(args)
	root.SetOut(app.out)
	root.SetErr(app.errOut)
	root.SilenceUsage = true
	root.SilenceErrors = true

	cmd, err := root.ExecuteContextC(ctx)
	if cmd == nil {
		cmd = root
	}
	fields := log.NewFields().
		WithCommand(cmd.CommandPath()).
		WithDuration(time.Since(start)).
		WithError(err)
	if err != nil {
		app.logger.Debug("Command failed", fields.ToSlice()...)
		if errors.Is(err, storage.ErrUnavailable) {
			fmt.Fprintln(app.errOut, unavailableNotice)
		} else {
			fmt.Fprintf(app.errOut, "Error: %v\n", err)
		}
		return 1
	}
	app.logger.Debug("Command finished", fields.ToSlice()...)
	return 0
}

// NewRootCommand builds the finpulse command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "finpulse",
		Short: "Track transactions, budgets and goals and see your financial pulse.",
		Long: `finpulse keeps a local ledger of transactions, categories, goals,
accounts and budgets, and derives monthly statistics and a financial
health pulse from it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return app.open(cmd.Context())
		},
	}

	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newSeedCommand(app),
		newTxCommand(app),
		newGoalCommand(app),
		newCategoryCommand(app),
		newAccountCommand(app),
		newBudgetCommand(app),
		newSettingsCommand(app),
		newStatsCommand(app),
		newPulseCommand(app),
		newBackupCommand(app),
		newWatchCommand(app),
	)
	return root
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
