package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"finpulse/internal/core"
	"finpulse/internal/log"
	"finpulse/internal/notify"
	"finpulse/internal/services"
	"finpulse/internal/worker"
)

func newStatsCommand(app *App) *cobra.Command {
	var (
		month  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Income, expenses and category breakdown of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := app.window(month)
			if err != nil {
				return err
			}
			stats := app.ledger.MonthlyStats(w)
			categories := app.ledger.CategoryStats(w)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, struct {
					Window     string              `json:"window"`
					Stats      core.MonthlyStats   `json:"stats"`
					Categories []core.CategoryStat `json:"categories"`
				}{w.String(), stats, categories})
			}
			app.renderStats(out, w, stats, categories)
			return nil
		},
	}
	cmd.Flags().StringVarP(&month, "month", "m", "", "Month, 2006-01 (default current)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func (a *App) renderStats(out io.Writer, w core.Window, stats core.MonthlyStats, categories []core.CategoryStat) {
	fmt.Fprintf(out, "Period %s\n", w)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Income\t%s\n", a.money(stats.Income))
	fmt.Fprintf(tw, "Expenses\t%s\n", a.money(stats.Expenses))
	fmt.Fprintf(tw, "Balance\t%s\n", a.money(stats.Balance))
	tw.Flush()

	if len(categories) == 0 {
		return
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tAMOUNT\tSHARE\tCOUNT")
	for _, c := range categories {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%d\n", c.Category, a.money(c.Amount), c.Percentage, c.Count)
	}
	tw.Flush()
}

func newPulseCommand(app *App) *cobra.Command {
	var (
		month  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "pulse",
		Short: "Financial health of a month, with budgets and goals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := app.window(month)
			if err != nil {
				return err
			}
			d := app.ledger.Dashboard(w)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			return app.renderDashboard(cmd, d)
		},
	}
	cmd.Flags().StringVarP(&month, "month", "m", "", "Month, 2006-01 (default current)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func (a *App) renderDashboard(cmd *cobra.Command, d services.Dashboard) error {
	out := cmd.OutOrStdout()
	p := d.Pulse
	fmt.Fprintf(out, "Period %s: %s (score %.0f)\n", d.Window, p.Status, p.Score)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Income\t%s\n", a.money(p.MonthlyIncome))
	fmt.Fprintf(tw, "Expenses\t%s\n", a.money(p.MonthlyExpenses))
	fmt.Fprintf(tw, "Remaining\t%s\n", a.money(p.RemainingBudget))
	fmt.Fprintf(tw, "Per day\t%s for %d days\n", a.money(p.DailyBudget), p.DaysUntilNextIncome)
	fmt.Fprintf(tw, "Projected\t%s\n", a.money(p.ProjectedEndOfMonth))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(d.Budgets) > 0 {
		fmt.Fprintln(out)
		if err := a.renderBudgets(cmd, d.Budgets); err != nil {
			return err
		}
	}
	if len(d.Goals) > 0 {
		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "GOAL\tPROGRESS\tDAYS LEFT\tSTATUS")
		for _, g := range d.Goals {
			fmt.Fprintf(tw, "%s\t%.1f%%\t%d\t%s\n", g.Name, g.Percentage, g.DaysLeft, goalState(g))
		}
		return tw.Flush()
	}
	return nil
}

func newWatchCommand(app *App) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the pulse on screen and refresh it on every change",
		Long: `watch prints the pulse of a month and prints it again whenever the
data changes, from this process or, with AMQP_URL set, from any other
finpulse instance sharing the exchange.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := app.window(month)
			if err != nil {
				return err
			}
			if err := app.renderDashboard(cmd, app.ledger.Dashboard(w)); err != nil {
				return err
			}

			workerErr := make(chan error, 1)
			if client := app.res.AMQP; client != nil {
				changes := worker.NewChangeWorker(client, app.res.Bus)
				workerCtx := log.NewContext(ctx, app.logger.WithComponent(log.ComponentWorker))
				go func() { workerErr <- changes.Run(workerCtx) }()
			} else {
				app.logger.Info("AMQP disabled, watching local changes only")
			}

			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				select {
				case err := <-workerErr:
					if err != nil && !errors.Is(err, context.Canceled) {
						app.logger.Error("Change worker stopped", log.FieldError, err)
						cancel()
					}
				case <-watchCtx.Done():
				}
			}()

			return app.ledger.Watch(watchCtx, func(ctx context.Context, e notify.Event) {
				app.logger.Debug("Change received",
					log.FieldWindow, w.String(),
					log.FieldSource, e.Source,
					log.FieldKind, e.Kind,
					log.FieldOperation, e.Op)
				fmt.Fprintln(cmd.OutOrStdout())
				if err := app.renderDashboard(cmd, app.ledger.Dashboard(w)); err != nil {
					app.logger.Warn("Failed to render dashboard", log.FieldError, err)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&month, "month", "m", "", "Month, 2006-01 (default current)")
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
