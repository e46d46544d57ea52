package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"finpulse/internal/core"
)

func newGoalCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goal",
		Short: "Manage savings goals",
	}

	var (
		name, target, current, deadline string
		description, category           string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a savings goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targetAmount, err := core.ParseAmount(target)
			if err != nil {
				return fmt.Errorf("target %q: %w", target, err)
			}
			var currentAmount float64
			if current != "" {
				if currentAmount, err = core.ParseAmount(current); err != nil {
					return fmt.Errorf("current %q: %w", current, err)
				}
			}
			due, err := core.ParseDate(deadline, app.loc)
			if err != nil {
				return err
			}
			id, err := app.ledger.AddGoal(cmd.Context(), core.Goal{
				Name:          name,
				TargetAmount:  targetAmount,
				CurrentAmount: currentAmount,
				Deadline:      due,
				Description:   description,
				Category:      category,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added goal %d\n", id)
			return nil
		},
	}
	add.Flags().StringVarP(&name, "name", "n", "", "Goal name")
	add.Flags().StringVar(&target, "target", "", "Target amount")
	add.Flags().StringVar(&current, "current", "", "Amount already saved")
	add.Flags().StringVar(&deadline, "deadline", "", "Deadline, 2006-01-02")
	add.Flags().StringVarP(&description, "description", "d", "", "Description")
	add.Flags().StringVarP(&category, "category", "c", "", "Category name")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("target")
	_ = add.MarkFlagRequired("deadline")

	list := &cobra.Command{
		Use:   "list",
		Short: "Show goal progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			goals := app.ledger.Goals()
			out := cmd.OutOrStdout()
			if len(goals) == 0 {
				fmt.Fprintln(out, "No goals.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPROGRESS\tREMAINING\tDAYS LEFT\tSTATUS")
			for _, g := range goals {
				fmt.Fprintf(tw, "%d\t%s\t%.1f%%\t%s\t%d\t%s\n",
					g.GoalID, g.Name, g.Percentage, app.money(g.Remaining), g.DaysLeft, goalState(g))
			}
			return tw.Flush()
		},
	}

	contribute := &cobra.Command{
		Use:   "contribute <id> <amount>",
		Short: "Add money to a goal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			g, err := app.ledger.ContributeToGoal(cmd.Context(), id, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s of %s\n",
				g.Name, app.money(g.CurrentAmount), app.money(g.TargetAmount))
			return nil
		},
	}

	var upd struct {
		name, target, current, deadline string
		description, category           string
	}
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			changed := cmd.Flags().Changed
			patch := map[string]any{}
			for flag, amount := range map[string]string{"target": upd.target, "current": upd.current} {
				if !changed(flag) {
					continue
				}
				v, err := core.ParseAmount(amount)
				if err != nil {
					return fmt.Errorf("%s %q: %w", flag, amount, err)
				}
				patch[flag+"Amount"] = v
			}
			if changed("deadline") {
				due, err := core.ParseDate(upd.deadline, app.loc)
				if err != nil {
					return err
				}
				patch["deadline"] = due
			}
			if changed("name") {
				patch["name"] = upd.name
			}
			if changed("description") {
				patch["description"] = upd.description
			}
			if changed("category") {
				patch["category"] = upd.category
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update, pass at least one flag")
			}
			ok, err := app.ledger.UpdateGoal(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No goal %d\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated goal %d\n", id)
			return nil
		},
	}
	update.Flags().StringVarP(&upd.name, "name", "n", "", "Goal name")
	update.Flags().StringVar(&upd.target, "target", "", "Target amount")
	update.Flags().StringVar(&upd.current, "current", "", "Amount already saved")
	update.Flags().StringVar(&upd.deadline, "deadline", "", "Deadline, 2006-01-02")
	update.Flags().StringVarP(&upd.description, "description", "d", "", "Description")
	update.Flags().StringVarP(&upd.category, "category", "c", "", "Category name")

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a goal",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ok, err := app.ledger.DeleteGoal(cmd.Context(), id)
			if err != nil {
				return err
			}
			reportDelete(cmd, "goal", id, ok)
			return nil
		},
	}

	cmd.AddCommand(add, list, update, contribute, del)
	return cmd
}

func goalState(g core.GoalStatus) string {
	switch {
	case g.Reached:
		return "reached"
	case g.Overdue:
		return "overdue"
	}
	return "in progress"
}

func reportDelete(cmd *cobra.Command, what string, id int64, ok bool) {
	if ok {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %d\n", what, id)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "No %s %d\n", what, id)
}

func newCategoryCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage categories",
	}

	var name, typ, color, icon, budget string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := core.Category{Name: name, Type: core.CategoryType(typ), Color: color, Icon: icon}
			if budget != "" {
				ceiling, err := core.ParseAmount(budget)
				if err != nil {
					return fmt.Errorf("budget %q: %w", budget, err)
				}
				c.Budget = &ceiling
			}
			id, err := app.ledger.AddCategory(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added category %d\n", id)
			return nil
		},
	}
	add.Flags().StringVarP(&name, "name", "n", "", "Category name")
	add.Flags().StringVar(&typ, "type", string(core.CategoryExpense), "income, expense or both")
	add.Flags().StringVar(&color, "color", "#6b7280", "Display color")
	add.Flags().StringVar(&icon, "icon", "tag", "Icon name")
	add.Flags().StringVar(&budget, "budget", "", "Optional spending ceiling")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tCOLOR\tICON")
			for _, c := range app.ledger.Categories() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.Color, c.Icon)
			}
			return tw.Flush()
		},
	}

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a category; its transactions keep the name",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ok, err := app.ledger.DeleteCategory(cmd.Context(), id)
			if err != nil {
				return err
			}
			reportDelete(cmd, "category", id, ok)
			return nil
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func newAccountCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	var name, typ, balance, currency, color string
	var inactive bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var amount float64
			if balance != "" {
				var (
					negative bool
					err      error
				)
				if amount, negative, err = core.ParseSignedAmount(balance); err != nil {
					return fmt.Errorf("balance %q: %w", balance, err)
				}
				if negative {
					amount = -amount
				}
			}
			if currency == "" {
				currency = app.currency()
			}
			id, err := app.ledger.AddAccount(cmd.Context(), core.Account{
				Name:     name,
				Type:     core.AccountType(typ),
				Balance:  amount,
				Currency: currency,
				Color:    color,
				IsActive: !inactive,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added account %d\n", id)
			return nil
		},
	}
	add.Flags().StringVarP(&name, "name", "n", "", "Account name")
	add.Flags().StringVar(&typ, "type", string(core.Checking), "checking, savings, credit, cash or investment")
	add.Flags().StringVar(&balance, "balance", "", "Opening balance, may be negative")
	add.Flags().StringVar(&currency, "currency", "", "Currency code (default: settings currency)")
	add.Flags().StringVar(&color, "color", "#3b82f6", "Display color")
	add.Flags().BoolVar(&inactive, "inactive", false, "Create the account as inactive")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tBALANCE\tACTIVE")
			for _, a := range app.ledger.Accounts() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n",
					a.ID, a.Name, a.Type, core.FormatAmount(a.Balance, a.Currency), a.IsActive)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newBudgetCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage budgets",
	}

	var category, amount, period, start, end string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a budget for a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			categoryID, err := app.categoryID(category)
			if err != nil {
				return err
			}
			limit, err := core.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("amount %q: %w", amount, err)
			}
			b := core.Budget{CategoryID: categoryID, Amount: limit, Period: core.BudgetPeriod(period)}
			if start == "" {
				b.StartDate = core.MonthWindow(app.now().In(app.loc)).Start
			} else if b.StartDate, err = core.ParseDate(start, app.loc); err != nil {
				return err
			}
			if end != "" {
				until, err := core.ParseDate(end, app.loc)
				if err != nil {
					return err
				}
				b.EndDate = &until
			}
			id, err := app.ledger.AddBudget(cmd.Context(), b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added budget %d\n", id)
			return nil
		},
	}
	add.Flags().StringVarP(&category, "category", "c", "", "Category name or id")
	add.Flags().StringVarP(&amount, "amount", "a", "", "Spending limit")
	add.Flags().StringVar(&period, "period", string(core.Monthly), "monthly, weekly or yearly")
	add.Flags().StringVar(&start, "start", "", "Start date (default: first day of this month)")
	add.Flags().StringVar(&end, "end", "", "Optional end date")
	_ = add.MarkFlagRequired("category")
	_ = add.MarkFlagRequired("amount")

	var month string
	list := &cobra.Command{
		Use:   "list",
		Short: "Show budget usage for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := app.window(month)
			if err != nil {
				return err
			}
			usage := app.ledger.Budgets(w)
			if len(usage) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No budgets.")
				return nil
			}
			return app.renderBudgets(cmd, usage)
		},
	}
	list.Flags().StringVarP(&month, "month", "m", "", "Month, 2006-01 (default current)")

	cmd.AddCommand(add, list)
	return cmd
}

// categoryID resolves a category by id or, case-insensitively, by name.
func (a *App) categoryID(ref string) (int64, error) {
	categories := a.ledger.Categories()
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, c := range categories {
			if c.ID == id {
				return id, nil
			}
		}
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, ref) {
			return c.ID, nil
		}
	}
	return 0, fmt.Errorf("no category %q", ref)
}

func (a *App) renderBudgets(cmd *cobra.Command, usage []core.BudgetUsage) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tPERIOD\tLIMIT\tSPENT\tREMAINING\tUSED")
	for _, u := range usage {
		used := fmt.Sprintf("%.1f%%", u.Percentage)
		if u.Over {
			used += " over"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.Category, u.Period, a.money(u.Limit), a.money(u.Spent), a.money(u.Remaining), used)
	}
	return tw.Flush()
}

func newSettingsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change user settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.ledger.Settings()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "currency\t%s\n", s.Currency)
			fmt.Fprintf(tw, "language\t%s\n", s.Language)
			fmt.Fprintf(tw, "theme\t%s\n", s.Theme)
			fmt.Fprintf(tw, "date-format\t%s\n", s.DateFormat)
			fmt.Fprintf(tw, "week-starts-on\t%s\n", time.Weekday(s.WeekStartsOn))
			fmt.Fprintf(tw, "notifications\t%t\n", s.Notifications)
			fmt.Fprintf(tw, "auto-backup\t%t\n", s.AutoBackup)
			fmt.Fprintf(tw, "default-account\t%d\n", s.DefaultAccountID)
			return tw.Flush()
		},
	}

	var (
		next           core.UserSettings
		defaultAccount int64
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the settings given as flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.ledger.Settings()
			flags := cmd.Flags()
			if flags.Changed("currency") {
				s.Currency = strings.ToUpper(next.Currency)
			}
			if flags.Changed("language") {
				s.Language = next.Language
			}
			if flags.Changed("theme") {
				s.Theme = next.Theme
			}
			if flags.Changed("date-format") {
				s.DateFormat = next.DateFormat
			}
			if flags.Changed("week-starts-on") {
				s.WeekStartsOn = next.WeekStartsOn
			}
			if flags.Changed("notifications") {
				s.Notifications = next.Notifications
			}
			if flags.Changed("auto-backup") {
				s.AutoBackup = next.AutoBackup
			}
			if flags.Changed("default-account") {
				s.DefaultAccountID = defaultAccount
			}
			if err := app.ledger.SaveSettings(cmd.Context(), s); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Settings saved")
			return nil
		},
	}
	set.Flags().StringVar(&next.Currency, "currency", "", "Currency code")
	set.Flags().StringVar(&next.Language, "language", "", "Language")
	set.Flags().StringVar(&next.Theme, "theme", "", "light, dark or system")
	set.Flags().StringVar(&next.DateFormat, "date-format", "", "Date format")
	set.Flags().IntVar(&next.WeekStartsOn, "week-starts-on", 1, "0 (Sunday) to 6 (Saturday)")
	set.Flags().BoolVar(&next.Notifications, "notifications", true, "Enable notifications")
	set.Flags().BoolVar(&next.AutoBackup, "auto-backup", true, "Enable automatic backups")
	set.Flags().Int64Var(&defaultAccount, "default-account", 0, "Default account id")

	cmd.AddCommand(show, set)
	return cmd
}
