package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"finpulse/internal/core"
	"finpulse/internal/csvio"
	"finpulse/internal/log"
	"finpulse/internal/storage"
)

type txFlags struct {
	date        string
	amount      string
	typ         string
	category    string
	account     string
	description string
	tags        []string
	notes       string
	from        string
	to          string
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.date, "date", "t", "", "Transaction date, 2006-01-02 (default today)")
	cmd.Flags().StringVarP(&f.amount, "amount", "a", "", "Amount, unsigned")
	cmd.Flags().StringVar(&f.typ, "type", string(core.Expense), "income, expense or transfer")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "Category name")
	cmd.Flags().StringVar(&f.account, "account", "", "Account name (default: the default account)")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "Description")
	cmd.Flags().StringSliceVar(&f.tags, "tags", nil, "Comma separated tags")
	cmd.Flags().StringVar(&f.notes, "notes", "", "Free text notes")
	cmd.Flags().StringVar(&f.from, "from", "", "Source account of a transfer")
	cmd.Flags().StringVar(&f.to, "to", "", "Destination account of a transfer")
}

func newTxCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transaction"},
		Short:   "Add, list, change and move transactions",
	}
	cmd.AddCommand(
		newTxAddCommand(app),
		newTxListCommand(app),
		newTxUpdateCommand(app),
		newTxDeleteCommand(app),
		newTxImportCommand(app),
		newTxExportCommand(app),
	)
	return cmd
}

func newTxAddCommand(app *App) *cobra.Command {
	var f txFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(f.amount)
			if err != nil {
				return fmt.Errorf("amount %q: %w", f.amount, err)
			}
			date := app.now().In(app.loc)
			if f.date != "" {
				if date, err = core.ParseDate(f.date, app.loc); err != nil {
					return err
				}
			}
			account := f.account
			if account == "" {
				account = app.defaultAccount()
			}

			tx := core.Transaction{
				Date:        date,
				Amount:      amount,
				Type:        core.TransactionType(f.typ),
				Category:    f.category,
				Account:     account,
				Description: f.description,
				Tags:        f.tags,
				Notes:       f.notes,
				FromAccount: f.from,
				ToAccount:   f.to,
			}
			id, err := app.ledger.AddTransaction(cmd.Context(), tx)
			if err != nil {
				return err
			}
			fields := log.NewFields().WithRecord(string(storage.KindTransactions), id)
			fields[log.FieldAmount] = tx.Amount
			fields[log.FieldType] = tx.Type
			fields[log.FieldCategory] = tx.Category
			app.logger.Info("Transaction added", fields.ToSlice()...)
			fmt.Fprintf(cmd.OutOrStdout(), "Added transaction %d\n", id)
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// defaultAccount names the account chosen in the settings, if it still
// exists.
func (a *App) defaultAccount() string {
	id := a.ledger.Settings().DefaultAccountID
	for _, acc := range a.ledger.Accounts() {
		if id == 0 && acc.IsActive {
			return acc.Name
		}
		if acc.ID == id {
			return acc.Name
		}
	}
	return ""
}

func newTxListCommand(app *App) *cobra.Command {
	var (
		month  string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 || offset < 0 {
				return fmt.Errorf("--limit and --offset must not be negative")
			}
			txs, err := app.listTransactions(cmd, month, limit, offset)
			if err != nil {
				return err
			}
			app.renderTransactions(cmd.OutOrStdout(), txs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&month, "month", "m", "", "Only this month, 2006-01")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows, 0 for all")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func (a *App) listTransactions(cmd *cobra.Command, month string, limit, offset int) ([]core.Transaction, error) {
	if month == "" {
		return a.res.Store.Transactions.GetMany(cmd.Context(), storage.ListOptions{Limit: limit, Offset: offset})
	}
	w, err := a.window(month)
	if err != nil {
		return nil, err
	}
	txs, err := a.res.Store.Transactions.GetByDateRange(cmd.Context(), w.Start, w.End)
	if err != nil {
		return nil, err
	}
	offset = max(offset, 0)
	if offset >= len(txs) {
		return nil, nil
	}
	txs = txs[offset:]
	if limit > 0 && limit < len(txs) {
		txs = txs[:limit]
	}
	return txs, nil
}

func (a *App) renderTransactions(out io.Writer, txs []core.Transaction) {
	if len(txs) == 0 {
		fmt.Fprintln(out, "No transactions.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tAMOUNT\tCATEGORY\tACCOUNT\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID,
			tx.Date.In(a.loc).Format(time.DateOnly),
			tx.Type,
			a.money(tx.Amount),
			tx.Category,
			tx.Account,
			tx.Description)
	}
	tw.Flush()
}

func newTxUpdateCommand(app *App) *cobra.Command {
	var f txFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			patch, err := f.patch(cmd, app.loc)
			if err != nil {
				return err
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update, pass at least one flag")
			}
			ok, err := app.ledger.UpdateTransaction(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No transaction %d\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated transaction %d\n", id)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// patch collects the flags set on the command line under their JSON names.
func (f *txFlags) patch(cmd *cobra.Command, loc *time.Location) (map[string]any, error) {
	changed := cmd.Flags().Changed
	patch := map[string]any{}
	if changed("amount") {
		amount, err := core.ParseAmount(f.amount)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", f.amount, err)
		}
		patch["amount"] = amount
	}
	if changed("date") {
		date, err := core.ParseDate(f.date, loc)
		if err != nil {
			return nil, err
		}
		patch["date"] = date
	}
	strs := map[string]struct {
		json  string
		value string
	}{
		"type":        {"type", f.typ},
		"category":    {"category", f.category},
		"account":     {"account", f.account},
		"description": {"description", f.description},
		"notes":       {"notes", f.notes},
		"from":        {"fromAccount", f.from},
		"to":          {"toAccount", f.to},
	}
	for flag, field := range strs {
		if changed(flag) {
			patch[field.json] = field.value
		}
	}
	if changed("tags") {
		patch["tags"] = f.tags
	}
	return patch, nil
}

func newTxDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a transaction",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ok, err := app.ledger.DeleteTransaction(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No transaction %d\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted transaction %d\n", id)
			return nil
		},
	}
}

func newTxImportCommand(app *App) *cobra.Command {
	var delimiter string
	cmd := &cobra.Command{
		Use:   "import-csv <file>",
		Short: "Import transactions from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer file.Close()

			opts := csvio.Options{Source: filepath.Base(path), Location: app.loc, Now: app.now}
			if delimiter != "" {
				opts.Delimiter = []rune(delimiter)[0]
			}
			res, err := csvio.ReadTransactions(file, opts)
			if err != nil {
				return err
			}
			ids, err := app.ledger.ImportTransactions(cmd.Context(), res.Transactions)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d transactions (batch %s), skipped %d rows\n",
				len(ids), res.BatchID, len(res.Skipped))
			return nil
		},
	}
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "Field delimiter (default ,)")
	return cmd
}

func newTxExportCommand(app *App) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "export-csv [file]",
		Short: "Export transactions to CSV, stdout when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txs, err := app.listTransactions(cmd, month, 0, 0)
			if err != nil {
				return err
			}
			if len(args) == 0 || args[0] == "-" {
				return csvio.WriteTransactions(cmd.OutOrStdout(), txs)
			}

			path := args[0]
			file, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			if err := csvio.WriteTransactions(file, txs); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d transactions to %s\n", len(txs), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&month, "month", "m", "", "Only this month, 2006-01")
	return cmd
}
