// Package csvio moves transactions in and out of CSV files.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"finpulse/internal/core"
)

// Row is the CSV layout, header names included.
type Row struct {
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Type        string `csv:"type"`
	Category    string `csv:"category"`
	Account     string `csv:"account"`
	Tags        string `csv:"tags"`
	Notes       string `csv:"notes"`
}

const tagSeparator = "|"

// dateLayouts are tried in order after ISO dates and RFC 3339.
var dateLayouts = []string{"02.01.2006", "02/01/2006"}

// Options tunes ReadTransactions.
type Options struct {
	Source    string // recorded in importInfo, usually the file name
	Delimiter rune
	Location  *time.Location
	Now       func() time.Time
}

// RowError describes a row that could not be imported.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Result of a CSV import. All transactions share one batch id.
type Result struct {
	BatchID      string
	Transactions []core.Transaction
	Skipped      []RowError
}

var ErrNoRows = errors.New("csv has no data rows")

// WriteTransactions writes txs with a header line. Amounts are unsigned; the
// type column carries the direction.
func WriteTransactions(w io.Writer, txs []core.Transaction) error {
	rows := make([]*Row, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &Row{
			Date:        tx.Date.Format(time.DateOnly),
			Description: tx.Description,
			Amount:      core.FormatAmount(tx.Amount, ""),
			Type:        string(tx.Type),
			Category:    tx.Category,
			Account:     tx.Account,
			Tags:        strings.Join(tx.Tags, tagSeparator),
			Notes:       tx.Notes,
		})
	}
	if err := gocsv.MarshalCSV(&rows, gocsv.NewSafeCSVWriter(csv.NewWriter(w))); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ReadTransactions parses a CSV export. Rows that cannot be converted are
// reported in Result.Skipped and do not stop the import. A negative amount
// is stored as its magnitude on an expense; with an empty type column a
// positive amount becomes income.
func ReadTransactions(r io.Reader, opts Options) (Result, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	var rows []*Row
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return Result{}, ErrNoRows
		}
		return Result{}, fmt.Errorf("read csv: %w", err)
	}

	res := Result{BatchID: uuid.NewString()}
	importedAt := opts.Now().UTC()
	for i, row := range rows {
		// header is line 1
		line := i + 2
		tx, err := convertRow(row, opts.Location)
		if err != nil {
			slog.Warn("Skipping CSV row", "row", line, "error", err)
			res.Skipped = append(res.Skipped, RowError{Row: line, Err: err})
			continue
		}
		tx.ImportInfo = &core.ImportInfo{
			Source:     opts.Source,
			BatchID:    res.BatchID,
			ImportedAt: importedAt,
			Row:        line,
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res, nil
}

func convertRow(row *Row, loc *time.Location) (core.Transaction, error) {
	date, err := parseDate(strings.TrimSpace(row.Date), loc)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, negative, err := core.ParseSignedAmount(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %q", err, row.Amount)
	}

	typ := core.TransactionType(strings.ToLower(strings.TrimSpace(row.Type)))
	switch {
	case typ == "":
		typ = core.Income
		if negative {
			typ = core.Expense
		}
	case !typ.IsValid():
		return core.Transaction{}, fmt.Errorf("%w: %q", core.ErrInvalidType, row.Type)
	case negative && typ != core.Transfer:
		typ = core.Expense
	}

	tx := core.Transaction{
		Date:        date,
		Amount:      amount,
		Description: strings.TrimSpace(row.Description),
		Category:    strings.TrimSpace(row.Category),
		Account:     strings.TrimSpace(row.Account),
		Type:        typ,
		Notes:       row.Notes,
	}
	if t := strings.TrimSpace(row.Tags); t != "" {
		for _, tag := range strings.Split(t, tagSeparator) {
			if tag = strings.TrimSpace(tag); tag != "" {
				tx.Tags = append(tx.Tags, tag)
			}
		}
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := core.ParseDate(s, loc); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
}
