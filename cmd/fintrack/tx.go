package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"fintrack/internal/core"
)

func runTx(ctx context.Context, e *env, args []string) error {
	sub, rest, err := subcommand(args, "list", "add", "edit", "delete", "import")
	if err != nil {
		return err
	}
	switch sub {
	case "list":
		return runTxList(ctx, e, rest)
	case "add":
		return runTxAdd(ctx, e, rest)
	case "edit":
		return runTxEdit(ctx, e, rest)
	case "import":
		return runTxImport(ctx, e, rest)
	default:
		return runTxDelete(ctx, e, rest)
	}
}

func runTxList(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "tx list")
	month := fs.Int("month", 0, "month 1-12 (default: all transactions)")
	year := fs.Int("year", 0, "year (default: current year when -month is set)")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var (
		txs []core.Transaction
		err error
	)
	if *month != 0 {
		if *month < 1 || *month > 12 {
			return usagef("-month must be between 1 and 12")
		}
		if *year == 0 {
			*year = time.Now().Year()
		}
		txs, err = e.app.API.Transactions.ListByMonth(ctx, *month, *year)
	} else {
		txs, err = e.app.API.Transactions.List(ctx)
	}
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(e.stdout, txs)
	}
	if len(txs) == 0 {
		fmt.Fprintln(e.stdout, "No transactions.")
		return nil
	}
	printTransactions(e.stdout, txs)
	return nil
}

// txFlags binds the editable transaction fields to a flag set.
type txFlags struct {
	name, typ, category, amount, date, currency, notes, frequency string
	period                                                        int
}

func (f *txFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.name, "name", "", "description")
	fs.StringVar(&f.typ, "type", "", "Expense or Income")
	fs.StringVar(&f.category, "category", "", "category name")
	fs.StringVar(&f.amount, "amount", "", "positive decimal amount, e.g. 12.50")
	fs.StringVar(&f.date, "date", "", "date as YYYY-MM-DD")
	fs.StringVar(&f.currency, "currency", "", "ISO currency code")
	fs.StringVar(&f.notes, "notes", "", "free-form notes")
	fs.StringVar(&f.frequency, "frequency", "", "recurrence: daily, weekly, monthly or yearly")
	fs.IntVar(&f.period, "period", 0, "number of recurrences")
}

// apply copies the flags that were set on the command line onto tx.
func (f *txFlags) apply(fs *flag.FlagSet, tx *core.Transaction) error {
	var err error
	fs.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "name":
			tx.Name = f.name
		case "type":
			var t core.TransactionType
			if t, err = core.ParseTransactionType(f.typ); err == nil {
				tx.Type = t
			}
		case "category":
			tx.Category = f.category
		case "amount":
			var cents int64
			if cents, err = core.ParseDecimalToCents(f.amount); err == nil {
				tx.Amount = core.Money{Cents: cents}
			}
		case "date":
			var d core.Date
			if d, err = core.ParseDate(f.date); err == nil {
				tx.Date = d
			}
		case "currency":
			tx.Currency = strings.ToUpper(f.currency)
		case "notes":
			tx.Notes = f.notes
		case "frequency":
			tx.Frequency = core.Frequency(f.frequency)
		case "period":
			tx.Period = f.period
		}
	})
	if err != nil {
		return usageError{msg: err.Error()}
	}
	return nil
}

func runTxAdd(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "tx add")
	var f txFlags
	f.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	now := time.Now()
	tx := core.Transaction{
		Type: core.Expense,
		Date: core.NewDate(now.Year(), int(now.Month()), now.Day()),
	}
	if err := f.apply(fs, &tx); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return usageError{msg: err.Error()}
	}

	created, err := e.app.API.Transactions.Create(ctx, tx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Created transaction %d: %s %s %s on %s\n",
		created.ID, created.Type, created.Amount, created.Name, created.Date)
	return nil
}

// runTxEdit fetches the current transaction, overlays the given flags and
// patches the merged result.
func runTxEdit(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "tx edit")
	id := fs.Int64("id", 0, "transaction id")
	var f txFlags
	f.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return usagef("-id is required")
	}
	if fs.NFlag() == 1 {
		return usagef("nothing to change")
	}

	all, err := e.app.API.Transactions.List(ctx)
	if err != nil {
		return err
	}
	var current *core.Transaction
	for i := range all {
		if all[i].ID == *id {
			current = &all[i]
			break
		}
	}
	if current == nil {
		return fmt.Errorf("transaction %d not found", *id)
	}

	tx := *current
	if err := f.apply(fs, &tx); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return usageError{msg: err.Error()}
	}

	updated, err := e.app.API.Transactions.Update(ctx, *id, tx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Updated transaction %d\n", updated.ID)
	return nil
}

func runTxDelete(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "tx delete")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usagef("give at least one transaction id")
	}
	ids := make([]int64, 0, fs.NArg())
	for _, arg := range fs.Args() {
		for _, part := range strings.Split(arg, ",") {
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return usagef("invalid transaction id %q", part)
			}
			ids = append(ids, id)
		}
	}

	if err := e.app.API.Transactions.Delete(ctx, ids); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Deleted %d transaction(s)\n", len(ids))
	return nil
}

// runTxImport creates every row of a CSV file in one batch. The whole file
// is validated before anything is sent.
func runTxImport(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "tx import")
	file := fs.String("file", "", "CSV file with title,category,amount,date[,notes] columns; - reads stdin")
	typ := fs.String("type", "expense", "type for rows without a type column")
	dryRun := fs.Bool("dry-run", false, "parse and print the rows without creating them")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *file == "" {
		return usagef("-file is required")
	}
	defaultType, err := core.ParseTransactionType(*typ)
	if err != nil {
		return usageError{msg: err.Error()}
	}

	var r io.Reader = e.stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	txs, err := core.ReadTransactionsCSV(r, defaultType)
	if err != nil {
		return fmt.Errorf("%s: %w", *file, err)
	}
	if len(txs) == 0 {
		fmt.Fprintln(e.stdout, "No rows to import.")
		return nil
	}

	if *dryRun {
		printTransactions(e.stdout, txs)
		fmt.Fprintf(e.stdout, "%d row(s) would be imported\n", len(txs))
		return nil
	}
	created, err := e.app.API.Transactions.CreateBatch(ctx, txs)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Imported %d transaction(s)\n", len(created))
	return nil
}

func printTransactions(w io.Writer, txs []core.Transaction) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tNAME\tAMOUNT")
	for _, tx := range txs {
		amount := tx.Amount.String()
		if tx.Currency != "" {
			amount += " " + tx.Currency
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Date, tx.Type, tx.Category, tx.Name, amount)
	}
	tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
