package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/api"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
	"fintrack/internal/sheets/memory"
)

func runSettings(ctx context.Context, e *env, args []string) error {
	sub, rest, err := subcommand(args, "show", "budget", "display")
	if err != nil {
		return err
	}
	switch sub {
	case "show":
		if err := parseFlags(newFlagSet(e, "settings show"), rest); err != nil {
			return err
		}
		s, err := e.app.API.Settings.Get(ctx)
		if err != nil {
			return err
		}
		return printJSON(e.stdout, s)
	case "budget":
		return runSettingsBudget(ctx, e, rest)
	default:
		return runSettingsDisplay(ctx, e, rest)
	}
}

func runSettingsBudget(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "settings budget")
	monthly := fs.Float64("monthly", 0, "monthly budget")
	threshold := fs.Float64("threshold", 0, "over-spending alert threshold in percent (0-100)")
	var limits []map[string]float64
	fs.Func("limit", "category limit as CATEGORY=AMOUNT (repeatable)", func(v string) error {
		name, raw, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("want CATEGORY=AMOUNT, got %q", v)
		}
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil || amount < 0 {
			return fmt.Errorf("invalid amount %q", raw)
		}
		limits = append(limits, map[string]float64{strings.TrimSpace(name): amount})
		return nil
	})
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var b core.BudgetSettings
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "monthly":
			b.MonthlyBudget = monthly
		case "threshold":
			b.OverSpendingThreshold = threshold
		}
	})
	b.CategoryLimits = limits
	if b.MonthlyBudget == nil && b.OverSpendingThreshold == nil && len(b.CategoryLimits) == 0 {
		return usagef("nothing to change")
	}
	if err := b.Validate(); err != nil {
		return usageError{msg: err.Error()}
	}

	if err := e.app.API.Settings.UpdateBudget(ctx, b); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "Budget settings updated")
	return nil
}

func runSettingsDisplay(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "settings display")
	var d core.DisplaySettings
	fs.StringVar(&d.DisplayCurrency, "currency", "", "display currency, e.g. EUR")
	fs.StringVar(&d.TimeZone, "timezone", "", "IANA time zone")
	fs.StringVar(&d.DateFormat, "date-format", "", "date format shown in the dashboard")
	fs.StringVar(&d.DefaultDashboardRange, "range", "", "default range: month, quarter, year or all")
	notifications := fs.Bool("notifications", false, "enable notifications")
	incomeAffects := fs.Bool("income-affects-budget", false, "count income against the budget")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NFlag() == 0 {
		return usagef("nothing to change")
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "notifications":
			d.NotificationsEnabled = notifications
		case "income-affects-budget":
			d.IncomeAffectsBudget = incomeAffects
		}
	})
	if d.TimeZone != "" {
		if _, err := time.LoadLocation(d.TimeZone); err != nil {
			return usagef("unknown time zone %q", d.TimeZone)
		}
	}
	if err := d.Validate(); err != nil {
		return usageError{msg: err.Error()}
	}

	if err := e.app.API.Settings.UpdateDisplay(ctx, d); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "Display settings updated")
	return nil
}

func runBank(ctx context.Context, e *env, args []string) error {
	sub, rest, err := subcommand(args, "link-token", "exchange", "transactions", "balance")
	if err != nil {
		return err
	}
	fs := newFlagSet(e, "bank "+sub)
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, rest); err != nil {
		return err
	}
	bank := e.app.API.Bank

	switch sub {
	case "link-token":
		tok, err := bank.CreateLinkToken(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(e.stdout, tok)
		}
		fmt.Fprintln(e.stdout, tok.LinkToken)
		return nil

	case "exchange":
		if fs.NArg() != 1 {
			return usagef("give exactly one public token")
		}
		res, err := bank.ExchangePublicToken(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		if *asJSON {
			// The access token stays in the credential store.
			return printJSON(e.stdout, map[string]string{"item_id": res.ItemID})
		}
		fmt.Fprintln(e.stdout, "Bank account linked")
		return nil

	case "transactions":
		txs, err := bank.Transactions(ctx)
		if err != nil {
			return bankError(err)
		}
		if *asJSON {
			return printJSON(e.stdout, txs)
		}
		tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tCATEGORY\tNAME\tAMOUNT")
		for _, tx := range txs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\n", tx.Date, tx.Category, tx.Name, tx.Amount, tx.Currency)
		}
		return tw.Flush()

	default:
		bal, err := bank.Balance(ctx)
		if err != nil {
			return bankError(err)
		}
		if *asJSON {
			return printJSON(e.stdout, bal.Raw)
		}
		tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ACCOUNT\tTYPE\tAVAILABLE\tCURRENT\tCURRENCY")
		for _, a := range bal.Accounts {
			name := a.Name
			if a.Mask != "" {
				name += " ••" + a.Mask
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, a.Type,
				formatBalance(a.Balances.Available), formatBalance(a.Balances.Current), a.Balances.Currency)
		}
		return tw.Flush()
	}
}

func bankError(err error) error {
	if errors.Is(err, api.ErrNoBankLink) {
		return errors.New("no bank account linked; run `fintrack bank link-token` and `fintrack bank exchange`")
	}
	return err
}

func formatBalance(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func runOverview(ctx context.Context, e *env, args []string) error {
	now := time.Now()
	fs := newFlagSet(e, "overview")
	month := fs.Int("month", int(now.Month()), "month 1-12")
	year := fs.Int("year", now.Year(), "year")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *month < 1 || *month > 12 {
		return usagef("-month must be between 1 and 12")
	}

	ov, err := e.app.API.Transactions.Overview(ctx, *month, *year)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(e.stdout, ov)
	}

	fmt.Fprintf(e.stdout, "%04d-%02d\n", ov.Year, ov.Month)
	fmt.Fprintf(e.stdout, "  Income:   %s\n", ov.Income)
	fmt.Fprintf(e.stdout, "  Expenses: %s\n", ov.Expenses)
	fmt.Fprintf(e.stdout, "  Net:      %s\n", ov.Net)
	if len(ov.ByCategory) == 0 {
		return nil
	}
	fmt.Fprintln(e.stdout)
	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTYPE\tAMOUNT")
	for _, c := range ov.ByCategory {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Type, c.Amount)
	}
	return tw.Flush()
}

// runExportSheets appends transactions that are not yet in the spreadsheet,
// one tab per year.
func runExportSheets(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "export-sheets")
	year := fs.Int("year", 0, "only export this year")
	month := fs.Int("month", 0, "only export this month (requires -year)")
	dryRun := fs.Bool("dry-run", false, "export to an in-memory sheet and report what would be written")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *month != 0 && (*month < 1 || *month > 12 || *year == 0) {
		return usagef("-month must be 1-12 and needs -year")
	}

	var (
		txs []core.Transaction
		err error
	)
	if *month != 0 {
		txs, err = e.app.API.Transactions.ListByMonth(ctx, *month, *year)
	} else {
		txs, err = e.app.API.Transactions.List(ctx)
	}
	if err != nil {
		return err
	}
	if *year != 0 {
		filtered := txs[:0]
		for _, tx := range txs {
			if tx.Date.Year() == *year {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}

	var dst ports.Exporter
	if *dryRun {
		dst = memory.New()
	} else {
		dst, err = cli.NewSheetsExporter(ctx, e.app.Config, e.app.Logger)
		if err != nil {
			return err
		}
	}

	results, err := ports.Export(ctx, dst, txs)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(e.stdout, "Nothing to export.")
		return nil
	}
	for _, r := range results {
		line := fmt.Sprintf("%d: %d written, %d already present", r.Year, r.Written, r.Skipped)
		if r.RowRef != "" {
			line += " (" + r.RowRef + ")"
		}
		fmt.Fprintln(e.stdout, line)
	}
	return nil
}

// runEvents tails the session event queue until interrupted.
func runEvents(ctx context.Context, e *env, args []string) error {
	if err := parseFlags(newFlagSet(e, "events"), args); err != nil {
		return err
	}
	if e.app.Events == nil {
		return errors.New("AMQP is not configured or unreachable (set AMQP_URL)")
	}

	err := e.app.Events.Consume(ctx, func(m *amqp.SessionEventMessage) error {
		ev := m.Event()
		line := ev.Time.Local().Format(time.DateTime) + "  " + string(ev.Type)
		if ev.Reason != "" {
			line += "  " + ev.Reason
		}
		if ev.RequestID != "" {
			line += "  [" + ev.RequestID + "]"
		}
		_, err := fmt.Fprintln(e.stdout, line)
		return err
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runWhoami(ctx context.Context, e *env, args []string) error {
	if err := parseFlags(newFlagSet(e, "whoami"), args); err != nil {
		return err
	}
	name, err := e.app.API.User.Name(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, name)
	return nil
}

func runCategories(ctx context.Context, e *env, args []string) error {
	if err := parseFlags(newFlagSet(e, "categories"), args); err != nil {
		return err
	}
	cats, err := e.app.API.Categories.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range cats {
		fmt.Fprintln(e.stdout, c)
	}
	return nil
}

func runInvestments(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "investments")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	invs, err := e.app.API.Investments.List(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(e.stdout, invs)
	}
	if len(invs) == 0 {
		fmt.Fprintln(e.stdout, "No investments.")
		return nil
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tQUANTITY\tBOUGHT\tCOST\tVALUE\tGAIN")
	var cost, value int64
	for _, inv := range invs {
		cost += inv.CostBasis().Cents
		value += inv.MarketValue().Cents
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", inv.Symbol,
			strconv.FormatFloat(inv.Quantity, 'f', -1, 64), inv.PurchaseDate,
			inv.CostBasis(), inv.MarketValue(), inv.Gain())
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t%s\t%s\n",
		core.Money{Cents: cost}, core.Money{Cents: value}, core.Money{Cents: value - cost})
	return tw.Flush()
}
