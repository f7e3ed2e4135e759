package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/smartfinance/internal/app"
	"github.com/dvloznov/smartfinance/internal/config"
	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/jobs"
	"github.com/dvloznov/smartfinance/internal/ledger"
	"github.com/dvloznov/smartfinance/internal/logger"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// action runs a subcommand against the opened ledger.
type action func(ctx context.Context, a *app.App) error

// command registers a subcommand's flags on fs and returns its action.
type command func(fs *flag.FlagSet) action

var commands = map[string]command{
	"accounts":        runAccounts,
	"add-account":     runAddAccount,
	"delete-account":  runDeleteAccount,
	"transactions":    runTransactions,
	"add-transaction": runAddTransaction,
	"dashboard":       runDashboard,
	"advice":          runAdvice,
	"export":          runExport,
	"restore":         runRestore,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	if err := run(name, cmd, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("SmartFinance CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  accounts          List accounts and the total balance")
	fmt.Println("  add-account       Create an account")
	fmt.Println("  delete-account    Delete an account (its transactions are kept)")
	fmt.Println("  transactions      List transactions, newest first")
	fmt.Println("  add-transaction   Record an income or expense")
	fmt.Println("  dashboard         Show balance, this month's totals and recent activity")
	fmt.Println("  advice            Ask the AI advisor about the ledger")
	fmt.Println("  export            Export the ledger to GCS or BigQuery")
	fmt.Println("  restore           Replace the local ledger with a GCS snapshot")
	fmt.Println("  help              Show this help message")
	fmt.Println("\nEvery command accepts -env FILE, -user ID and -v.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// run parses the command line, opens the ledger and runs the command.
func run(name string, cmd command, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envFile := fs.String("env", "", "Path to a .env file")
	user := fs.String("user", "", "User id (default: DEFAULT_USER_ID)")
	verbose := fs.Bool("v", false, "Log to stderr")
	exec := cmd(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *user != "" {
		cfg.Server.DefaultUserID = *user
	}

	log := logger.NewConsole(os.Stderr)
	if *verbose {
		lvl, err := logger.ParseLevel(cfg.Server.LogLevel)
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		log = log.Level(lvl)
	} else {
		log = log.Level(zerolog.ErrorLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, b := range a.Banners {
		fmt.Fprintln(os.Stderr, "Note:", b)
	}

	return exec(logger.WithUser(ctx, a.UserID()), a)
}

func runAccounts(fs *flag.FlagSet) action {
	return func(ctx context.Context, a *app.App) error {
		accounts, err := a.Session.Ledger().Accounts(ctx, a.UserID())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tBANK\tBALANCE")
		for _, acc := range accounts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", acc.ID, acc.Name, acc.BankName, acc.Balance.StringFixed(2))
		}
		fmt.Fprintf(w, "\t\tTOTAL\t%s\n", ledger.TotalBalance(accounts).StringFixed(2))
		return w.Flush()
	}
}

func runAddAccount(fs *flag.FlagSet) action {
	name := fs.String("name", "", "Account name")
	bank := fs.String("bank", "", "Bank or institution name")
	balance := fs.String("balance", "0", "Opening balance")
	color := fs.String("color", "", "Display color tag")
	return func(ctx context.Context, a *app.App) error {
		opening, err := decimal.NewFromString(*balance)
		if err != nil {
			return fmt.Errorf("invalid -balance %q: %w", *balance, err)
		}

		acc, err := a.Session.Ledger().CreateAccount(ctx, a.UserID(), ledger.NewAccount{
			Name:     *name,
			BankName: *bank,
			Balance:  opening,
			Color:    *color,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Created account %s (%s, %s) with balance %s\n", acc.ID, acc.Name, acc.BankName, acc.Balance.StringFixed(2))
		return nil
	}
}

func runDeleteAccount(fs *flag.FlagSet) action {
	id := fs.String("id", "", "Account id")
	return func(ctx context.Context, a *app.App) error {
		if *id == "" {
			return errors.New("-id is required")
		}

		if err := a.Session.Ledger().DeleteAccount(ctx, a.UserID(), *id); err != nil {
			return err
		}
		fmt.Printf("Deleted account %s\n", *id)
		return nil
	}
}

func runTransactions(fs *flag.FlagSet) action {
	limit := fs.Int("limit", 0, "Show at most this many transactions (0 = all)")
	return func(ctx context.Context, a *app.App) error {
		txs, err := a.Session.Ledger().Transactions(ctx, a.UserID())
		if err != nil {
			return err
		}
		if *limit > 0 && len(txs) > *limit {
			txs = txs[:*limit]
		}
		return printTransactions(txs)
	}
}

func runAddTransaction(fs *flag.FlagSet) action {
	account := fs.String("account", "", "Account id")
	amount := fs.String("amount", "", "Positive amount")
	kind := fs.String("type", string(domain.TransactionTypeExpense), "income or expense")
	category := fs.String("category", "", "Category name (default: first of the type)")
	note := fs.String("note", "", "Free-text note")
	date := fs.String("date", "", "Date as YYYY-MM-DD (default: today)")
	return func(ctx context.Context, a *app.App) error {
		value, err := decimal.NewFromString(*amount)
		if err != nil {
			return fmt.Errorf("invalid -amount %q: %w", *amount, err)
		}

		tx, err := a.Session.Ledger().AddTransaction(ctx, a.UserID(), ledger.NewTransaction{
			AccountID: *account,
			Amount:    value,
			Type:      domain.TransactionType(*kind),
			Category:  *category,
			Note:      *note,
			Date:      *date,
		})
		if errors.Is(err, store.ErrAccountNotFound) {
			return fmt.Errorf("no such account %q; run 'cli accounts' to list them", *account)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Recorded %s %s (%s) on %s as %s\n", tx.Type, tx.Amount.StringFixed(2), tx.Category, tx.Date, tx.ID)

		accounts, err := a.Session.Ledger().Accounts(ctx, a.UserID())
		if err != nil {
			return err
		}
		if acc, ok := domain.FindAccount(accounts, tx.AccountID); ok {
			fmt.Printf("%s balance: %s\n", acc.Name, acc.Balance.StringFixed(2))
		}
		return nil
	}
}

func runDashboard(fs *flag.FlagSet) action {
	return func(ctx context.Context, a *app.App) error {
		d, err := a.Session.Ledger().Dashboard(ctx, a.UserID())
		if err != nil {
			return err
		}

		fmt.Printf("Mode:           %s\n", a.Session.Mode())
		fmt.Printf("Accounts:       %d\n", d.AccountCount)
		fmt.Printf("Total balance:  %s\n", d.TotalBalance.StringFixed(2))
		fmt.Printf("Income %s:  %s\n", d.Month, d.Monthly.Income.StringFixed(2))
		fmt.Printf("Expense %s: %s\n", d.Month, d.Monthly.Expense.StringFixed(2))
		fmt.Println("\nRecent transactions:")
		return printTransactions(d.Recent)
	}
}

func runAdvice(fs *flag.FlagSet) action {
	return func(ctx context.Context, a *app.App) error {
		l := a.Session.Ledger()
		accounts, err := l.Accounts(ctx, a.UserID())
		if err != nil {
			return err
		}
		txs, err := l.Transactions(ctx, a.UserID())
		if err != nil {
			return err
		}

		fmt.Println(a.Advisor.Advise(ctx, txs, accounts))
		return nil
	}
}

func runExport(fs *flag.FlagSet) action {
	target := fs.String("target", string(jobs.ExportTargetGCS), "gcs or bigquery")
	return func(ctx context.Context, a *app.App) error {
		t := jobs.ExportTarget(*target)
		if !t.Valid() {
			return fmt.Errorf("invalid -target %q: must be gcs or bigquery", *target)
		}

		job := &jobs.ExportLedgerJob{
			JobID:     uuid.New().String(),
			UserID:    a.UserID(),
			Target:    t,
			Status:    jobs.JobStatusRunning,
			CreatedAt: time.Now(),
		}
		if err := a.Exporter.Handle(ctx, job); err != nil {
			return err
		}

		fmt.Printf("Exported %d accounts and %d transactions to %s\n", job.AccountCount, job.TransactionCount, job.Location)
		return nil
	}
}

func runRestore(fs *flag.FlagSet) action {
	uri := fs.String("uri", "", "gs:// URI of a snapshot written by 'cli export'")
	return func(ctx context.Context, a *app.App) error {
		if *uri == "" {
			return errors.New("-uri is required")
		}

		// Snapshots always restore into the local store.
		if err := a.Session.EnterSandbox(ctx); err != nil {
			return err
		}
		snap, err := a.Restore(ctx, *uri)
		if err != nil {
			return err
		}

		fmt.Printf("Restored %d accounts and %d transactions into the local store\n", len(snap.Accounts), len(snap.Transactions))
		return nil
	}
}

func printTransactions(txs []domain.Transaction) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTYPE\tAMOUNT\tCATEGORY\tNOTE\tACCOUNT")
	for _, t := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.Date, t.Type, t.Amount.StringFixed(2), t.Category, t.Note, t.AccountID)
	}
	return w.Flush()
}
