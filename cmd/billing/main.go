// Command billing runs one hourly billing or auto-renewal pass and prints a report.
//
//	billing hourly [-hours N] [-dry-run]
//	billing renew [-dry-run]
package main

import (
	"context" // Run context
	"flag"    // Command line flags
	"fmt"     // Report output
	"io"      // Report writer
	"os"      // Exit codes and stdout

	"vps_billing/internal/app"       // Component wiring
	"vps_billing/internal/billing"   // Billing runs
	"vps_billing/internal/config"    // Configuration
	"vps_billing/internal/telemetry" // Traces and metrics

	"github.com/sirupsen/logrus" // Logrus for structured logging
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cfg := config.LoadConfig() // Load configuration
	log := app.SetupLogger(cfg)
	ctx := context.Background()

	shutdown, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		logrus.Fatalf("failed to set up telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	switch os.Args[1] {
	case "hourly":
		fs := flag.NewFlagSet("hourly", flag.ExitOnError)
		hours := fs.Int("hours", 1, "number of hours to bill for")
		dryRun := fs.Bool("dry-run", false, "show what would be billed without charging")
		_ = fs.Parse(os.Args[2:])

		a := mustApp(ctx, cfg, log)
		defer a.Close()
		results, err := a.Runner.RunHourlyBilling(ctx, *hours, *dryRun)
		if err != nil {
			logrus.Fatalf("hourly billing failed: %v", err)
		}
		printHourly(os.Stdout, results, *hours, *dryRun)
	case "renew":
		fs := flag.NewFlagSet("renew", flag.ExitOnError)
		dryRun := fs.Bool("dry-run", false, "show what would be renewed without charging")
		_ = fs.Parse(os.Args[2:])

		a := mustApp(ctx, cfg, log)
		defer a.Close()
		results, err := a.Runner.RunAutoRenewal(ctx, *dryRun)
		if err != nil {
			logrus.Fatalf("auto-renewal failed: %v", err)
		}
		printRenewal(os.Stdout, results, *dryRun)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: billing hourly [-hours N] [-dry-run] | billing renew [-dry-run]")
	os.Exit(2)
}

func mustApp(ctx context.Context, cfg *config.Config, log *logrus.Entry) *app.App {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		logrus.Fatalf("failed to start: %v", err)
	}
	return a
}

func printHourly(w io.Writer, results []billing.HourlyResult, hours int, dryRun bool) {
	fmt.Fprintf(w, "Starting hourly billing process for %d hour(s)...\n", hours)
	if dryRun {
		fmt.Fprintln(w, "DRY RUN MODE - No actual billing will occur")
	}
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(w, "✓ %s: %s ($%s)\n", r.Username, r.Message, r.Charged.StringFixed(2))
		} else {
			fmt.Fprintf(w, "✗ %s: %s\n", r.Username, r.Message)
		}
	}
	sum := billing.SummarizeHourly(results)
	fmt.Fprintln(w, "\nBilling Summary:")
	fmt.Fprintf(w, "Successful: %d\n", sum.Succeeded)
	fmt.Fprintf(w, "Failed: %d\n", sum.Failed)
	fmt.Fprintf(w, "Total: %d\n", sum.Total)
	fmt.Fprintf(w, "Total Deducted: $%s\n", sum.Charged.StringFixed(2))
	if dryRun {
		fmt.Fprintln(w, "This was a dry run - no charges were processed")
	}
}

func printRenewal(w io.Writer, results []billing.RenewalResult, dryRun bool) {
	fmt.Fprintln(w, "Starting auto-renewal process...")
	if dryRun {
		fmt.Fprintln(w, "DRY RUN MODE - No resources will be renewed or suspended")
	}
	for _, r := range results {
		mark := "✓"
		if !r.Success {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, r.Username, r.Message)
	}
	sum := billing.SummarizeRenewal(results)
	fmt.Fprintln(w, "\nRenewal Summary:")
	fmt.Fprintf(w, "Successful: %d\n", sum.Succeeded)
	fmt.Fprintf(w, "Failed: %d\n", sum.Failed)
	fmt.Fprintf(w, "Total: %d\n", sum.Total)
	fmt.Fprintf(w, "Renewed: %d, Suspended: %d\n", sum.Renewed, sum.Suspended)
	fmt.Fprintf(w, "Total Charged: $%s\n", sum.Charged.StringFixed(2))
	if dryRun {
		fmt.Fprintln(w, "This was a dry run - no charges were processed")
	}
}
