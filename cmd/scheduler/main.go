package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/repoyield/repoyield/internal/adapters"
	"github.com/repoyield/repoyield/internal/analysis"
	"github.com/repoyield/repoyield/internal/database"
	"github.com/repoyield/repoyield/internal/monitoring"
	"github.com/repoyield/repoyield/internal/trends"
	"github.com/repoyield/repoyield/internal/workflow"
)

func main() {
	logger := monitoring.NewLogger()
	slog.SetDefault(logger.Logger)

	app := &cli.App{
		Name:  "repoyield-scheduler",
		Usage: "scheduled fleet scans with ranked email digests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "owner",
				Usage:   "GitHub owner whose repositories are scanned",
				EnvVars: []string{"SCAN_OWNER"},
			},
			&cli.IntFlag{
				Name:    "max-repos",
				Value:   10,
				Usage:   "maximum repositories per scan",
				EnvVars: []string{"SCAN_MAX_REPOS"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Value:   4,
				Usage:   "concurrent analysis workers",
				EnvVars: []string{"SCAN_WORKERS"},
			},
			&cli.StringFlag{
				Name:    "state-dir",
				Value:   ".cache",
				Usage:   "directory for scan state and trend cache",
				EnvVars: []string{"SCAN_STATE_DIR"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "./data",
				Usage:   "directory for the analysis database",
				EnvVars: []string{"DATA_DIR"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "execute one fleet scan and send the digest",
				Action: runScan,
			},
			{
				Name:  "serve",
				Usage: "run fleet scans on a fixed interval",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    "interval",
						Value:   24 * time.Hour,
						Usage:   "time between scans",
						EnvVars: []string{"SCAN_INTERVAL"},
					},
					&cli.BoolFlag{
						Name:  "immediate",
						Usage: "run the first scan at startup instead of after one interval",
					},
				},
				Action: runServe,
			},
			{
				Name:   "status",
				Usage:  "show the last scan state and latest recorded run",
				Action: runStatus,
			},
			{
				Name:  "trends",
				Usage: "print the current AI trend catalog and write a report",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "bypass the trend cache",
					},
				},
				Action: runTrends,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Scheduler failed", "error", err)
		os.Exit(1)
	}
}

func buildWorkflow(c *cli.Context) (*workflow.Workflow, func(), error) {
	owner := c.String("owner")
	if owner == "" {
		return nil, nil, fmt.Errorf("owner is required, pass --owner or set SCAN_OWNER")
	}

	logger := monitoring.NewLogger()

	db, err := database.NewDB(c.String("data-dir"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	repo := database.NewRepository(db)

	analyzer, err := analysis.NewAnalyzer()
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}

	tracker, err := trends.NewTracker(c.String("state-dir"))
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize trend tracker: %w", err)
	}

	github := adapters.NewGitHubAdapter(os.Getenv("GITHUB_TOKEN"))

	mail := adapters.NewMailAdapter(adapters.MailConfig{
		Provider:       os.Getenv("EMAIL_PROVIDER"),
		Sender:         os.Getenv("SENDER_EMAIL"),
		Recipient:      os.Getenv("RECIPIENT_EMAIL"),
		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		MailgunAPIKey:  os.Getenv("MAILGUN_API_KEY"),
		MailgunDomain:  os.Getenv("MAILGUN_DOMAIN"),
		ReportsDir:     os.Getenv("REPORTS_DIR"),
	})
	if !mail.IsConfigured() {
		slog.Warn("No mail provider configured, digests will be written to the reports directory")
	}

	config := workflow.Config{
		Owner:    owner,
		MaxRepos: c.Int("max-repos"),
		Workers:  c.Int("workers"),
		StateDir: c.String("state-dir"),
	}

	w := workflow.New(config, github, analyzer, tracker, mail, repo, logger)

	cleanup := func() {
		github.Close()
		db.Close()
	}

	return w, cleanup, nil
}

func runScan(c *cli.Context) error {
	w, cleanup, err := buildWorkflow(c)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := w.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(summary)
	return nil
}

func runServe(c *cli.Context) error {
	w, cleanup, err := buildWorkflow(c)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	interval := c.Duration("interval")
	slog.Info("Scheduler started", "owner", c.String("owner"), "interval", interval.String())

	if c.Bool("immediate") {
		if summary, err := w.Run(ctx); err != nil {
			slog.Error("Scan failed", "error", err)
		} else {
			printSummary(summary)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			summary, err := w.Run(ctx)
			if err != nil {
				slog.Error("Scan failed", "error", err)
				continue
			}
			printSummary(summary)
		}
	}
}

func runStatus(c *cli.Context) error {
	state := workflow.LoadState(c.String("state-dir"))

	if state.LastRun == nil {
		fmt.Println("No scans recorded yet")
	} else {
		fmt.Printf("Last run:              %s\n", state.LastRun.Format(time.RFC3339))
		fmt.Printf("Total runs:            %d\n", state.TotalRuns)
		fmt.Printf("Total value found:     $%d\n", state.TotalValueIdentified)
		fmt.Printf("Repositories analyzed: %d\n", len(state.RepositoriesAnalyzed))
		for _, repo := range state.PriorityQueue {
			fmt.Printf("  priority: %s\n", repo)
		}
	}

	owner := c.String("owner")
	if owner == "" {
		return nil
	}

	db, err := database.NewDB(c.String("data-dir"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	run, err := database.NewRepository(db).LatestWorkflowRun(owner)
	if err != nil {
		return fmt.Errorf("failed to load latest run: %w", err)
	}
	if run == nil {
		fmt.Printf("\nNo recorded runs for %s\n", owner)
		return nil
	}

	fmt.Printf("\nLatest recorded run for %s:\n", owner)
	fmt.Printf("  status:     %s\n", run.Status)
	fmt.Printf("  scanned:    %d (%d failed)\n", run.ReposScanned, run.ReposFailed)
	fmt.Printf("  top repo:   %s (%.1f)\n", run.TopRepo, run.TopScore)
	fmt.Printf("  value:      $%d\n", run.TotalValue)
	fmt.Printf("  digest:     sent=%t\n", run.DigestSent)
	fmt.Printf("  started:    %s\n", run.StartedAt.Format(time.RFC3339))
	return nil
}

func runTrends(c *cli.Context) error {
	tracker, err := trends.NewTracker(c.String("state-dir"))
	if err != nil {
		return fmt.Errorf("failed to initialize trend tracker: %w", err)
	}

	catalog, err := tracker.LatestTrends(c.Bool("refresh"))
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	path, err := tracker.SaveReport()
	if err != nil {
		return err
	}
	fmt.Printf("\nReport written to %s\n", path)
	return nil
}

func printSummary(summary *workflow.Summary) {
	fmt.Printf("Scan complete for %s in %s\n", summary.Owner, summary.Duration.Round(time.Millisecond))
	fmt.Printf("  scanned:  %d (%d failed)\n", summary.ReposScanned, summary.ReposFailed)
	fmt.Printf("  value:    $%d\n", summary.TotalValue)
	if summary.TopRepo != "" {
		fmt.Printf("  top repo: %s (%.1f/100)\n", summary.TopRepo, summary.TopScore)
	}
	fmt.Printf("  digest:   sent=%t\n", summary.DigestSent)
	for _, issue := range summary.Issues {
		fmt.Printf("  issue:    %s\n", issue)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
