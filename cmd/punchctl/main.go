package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/warp/punchclock/app"
	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/config"
	"github.com/warp/punchclock/importer"
	"github.com/warp/punchclock/store/sqlite"
	"github.com/warp/punchclock/store/sqlite/migrations"
)

var (
	configPath string
	envPath    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "punchctl",
	Short:        "Attendance ledger maintenance",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath, config.Default()); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Printf("Configuration initialized at %s\n", configPath)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Type != "sqlite" {
			return fmt.Errorf("migrate needs a sqlite database, config has %q", cfg.Database.Type)
		}
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating database directory: %w", err)
			}
		}
		s, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Migrate(); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		latest, err := migrations.LatestVersion()
		if err != nil {
			return err
		}
		fmt.Printf("Database %s is at version %d\n", cfg.Database.Path, latest)
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run alert scans once",
}

var scanAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Check absences and excess hours for today",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Scanner.Scan(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Checked %d workers: %d absence, %d excess hours, %d failures\n",
			report.Checked, report.Absence, report.ExcessHours, report.Failures)
		return nil
	},
}

var scanForgottenCmd = &cobra.Command{
	Use:   "forgotten",
	Short: "Alert on entries without an exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Scanner.SweepForgottenExits(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Checked %d open entries: %d alerted, %d failures\n",
			report.Checked, report.ForgottenExit, report.Failures)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <worker>",
	Short: "Recompute a worker's hash chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Reports.Audit(cmd.Context(), attendance.WorkerID(args[0]))
		if err != nil {
			return err
		}
		if !report.Valid {
			return fmt.Errorf("chain of %s is broken: %w", args[0], report.Broken)
		}
		fmt.Printf("Chain of %s is intact: %d punches, head %s\n", args[0], report.Length, report.Head)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk imports",
}

var importSchedulesCmd = &cobra.Command{
	Use:   "schedules <file.xlsx>",
	Short: "Register workers and schedules from a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		company, _ := cmd.Flags().GetString("company")
		actorID, _ := cmd.Flags().GetString("actor")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		actor, err := a.Actor(cmd.Context(), attendance.WorkerID(actorID))
		if err != nil {
			return fmt.Errorf("loading actor %s: %w", actorID, err)
		}
		if company == "" {
			company = string(actor.CompanyID)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		res, err := a.Importer.Import(cmd.Context(), actor, attendance.CompanyID(company), f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s: %d created, %d updated, %d skipped\n", args[0], res.Created, res.Updated, res.Skipped)
		return nil
	},
}

// report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate reports",
}

var reportPayrollCmd = &cobra.Command{
	Use:   "payroll",
	Short: "Write a company payroll workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		company, _ := cmd.Flags().GetString("company")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		out, _ := cmd.Flags().GetString("out")

		period, err := parsePeriod(from, to)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return writePayroll(cmd.Context(), a, attendance.CompanyID(company), period, out)
	},
}

var reportMoodCmd = &cobra.Command{
	Use:   "mood",
	Short: "Write a company mood survey workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		company, _ := cmd.Flags().GetString("company")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		out, _ := cmd.Flags().GetString("out")

		period, err := parsePeriod(from, to)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return writeMood(cmd.Context(), a, attendance.CompanyID(company), period, out)
	},
}

func parsePeriod(from, to string) (attendance.Period, error) {
	start, err := attendance.ParseDate(from)
	if err != nil {
		return attendance.Period{}, err
	}
	end, err := attendance.ParseDate(to)
	if err != nil {
		return attendance.Period{}, err
	}
	return attendance.NewPeriod(start, end)
}

func writePayroll(ctx context.Context, a *app.App, company attendance.CompanyID, period attendance.Period, out string) error {
	totals, err := a.Reports.CompanyTotals(ctx, company, period)
	if err != nil {
		return err
	}
	var filter *attendance.CompanyID
	if company != "" {
		filter = &company
	}
	workers, err := a.WorkersByID(ctx, filter)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := importer.WritePayroll(f, period, totals, workers); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Wrote %d workers for %s to %s\n", len(totals), period, out)
	return nil
}

func writeMood(ctx context.Context, a *app.App, company attendance.CompanyID, period attendance.Period, out string) error {
	entries, err := a.Reports.MoodEntries(ctx, company, period)
	if err != nil {
		return err
	}
	workers, err := a.WorkersByID(ctx, &company)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := importer.WriteMood(f, entries, workers, a.Location); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Wrote %d mood entries for %s to %s\n", len(entries), period, out)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "punchclock.toml", "TOML config path")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "dotenv file path")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(migrateCmd)

	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanAlertsCmd)
	scanCmd.AddCommand(scanForgottenCmd)

	rootCmd.AddCommand(verifyCmd)

	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importSchedulesCmd)
	importSchedulesCmd.Flags().String("company", "", "Company id (defaults to the actor's)")
	importSchedulesCmd.Flags().String("actor", "", "Worker id performing the import")
	importSchedulesCmd.MarkFlagRequired("actor")

	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportPayrollCmd)
	reportPayrollCmd.Flags().String("company", "", "Company id (empty for every company)")
	reportPayrollCmd.Flags().String("from", "", "First day, YYYY-MM-DD")
	reportPayrollCmd.Flags().String("to", "", "Last day, YYYY-MM-DD")
	reportPayrollCmd.Flags().StringP("out", "o", "payroll.xlsx", "Output path")
	reportPayrollCmd.MarkFlagRequired("from")
	reportPayrollCmd.MarkFlagRequired("to")

	reportCmd.AddCommand(reportMoodCmd)
	reportMoodCmd.Flags().String("company", "", "Company id")
	reportMoodCmd.Flags().String("from", "", "First day, YYYY-MM-DD")
	reportMoodCmd.Flags().String("to", "", "Last day, YYYY-MM-DD")
	reportMoodCmd.Flags().StringP("out", "o", "mood.xlsx", "Output path")
	reportMoodCmd.MarkFlagRequired("company")
	reportMoodCmd.MarkFlagRequired("from")
	reportMoodCmd.MarkFlagRequired("to")
}
