package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yourusername/forecast-ledger/internal/database"
	"github.com/yourusername/forecast-ledger/internal/repository"
	"github.com/yourusername/forecast-ledger/internal/service"
)

var (
	sportFlag       string
	regionFlag      string
	calibrationBins int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Forecast upcoming fixtures once and store them",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		region := regionFlag
		if region == "" {
			region = cfg.Ingestion.Regions[0]
		}
		result, err := a.ingestion.Run(cmd.Context(), service.IngestRequest{SportKey: sportFlag, Region: region})
		if result != nil {
			if perr := printJSON(result); perr != nil {
				return perr
			}
		}
		return err
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Attach outcomes for completed matches once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.reconciler.Run(cmd.Context(), sportFlag)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Print the scorecard, or the calibration table with --calibration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		filter := repository.ScoreFilter{SportKey: sportFlag}
		if cmd.Flags().Changed("calibration") {
			if calibrationBins < 2 || calibrationBins > 50 {
				return fmt.Errorf("--calibration must be between 2 and 50, got %d", calibrationBins)
			}
			table, err := a.scorer.Calibration(cmd.Context(), filter, calibrationBins)
			if err != nil {
				return err
			}
			return printJSON(table)
		}

		card, err := a.scorer.Score(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return printJSON(card)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the forecast store schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(func(mm *database.MigrationManager) error {
			if err := mm.Up(); err != nil {
				return err
			}
			log.Info("Migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(func(mm *database.MigrationManager) error {
			if err := mm.Down(); err != nil {
				return err
			}
			log.Info("Migration rolled back")
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrations(func(mm *database.MigrationManager) error {
			version, dirty, err := mm.Version()
			if err != nil {
				return err
			}
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
			return nil
		})
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force VERSION",
	Short: "Set the schema version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withMigrations(func(mm *database.MigrationManager) error {
			return mm.Force(version)
		})
	},
}

func init() {
	ingestCmd.Flags().StringVar(&sportFlag, "sport", "", "Sport key (default: first active sport)")
	ingestCmd.Flags().StringVar(&regionFlag, "region", "", "Bookmaker region (default: first configured region)")

	reconcileCmd.Flags().StringVar(&sportFlag, "sport", "", "Only reconcile forecasts for this sport key")

	scoreCmd.Flags().StringVar(&sportFlag, "sport", "", "Only score forecasts for this sport key")
	scoreCmd.Flags().IntVar(&calibrationBins, "calibration", 0, "Print a calibration table with this many bins")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd, migrateForceCmd)
}

func withMigrations(fn func(*database.MigrationManager) error) error {
	mm, err := database.NewMigrationManager(&cfg.Database)
	if err != nil {
		return err
	}
	defer mm.Close()
	return fn(mm)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
