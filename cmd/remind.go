package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kedaiservis/repair-service/internal/config"
	"github.com/kedaiservis/repair-service/internal/database"
	"github.com/kedaiservis/repair-service/internal/scheduler"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Run one ticket approval reminder pass and exit",
	RunE:  runRemind,
}

func runRemind(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	job := scheduler.NewReminderJob(db, cfg.DefaultCountryCode, logger)
	return job.Run(cmd.Context())
}
