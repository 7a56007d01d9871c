package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Resolve and print the merged configuration",
	Long:  `Merge the config files and flags and print the resolved settings without executing any action.`,
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig()
	if err != nil {
		log.Error().Err(err).Msg("configuration is invalid")
		return err
	}

	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Connection:")
	fmt.Printf("  Host: %s\n", cfg.Connection.Host)
	fmt.Printf("  Port: %d\n", cfg.Connection.Port)
	fmt.Printf("  User: %s\n", cfg.Connection.User)
	fmt.Printf("  Password: %s\n", maskPassword(cfg.Connection.Password))
	fmt.Println()
	fmt.Println("Backup:")
	fmt.Printf("  Databases: %s\n", strings.Join(cfg.Databases, ", "))
	fmt.Printf("  Backup directory: %s\n", cfg.BackupDir)
	fmt.Printf("  Filestore root: %s\n", cfg.FilestoreRoot)
	fmt.Printf("  Dump format: %s\n", cfg.DumpFormat)
	fmt.Printf("  Include filestore: %v\n", cfg.IncludeFilestore)
	fmt.Printf("  Backup retention: %d day(s)\n", cfg.BackupRetentionDays)
	fmt.Println()
	fmt.Println("Logging:")
	if cfg.Logging.FilePath != "" {
		fmt.Printf("  Log file: %s\n", cfg.Logging.FilePath)
		fmt.Printf("  Max size: %d MB, max backups: %d\n", cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
		fmt.Printf("  Log retention: %d day(s)\n", cfg.LogRetentionDays)
	} else {
		fmt.Println("  Console only")
	}
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Service control: %v\n", cfg.Service != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.Service != nil {
		fmt.Println()
		fmt.Println("Service Control:")
		fmt.Printf("  Host: %s\n", cfg.Service.Host)
		fmt.Printf("  Port: %d\n", cfg.Service.Port)
		fmt.Printf("  Username: %s\n", cfg.Service.Username)
		fmt.Printf("  Unit: %s\n", cfg.Service.Unit)
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}

func maskPassword(p string) string {
	if p == "" {
		return "(not set)"
	}
	return "(configured)"
}
