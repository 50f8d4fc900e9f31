package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"wabridge/internal/config"
	"wabridge/internal/memory"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your wabridge installation",
		Long: `Verifies the configuration, credentials, turn log database, model
endpoint and listen port. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("wabridge doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, failed, warned := 0, 0, 0

			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'wabridge init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			printPass("Config file", cfgPath)
			passed++

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++

			if err := config.RequireWebhook(cfg); err != nil {
				printFail("Credentials", err.Error())
				failed++
			} else {
				printPass("Credentials", "auth token, phone number id and verify token set")
				passed++
			}
			if cfg.WhatsApp.AppSecret == "" {
				printWarn("Signatures", "app_secret not set, webhook payloads are not authenticated")
				warned++
			} else {
				printPass("Signatures", "X-Hub-Signature-256 enforced")
				passed++
			}

			if cfg.Memory.Enabled {
				if err := checkDatabase(cfg.Memory.DBPath); err != nil {
					printFail("Turn log", err.Error())
					failed++
				} else {
					printPass("Turn log", cfg.Memory.DBPath)
					passed++
				}
			} else {
				printWarn("Turn log", "disabled, history is lost on restart")
				warned++
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := newModel(cfg).Healthy(ctx); err != nil {
				printFail("Model endpoint", err.Error())
				failed++
			} else {
				printPass("Model endpoint", fmt.Sprintf("%s (%s)", cfg.Model.APIBase, cfg.Model.Name))
				passed++
			}

			if err := checkPort(cfg.Server.Addr()); err != nil {
				printWarn("Listen address", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
				warned++
			} else {
				printPass("Listen address", cfg.Server.Addr()+" available")
				passed++
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running wabridge.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Printf("\nwabridge is ready to serve.\n")
			return nil
		},
	}
}

// checkDatabase opens the turn log, which also creates and migrates it.
func checkDatabase(dbPath string) error {
	store, err := memory.NewSQLiteStore(dbPath, 0, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-18s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-18s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-18s %s\n", check, detail)
}
