package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"wabridge/internal/config"
	"wabridge/internal/domain"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <recipient> <text>",
		Short: "Send one text message through the Cloud API",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.RequireSender(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res := newSender(cfg).Send(ctx, args[0], strings.Join(args[1:], " "))
			fmt.Fprintln(cmd.OutOrStdout(), res)
			if !res.Delivered {
				return fmt.Errorf("send failed: %s", res.Reason)
			}
			return nil
		},
	}
}

func replyCmd() *cobra.Command {
	var sender string
	cmd := &cobra.Command{
		Use:   "reply <text>",
		Short: "Ask the model for a reply using a sender's stored history",
		Long: "Runs the reply generator once and prints the answer. Nothing is sent\n" +
			"and nothing is written to the turn log.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var turns []domain.Turn
			if sender != "" {
				log, err := openTurnLog(cfg)
				if err != nil {
					return err
				}
				defer log.Close()
				if turns, err = log.Turns(ctx, sender); err != nil {
					return fmt.Errorf("read turns: %w", err)
				}
			}

			answer := newGenerator(cfg, newModel(cfg)).Generate(ctx, strings.Join(args, " "), turns)
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "sender id whose stored turns are used as history")
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <sender>",
		Short: "Print the stored turn log for a sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Memory.Enabled {
				return fmt.Errorf("memory is disabled, no turn log to read")
			}
			log, err := openTurnLog(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			turns, err := log.Turns(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("read turns: %w", err)
			}
			if len(turns) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no turns stored for %s\n", args[0])
				return nil
			}
			out := cmd.OutOrStdout()
			for _, t := range turns {
				fmt.Fprintf(out, "%s  %-9s  %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"), t.Role, t.Text)
			}
			return nil
		},
	}
}
