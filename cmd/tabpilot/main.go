// Package main provides the tabpilot binary entry point.
// TabPilot plans browser tasks with a language model and carries them out
// one tool call at a time.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahul/tabpilot/internal/gateway"
	"github.com/rahul/tabpilot/internal/observability"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "tabpilot"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	mode       string
	headless   bool
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Browser task assistant",
		Long: `TabPilot turns a request into a step-by-step plan and carries it out in
the browser, one tool call per step, checking the result after each step.

Commands:
- serve: answer on the enabled chat gateways (Telegram, Discord)
- chat:  talk to the assistant in this terminal
- ask:   answer one request and exit`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.json", "Config file path (JSON or YAML)")
	cmd.PersistentFlags().StringVar(&flags.mode, "mode", "", "Permission mode override (restricted, unrestricted)")
	cmd.PersistentFlags().BoolVar(&flags.headless, "headless", false, "Run the browser without a window")

	cmd.AddCommand(serveCmd(&flags), chatCmd(&flags), askCmd(&flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer on the enabled chat gateways",
		RunE: func(cmd *cobra.Command, args []string) error {
			observability.PrintBanner()
			log.SetOutput(observability.NewTermWriter())

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			messengers, err := app.messengers()
			if err != nil {
				return err
			}
			if len(messengers) == 0 {
				return fmt.Errorf("no chat gateway is enabled; enable telegram or discord in %s", flags.configPath)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go heartbeat(ctx, app.logger)

			for _, m := range messengers {
				go func() {
					if err := m.Start(); err != nil {
						log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
						stop()
					}
				}()
			}

			<-ctx.Done()
			for _, m := range messengers {
				if err := m.Stop(); err != nil {
					log.Printf("[gateway] stop failed: %v", err)
				}
			}
			log.Println("\033[95m[ EXIT ] GOODBYE.\033[0m")
			return nil
		},
	}
}

func chatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			observability.PrintBanner()
			log.SetOutput(observability.NewTermWriter())

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			console := gateway.NewConsoleGateway(app.conv, os.Stdin)
			go func() {
				<-ctx.Done()
				console.Stop()
			}()
			return console.Start()
		},
	}
}

func askCmd(flags *globalFlags) *cobra.Command {
	var quick bool

	cmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Answer one request and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetOutput(observability.NewTermWriter())

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			input := strings.Join(args, " ")
			if quick {
				input = gateway.CommandQuick + " " + input
			}

			var streamed strings.Builder
			onChunk := func(delta, _ string, _ bool) {
				streamed.WriteString(delta)
				observability.WriteTerminal(delta)
			}
			reply := app.conv.Handle(ctx, gateway.ConsoleChatID, input, onChunk, func(status string) {
				log.Printf("[ask] %s", status)
			})
			if strings.TrimSpace(reply) != strings.TrimSpace(streamed.String()) {
				if streamed.Len() > 0 {
					fmt.Println()
				}
				fmt.Print(reply)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quick, "quick", "q", false, "Answer directly with read-only tools instead of planning")
	return cmd
}

func heartbeat(ctx context.Context, logger *observability.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.Heartbeat()
			logger.LogHeartbeat()
		}
	}
}
