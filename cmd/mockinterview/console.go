package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/mockinterview/internal/archive"
	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/internal/console"
	"github.com/MrWong99/mockinterview/internal/interview"
)

var noColor bool

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run an interview in the terminal",
	Long:  "console runs a single interview on stdin/stdout. Type /reset to start over and /quit to leave.",
	Args:  cobra.NoArgs,
	RunE:  runConsole,
}

func init() {
	consoleCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	logger, logFile := newLogger(cfg.Server, level, true)
	defer logFile.Close()
	slog.SetDefault(logger)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	comp, err := buildCompletion(cfg, reg, logger)
	if err != nil {
		return err
	}
	defer comp.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ropts []console.RendererOption
	if noColor {
		ropts = append(ropts, console.WithColor(false))
	}
	renderer := console.NewRenderer(os.Stdout, ropts...)
	ctrlOpts := []interview.Option{
		interview.WithScript(cfg.Interview.Script()),
		interview.WithRenderer(renderer),
		interview.WithLogger(logger),
		interview.WithProviderName(comp.name),
	}
	if cfg.Server.ArchiveFile != "" {
		ctrlOpts = append(ctrlOpts, interview.WithOnEnd(archive.NewFileStore(cfg.Server.ArchiveFile).OnEnd(logger)))
	}
	ctrl := interview.New(comp.provider, ctrlOpts...)

	if err := console.Run(ctx, ctrl, os.Stdin, renderer); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	return nil
}
