// Package cli wires configuration, stores and the tutor into the studyrag
// command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"studyrag/internal/chunker"
	"studyrag/internal/config"
	"studyrag/internal/domain"
	"studyrag/internal/embedding"
	"studyrag/internal/service"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	cfgFile string
	verbose bool
	cfg     *config.AppConfig
	logger  *slog.Logger
	out     io.Writer
}

// NewRootCommand creates the root command.
func NewRootCommand(version, commit, date string) *cobra.Command {
	a := &app{out: os.Stdout}
	rootCmd := &cobra.Command{
		Use:   "studyrag",
		Short: "Question answering over indexed study material",
		Long: `studyrag answers student questions from study material that has been
chunked, embedded and indexed per subject corpus.

Build indices with "index", combine them with "merge", check them with
"search" and "inspect", then ask questions with "ask", "chat" or "serve".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	rootCmd.SetOut(os.Stdout)

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file path (default ~/.config/studyrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newIndexCommand(a))
	rootCmd.AddCommand(newMergeCommand(a))
	rootCmd.AddCommand(newSearchCommand(a))
	rootCmd.AddCommand(newInspectCommand(a))
	rootCmd.AddCommand(newAskCommand(a))
	rootCmd.AddCommand(newChatCommand(a))
	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newVersionCommand(version, commit, date))
	return rootCmd
}

func newVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			if version == "" {
				version = "dev"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "studyrag %s (%s) built %s\n", version, commit, date)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
		},
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	var (
		cfg *config.AppConfig
		err error
	)
	if a.cfgFile == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(a.cfgFile)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Log, a.verbose, cmd.ErrOrStderr())
	return nil
}

func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// components builds the encoder and chunker from config.
func (a *app) components() (domain.Embedder, domain.Chunker, func() error, error) {
	emb, closeEmb, err := embedding.New(a.cfg.Embedder)
	if err != nil {
		return nil, nil, nil, err
	}
	ch, err := chunker.New(a.cfg.Chunker)
	if err != nil {
		_ = closeEmb()
		return nil, nil, nil, err
	}
	return emb, ch, closeEmb, nil
}

// tutor assembles every configured corpus into a ready tutor. Any corpus
// that cannot be loaded is fatal.
func (a *app) tutor(ctx context.Context) (*service.Tutor, []string, func() error, error) {
	emb, ch, closeEmb, err := a.components()
	if err != nil {
		return nil, nil, nil, err
	}
	sources, closeSources, err := service.Sources(ctx, a.cfg, emb, ch, a.logger)
	if err != nil {
		_ = closeEmb()
		return nil, nil, nil, err
	}
	closeAll := func() error {
		err := closeSources()
		if cerr := closeEmb(); err == nil {
			err = cerr
		}
		return err
	}
	gen, err := service.NewGeneratorFromConfig(a.cfg.Generator)
	if err != nil {
		_ = closeAll()
		return nil, nil, nil, err
	}
	labels := make([]string, len(sources))
	for i, s := range sources {
		labels[i] = s.Label
	}
	agg := service.NewAggregator(sources, a.cfg.Aggregator, a.logger)
	return service.NewTutor(agg, gen, a.cfg.Agent, a.logger), labels, closeAll, nil
}
