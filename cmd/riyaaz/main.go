// Package main provides the CLI entrypoint for riyaaz.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/0xlemi/riyaaz/internal/config"
	"github.com/0xlemi/riyaaz/internal/engine"
	"github.com/0xlemi/riyaaz/internal/log"
	"github.com/0xlemi/riyaaz/internal/notes"
	"github.com/0xlemi/riyaaz/internal/session"
	"github.com/0xlemi/riyaaz/internal/store"
	"github.com/0xlemi/riyaaz/internal/ui"
)

var (
	flagConfig   string
	flagTonic    float64
	flagRaga     string
	flagExercise string
	flagStore    string
	flagLogLevel string
	flagBPM      int
	flagBeats    int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "riyaaz",
		Short:         "Vocal practice with live sargam pitch feedback",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "results database path")
	rootCmd.Flags().Float64Var(&flagTonic, "tonic", 0, "Sa frequency in Hz")
	rootCmd.Flags().StringVar(&flagRaga, "raga", "", "restrict detection to a raga's notes")
	rootCmd.Flags().StringVar(&flagExercise, "exercise", "Aaroh", "guided exercise started with the g key")
	rootCmd.Flags().IntVar(&flagBPM, "bpm", 0, "metronome tempo")
	rootCmd.Flags().IntVar(&flagBeats, "beats", 0, "metronome beats per bar")

	rootCmd.AddCommand(newDroneCmd())
	rootCmd.AddCommand(newExercisesCmd())
	rootCmd.AddCommand(newStatsCmd())
	return rootCmd
}

// loadConfig merges the config file with CLI overrides and initializes
// logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("tonic") {
		cfg.Tonic = flagTonic
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagStore != "" {
		cfg.StorePath = flagStore
	}
	if cmd.Flags().Changed("bpm") {
		cfg.Synth.BPM = flagBPM
	}
	if cmd.Flags().Changed("beats") {
		cfg.Synth.BeatsBar = flagBeats
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	log.Init(cfg.LogLevel)
	return cfg, nil
}

func storePath(cfg config.Config) string {
	if cfg.StorePath != "" {
		return cfg.StorePath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "riyaaz.db"
	}
	return filepath.Join(home, ".riyaaz", "riyaaz.db")
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(storePath(cfg))
	if err != nil {
		return fmt.Errorf("failed to open results db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Warn("failed to close db", "error", cerr)
		}
	}()

	eng, err := engine.New(cfg, engine.WithStore(st))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			log.Warn("engine shutdown", "error", cerr)
		}
	}()

	if flagRaga != "" {
		if err := eng.SetRaga(flagRaga); err != nil {
			return err
		}
	}
	if _, err := session.Sequence(flagExercise, eng.Allowed()); err != nil {
		return err
	}
	if err := eng.StartCapture(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	model := ui.NewModel(eng, flagExercise, cfg.Synth.BPM, cfg.Synth.BeatsBar)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newDroneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drone",
		Short: "Play the tanpura drone until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runDroneCmd,
	}
	cmd.Flags().Float64Var(&flagTonic, "tonic", 0, "Sa frequency in Hz")
	return cmd
}

func runDroneCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			log.Warn("engine shutdown", "error", cerr)
		}
	}()

	if err := eng.StartDrone(); err != nil {
		return fmt.Errorf("failed to start drone: %w", err)
	}
	fmt.Printf("Drone at %.1f Hz (%s). Ctrl+C to stop.\n",
		eng.Tonic(), notes.WesternName(eng.Tonic()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return eng.StopDrone()
}

func newExercisesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exercises",
		Short: "List built-in guided exercises",
		Args:  cobra.NoArgs,
		RunE:  runExercisesCmd,
	}
}

func runExercisesCmd(cmd *cobra.Command, _ []string) error {
	names := make([]string, 0, len(session.Exercises)+1)
	for name := range session.Exercises {
		names = append(names, name)
	}
	names = append(names, "Random")
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-note practice history",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := store.Open(storePath(cfg))
	if err != nil {
		return fmt.Errorf("failed to open results db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Warn("failed to close db", "error", cerr)
		}
	}()

	sums, err := st.Summary(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}
	if len(sums) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No guided sessions recorded yet.")
		return nil
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-6s %9s %6s %9s\n", "Note", "Attempts", "Hits", "Accuracy")
	for _, n := range sums {
		fmt.Fprintf(w, "%-6s %9d %6d %8.1f%%\n", n.Note, n.Attempts, n.Hits, n.AvgAccuracy)
	}
	return nil
}
