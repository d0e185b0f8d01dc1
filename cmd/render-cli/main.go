// Command render-cli renders dialogue scripts to video locally, without NATS.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/config"
	"github.com/book-expert/video-service/internal/fsutil"
	"github.com/book-expert/video-service/internal/jobs"
	"github.com/book-expert/video-service/internal/script"
	"github.com/book-expert/video-service/internal/service"
	"github.com/book-expert/video-service/internal/timeline"
	"github.com/spf13/cobra"
)

// Flag names.
const (
	flagConfig     = "config"
	flagScript     = "script"
	flagOutput     = "output"
	flagLanguage   = "language"
	flagWorkers    = "workers"
	flagPolicy     = "policy"
	flagMaxAge     = "max-age"
	flagLimit      = "limit"
	logFileName    = "render-cli.log"
	defaultLimit   = 20
	probeTimeout   = 30 * time.Second
	doctorTimeout  = 30 * time.Second
	checkPassLabel = "ok"
	checkFailLabel = "FAIL"
)

// Flag descriptions.
const (
	flagConfigDesc   = "Path to project.toml (defaults are used when omitted)"
	flagScriptDesc   = "Script JSON file to render"
	flagOutputDesc   = "Output directory (overrides [timeline] output_dir)"
	flagLanguageDesc = "Speech language (overrides the script and [timeline] language)"
	flagWorkersDesc  = "Lines rendered in parallel (overrides [timeline] workers)"
	flagPolicyDesc   = "Failed line policy: abort or skip (overrides [timeline] failure_policy)"
	flagMaxAgeDesc   = "Only remove leftovers older than this"
	flagLimitDesc    = "Number of jobs to list"
)

var (
	// ErrChecksFailed is returned by doctor when any check fails.
	ErrChecksFailed = errors.New("one or more checks failed")
	// ErrMissingScript is returned by render without --script.
	ErrMissingScript = errors.New("--script is required")
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	configPath string
	cfg        *config.Config
	log        *logger.Logger
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	state := &app{}

	rootCmd := &cobra.Command{
		Use:           "render-cli",
		Short:         "Render talking-character videos from dialogue scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return state.setup()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return state.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&state.configPath, flagConfig, "", flagConfigDesc)

	rootCmd.AddCommand(
		newRenderCmd(state),
		newDoctorCmd(state),
		newSweepCmd(state),
		newCharactersCmd(state),
		newJobsCmd(state),
	)

	return rootCmd
}

func (a *app) setup() error {
	cfg := config.Default()

	if a.configPath != "" {
		var loadErr error

		cfg, loadErr = config.LoadFile(a.configPath)
		if loadErr != nil {
			return loadErr
		}
	}

	dirErr := fsutil.EnsureDir(cfg.Paths.BaseLogsDir)
	if dirErr != nil {
		return dirErr
	}

	log, logErr := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if logErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", logErr)
	}

	a.cfg = cfg
	a.log = log

	return nil
}

func (a *app) close() error {
	if a.log == nil {
		return nil
	}

	return a.log.Close()
}

func newRenderCmd(state *app) *cobra.Command {
	var (
		scriptPath string
		outputDir  string
		language   string
		workers    int
		policy     string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a script to an mp4 file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scriptPath == "" {
				return ErrMissingScript
			}

			if outputDir != "" {
				state.cfg.Timeline.OutputDir = outputDir
			}

			if workers > 0 {
				state.cfg.Timeline.Workers = workers
			}

			if policy != "" {
				state.cfg.Timeline.FailurePolicy = policy
			}

			return renderScript(cmd.Context(), cmd.OutOrStdout(), state, scriptPath, language)
		},
	}

	cmd.Flags().StringVar(&scriptPath, flagScript, "", flagScriptDesc)
	cmd.Flags().StringVar(&outputDir, flagOutput, "", flagOutputDesc)
	cmd.Flags().StringVar(&language, flagLanguage, "", flagLanguageDesc)
	cmd.Flags().IntVar(&workers, flagWorkers, 0, flagWorkersDesc)
	cmd.Flags().StringVar(&policy, flagPolicy, "", flagPolicyDesc)

	return cmd
}

func renderScript(ctx context.Context, out io.Writer, state *app, scriptPath, language string) error {
	parsed, loadErr := script.Load(scriptPath)
	if loadErr != nil {
		return loadErr
	}

	if language != "" {
		parsed.Language = language
	}

	svc, svcErr := service.New(state.cfg, state.log)
	if svcErr != nil {
		return svcErr
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()

	result, runErr := svc.Assembler().Run(ctx, parsed, func(s timeline.State) {
		fmt.Fprintf(out, "[%s] %s\n", fsutil.FormatDuration(time.Since(started).Seconds()), s)
	})
	if runErr != nil {
		return fmt.Errorf("render failed: %w", runErr)
	}

	size := "unknown size"

	info, statErr := os.Stat(result.OutputPath)
	if statErr == nil {
		size = fsutil.FormatFileSize(info.Size())
	}

	fmt.Fprintf(out, "Wrote %s: %d clips, %s, %s\n",
		result.OutputPath, result.Clips, fsutil.FormatDuration(result.Duration), size)

	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped lines: %v\n", result.Skipped)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	probe, probeErr := svc.Probe(probeCtx, result.OutputPath)
	if probeErr != nil {
		state.log.Warn("Failed to probe %s: %v", result.OutputPath, probeErr)

		return nil
	}

	fmt.Fprintf(out, "Video: %dx%d %s, audio %s, %.2fs\n",
		probe.Width, probe.Height, probe.VideoCodec, probe.AudioCodec, probe.Duration)

	return nil
}

func newDoctorCmd(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check ffmpeg, the speech engine, characters and the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, svcErr := service.New(state.cfg, state.log)
			if svcErr != nil {
				return svcErr
			}
			defer svc.Close()

			ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
			defer cancel()

			failed := false

			for _, result := range svc.Doctor(ctx) {
				label := checkPassLabel
				if result.Err != nil {
					label = checkFailLabel
					failed = true
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%-4s %-12s %s\n", label, result.Name, result.Detail)

				if result.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "     %v\n", result.Err)
				}
			}

			if failed {
				return ErrChecksFailed
			}

			return nil
		},
	}
}

func newSweepCmd(state *app) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove partial outputs left by interrupted renders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed(flagMaxAge) {
				state.cfg.Paths.SweepAgeSeconds = int(maxAge.Seconds())
			}

			svc, svcErr := service.New(state.cfg, state.log)
			if svcErr != nil {
				return svcErr
			}
			defer svc.Close()

			report, sweepErr := svc.Sweep(time.Now())
			if sweepErr != nil {
				return sweepErr
			}

			for _, path := range report.Removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d removed, %d kept, %d errors\n",
				len(report.Removed), len(report.Kept), len(report.Errors))

			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, flagMaxAge, time.Hour, flagMaxAgeDesc)

	return cmd
}

func newCharactersCmd(state *app) *cobra.Command {
	return &cobra.Command{
		Use:   "characters",
		Short: "List characters and their pose images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, svcErr := service.New(state.cfg, state.log)
			if svcErr != nil {
				return svcErr
			}
			defer svc.Close()

			characters, listErr := svc.Characters()
			if listErr != nil {
				return fmt.Errorf("failed to list characters: %w", listErr)
			}

			for _, character := range characters {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
					character.ID, character.Name, strings.Join(character.Images, ","))
			}

			return nil
		},
	}
}

func newJobsCmd(state *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent render jobs recorded by the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, openErr := jobs.Open(state.cfg.Paths.JobsDB, state.log)
			if openErr != nil {
				return openErr
			}
			defer func() { _ = ledger.Close() }()

			recent, listErr := ledger.Recent(context.Background(), limit)
			if listErr != nil {
				return listErr
			}

			for _, job := range recent {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\n",
					job.ID, job.CreatedAt.Format(time.RFC3339), job.Status, job.State, orDash(job.OutputKey+job.Error))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, flagLimit, defaultLimit, flagLimitDesc)

	return cmd
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}

	return value
}
