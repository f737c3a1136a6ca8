package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/credence/internal/job"
	"github.com/mohammad-safakhou/credence/internal/pipeline"
	"github.com/spf13/cobra"
)

// stderrProgress prints each progress line as it is recorded.
type stderrProgress struct{ logger *log.Logger }

func (p stderrProgress) OnProgress(_ string, e job.ProgressEntry) { p.logger.Print(e.Message) }
func (p stderrProgress) OnStatus(_ string, s job.Status)          { p.logger.Printf("status: %s", s) }

func analyzeCMD(cfgPath *string) *cobra.Command {
	var req pipeline.Request
	var quiet bool
	var include, exclude []string
	analyze := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a file (or stdin) once and print the report as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			req.Content = string(content)
			for _, m := range include {
				req.Preferences.ForceInclude = append(req.Preferences.ForceInclude, pipeline.Mode(m))
			}
			for _, m := range exclude {
				req.Preferences.ForceExclude = append(req.Preferences.ForceExclude, pipeline.Mode(m))
			}
			if err := req.Validate(); err != nil {
				return err
			}

			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			logOut := io.Writer(cmd.ErrOrStderr())
			if quiet {
				logOut = io.Discard
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logOut, job.WithObserver(stderrProgress{logger: log.New(cmd.ErrOrStderr(), "", 0)}))
			if err != nil {
				return err
			}
			defer a.Close()

			id := a.jobs.Create(req.Content)
			if _, err := a.jobs.Start(id); err != nil {
				return err
			}
			// An interrupt raises the cancellation flag so the pipeline unwinds
			// at its next checkpoint, the same way an API cancel does.
			go func() {
				<-ctx.Done()
				_, _ = a.jobs.Cancel(id)
			}()

			result, err := a.orch.Run(context.Background(), id, req)
			if errors.Is(err, job.ErrCancelled) {
				_, _ = a.jobs.MarkCancelled(id)
				return fmt.Errorf("analysis cancelled")
			}
			if err != nil {
				_, _ = a.jobs.Fail(id, err.Error())
				return fmt.Errorf("analysis failed: %w", err)
			}
			_, _ = a.jobs.Complete(id, result)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	f := analyze.Flags()
	f.StringVar(&req.Pipeline, "pipeline", pipeline.PipelineComprehensive, "comprehensive or fact_check")
	f.StringVar(&req.SourceURL, "source-url", "", "URL the content was published at")
	f.StringVar(&req.ExplicitMode, "mode", "", "fact_check input mode: text or html (detected when empty)")
	f.StringSliceVar(&include, "include", nil, "analysis modes to force on")
	f.StringSliceVar(&exclude, "exclude", nil, "analysis modes to force off")
	f.BoolVarP(&quiet, "quiet", "q", false, "suppress component logs")
	return analyze
}

func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return b, nil
}
