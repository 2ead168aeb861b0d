package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CZERTAINLY/mdsetup/internal/log"
	"github.com/CZERTAINLY/mdsetup/internal/model"
	"github.com/CZERTAINLY/mdsetup/internal/service"
	"github.com/spf13/cobra"
)

const cliSession = "cli"

var flagRunDir string

var runCmd = &cobra.Command{
	Use:   "run <snapshot.yaml|.json|.hcl>",
	Short: "run starts the simulation and streams its output, interrupt cancels it",
	Args:  cobra.ExactArgs(1),
	RunE:  doRun,
}

func init() {
	runCmd.Flags().StringVar(&flagRunDir, "dir", "", "job directory, relative paths are resolved against jobs.root")
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("mdsetup",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	))

	snap, err := model.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	reg, err := readFiles(flagFiles)
	if err != nil {
		return err
	}

	svc, err := service.NewService(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.Close()
	}()

	sup := svc.Supervisor(cliSession)
	job, err := sup.Start(ctx, snap, reg, svc.WorkDir(flagRunDir))
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "simulation started", "job_id", job.ID(), "work_dir", job.WorkDir())

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	ticker := time.NewTicker(config.Server.PollInterval)
	defer ticker.Stop()
	for {
		chunk, ok := sup.Poll()
		if chunk != "" {
			_, _ = fmt.Fprint(out, chunk)
		}
		if !ok {
			break
		}
		select {
		case <-ticker.C:
		case <-sigCtx.Done():
			slog.InfoContext(ctx, "cancelling simulation", "job_id", job.ID())
			sup.Cancel(ctx)
		}
	}

	// waits for the upload of the results
	sup.Close(context.WithoutCancel(ctx))

	switch job.State() {
	case service.StateCompleted:
		return nil
	case service.StateCancelled:
		return exitError{code: 130, err: fmt.Errorf("simulation %s cancelled", job.ID())}
	default:
		code := job.Record().ExitCode
		if code <= 0 {
			code = 1
		}
		return exitError{code: code, err: fmt.Errorf("simulation %s failed: %w", job.ID(), job.Err())}
	}
}
