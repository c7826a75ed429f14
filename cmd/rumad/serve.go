package main

import (
	"context"
	"os"
	"os/exec"

	"github.com/Pradhumn115/ruma-core/internal/api"
	"github.com/Pradhumn115/ruma-core/internal/download"
	"github.com/Pradhumn115/ruma-core/internal/learning"
	"github.com/Pradhumn115/ruma-core/internal/security"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download engine, memory subsystem and control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	engine := download.NewEngine(a.log, a.db)
	engine.Start()
	defer engine.Shutdown()

	stack, err := a.buildMemoryStack()
	if err != nil {
		return err
	}
	defer stack.vectors.Shutdown()

	audit := security.NewAuditLogger(a.log)
	defer audit.Close()

	supervisor := learning.NewSupervisor(a.log, a.db, extractWorkerCommand)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := api.NewControlServer(engine, stack.mem, stack.router, stack.chat, supervisor, stack.sched, a.cfg, audit)
	server.Start(a.cfg.GetAIPort())

	go supervisor.Run(ctx)
	go stack.sched.Run(ctx)

	a.log.Info("rumad serving", "port", a.cfg.GetAIPort())

	waitForSignals(func() {
		a.log.Info("shutdown signal received")
		cancel()
	})
	<-ctx.Done()
	return nil
}

// extractWorkerCommand re-execs this same binary with --extract-worker
// so the learning supervisor always has a fresh OS process to spawn,
// with no second build artifact to keep in sync.
func extractWorkerCommand() *exec.Cmd {
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}
	cmd := exec.Command(self, "--extract-worker")
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd
}
