package learning

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// Supervisor keeps the extraction worker process alive, starting it
// again whenever it exits (after a non-zero exit it first waits with
// backoff); the queue state is not consulted - ported from separate_process_learning.py's ensure_worker_running,
// generalized from a poll-on-enqueue check into a standing supervisor
// goroutine (the Go process model has no equivalent of the Python
// script's lazy subprocess.Popen-on-demand check).
type Supervisor struct {
	logger  *slog.Logger
	db      *storage.Storage
	command func() *exec.Cmd

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
}

func NewSupervisor(logger *slog.Logger, db *storage.Storage, command func() *exec.Cmd) *Supervisor {
	return &Supervisor{logger: logger, db: db, command: command}
}

// Run supervises the worker process until ctx is cancelled, restarting
// it whenever it exits: a non-zero exit waits with exponential backoff
// (capped at 30s) first, a clean exit restarts at once and resets the
// backoff. It returns once ctx is done and the child has been told to
// stop.
func (s *Supervisor) Run(ctx context.Context) {
	backoff := time.Second

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			s.stop()
			return
		default:
		}

		cmd := s.command()
		if err := cmd.Start(); err != nil {
			s.logger.Error("failed to start extraction worker", "err", err)
			sleep(ctx, backoff)
			backoff = nextBackoff(backoff)
			continue
		}

		s.mu.Lock()
		s.cmd = cmd
		s.mu.Unlock()
		s.logger.Info("extraction worker started", "pid", cmd.Process.Pid)

		err := cmd.Wait()

		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}

		if err != nil {
			s.logger.Warn("extraction worker exited, restarting", "err", err, "backoff", backoff)
			sleep(ctx, backoff)
			backoff = nextBackoff(backoff)
		} else {
			backoff = time.Second
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// Stop terminates the supervised process, if running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

func (s *Supervisor) stop() {
	s.Stop()
}

// QueueStatus mirrors separate_process_learning.py's get_queue_status,
// exposed on the control API as GET /api/learning/status.
type QueueStatus struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
}

func Status(db *storage.Storage) (QueueStatus, error) {
	var status QueueStatus
	var err error
	if status.Pending, err = db.CountLearningItems(storage.QueueUnprocessed); err != nil {
		return status, err
	}
	if status.InProgress, err = db.CountLearningItems(storage.QueueInProgress); err != nil {
		return status, err
	}
	if status.Done, err = db.CountLearningItems(storage.QueueDone); err != nil {
		return status, err
	}
	if status.Failed, err = db.CountLearningItems(storage.QueueFailed); err != nil {
		return status, err
	}
	return status, nil
}
