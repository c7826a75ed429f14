package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/api"
	"github.com/Pradhumn115/ruma-core/internal/download"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	downloadOutput string
	downloadWatch  bool
	downloadServer int
)

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Download a file, headless or against a running rumad serve",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]
		if downloadOutput == "" {
			downloadOutput = "."
		}

		if downloadServer > 0 {
			return sendToServer(url, downloadOutput, downloadServer)
		}
		return runLocalDownload(url, downloadOutput, downloadWatch)
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output directory")
	downloadCmd.Flags().BoolVarP(&downloadWatch, "watch", "w", false, "show an interactive progress view instead of plain log lines")
	downloadCmd.Flags().IntVarP(&downloadServer, "server", "s", 0, "queue on a running rumad serve instance on this control-plane port")
}

// sendToServer posts the request to an already-running control plane,
// mirroring the CLI-vs-daemon split a standalone downloader offers
// when a persistent instance is already up.
func sendToServer(url, outPath string, port int) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	body, err := json.Marshal(api.EnqueueRequest{URL: url, Path: outPath})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://127.0.0.1:%d/v1/queue", port), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ruma-Token", a.cfg.GetAIToken())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach rumad serve on port %d: %w", port, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(respBody))
	}
	fmt.Printf("queued: %s\n", string(respBody))
	return nil
}

// runLocalDownload drives a standalone Manager directly, with no
// control server involved - the state store still makes it
// crash-resumable on a later `rumad download` against the same path.
func runLocalDownload(url, outPath string, watch bool) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	engine := download.NewEngine(a.log, a.db)
	engine.Start()
	defer engine.Shutdown()

	id, err := engine.StartDownload(url, outPath, "", nil)
	if err != nil {
		return err
	}

	if watch {
		return runProgressTUI(engine, id)
	}
	return printProgress(engine, id)
}

// printProgress streams plain progress lines to stderr, grounded on
// the same headless fallback a TUI downloader offers when stdout
// isn't a terminal.
func printProgress(engine *download.Manager, id string) error {
	sub, unsubscribe := engine.Events().Subscribe()
	defer unsubscribe()

	startTime := time.Now()
	lastBucket := -1

	for {
		task, err := engine.GetTask(id)
		if err != nil {
			return err
		}

		switch task.Status {
		case "completed":
			fmt.Fprintf(os.Stderr, "complete: %s in %s\n", task.Filename, time.Since(startTime).Round(time.Millisecond))
			return nil
		case "error":
			return fmt.Errorf("download failed: %s", task.Filename)
		}

		select {
		case evt := <-sub:
			if evt.Name == "download:progress" {
				if pid, ok := evt.Data["id"].(string); ok && pid == id {
					progress, _ := evt.Data["progress"].(float64)
					bucket := int(progress / 10)
					if bucket > lastBucket {
						lastBucket = bucket
						fmt.Fprintf(os.Stderr, "  %.0f%% - %v bytes/s\n", progress, evt.Data["speed"])
					}
				}
			}
		case <-time.After(2 * time.Second):
		}
	}
}

// runProgressTUI renders an interactive bubbletea dashboard for a
// single queued download, polling Manager.GetTask (see pollTask) and
// feeding the snapshots to a tea.Program instead of stderr.
func runProgressTUI(engine *download.Manager, id string) error {
	model := newDownloadModel(engine, id)
	p := tea.NewProgram(model)
	_, err := p.Run()
	return err
}
