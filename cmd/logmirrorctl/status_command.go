package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"logmirror/internal/logmirror/config"
)

type daemonStatus struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	StartedAt    time.Time `json:"started_at"`
	UptimeSecs   float64   `json:"uptime_seconds"`
	Tracked      int       `json:"tracked_containers"`
	SessionCount int       `json:"session_count"`
	ArchiveCount int       `json:"archive_count"`
}

func newStatusCommand(cfg config.Config) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				return fmt.Errorf("daemon status endpoint is not configured (set http_addr or LOGMIRROR_HTTP_ADDR)")
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get("http://" + hostFor(addr) + "/status")
			if err != nil {
				return fmt.Errorf("query daemon: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon returned %s", resp.Status)
			}

			var st daemonStatus
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:   %s\n", st.Status)
			fmt.Fprintf(out, "Version:  %s\n", st.Version)
			fmt.Fprintf(out, "Uptime:   %s\n", time.Duration(st.UptimeSecs*float64(time.Second)).Round(time.Second))
			fmt.Fprintf(out, "Tracked:  %d containers\n", st.Tracked)
			fmt.Fprintf(out, "Sessions: %d total\n", st.SessionCount)
			fmt.Fprintf(out, "Archives: %d total\n", st.ArchiveCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", cfg.HTTPAddr, "Daemon status endpoint address")
	return cmd
}

// hostFor turns a listen address like ":8080" into a dialable host.
func hostFor(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "127.0.0.1" + addr
	}
	return addr
}
