package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gamepi/internal/httpc"
)

var statusRemote string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the device status of a running server",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRemote, "remote", "", "base URL of the gamepi server (default: configured listen address)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := statusRemote
	if base == "" {
		base = "http://" + localAddr()
	}

	status, err := httpc.New(base).Status()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if status.Busy {
		fmt.Fprintf(out, "Busy: flashing %s since %s\n", status.Game, status.Since.Format(time.Kitchen))
	} else {
		fmt.Fprintln(out, "Idle")
	}
	if last := status.Last; last != nil {
		result := "ok"
		if !last.Success {
			result = fmt.Sprintf("failed (exit %d)", last.ExitCode)
			if last.Error != "" {
				result += ": " + last.Error
			}
		}
		fmt.Fprintf(out, "Last:  %s %s at %s\n", last.Game, result, last.Finished.Format(time.RFC3339))
	}
	return nil
}

// localAddr is the configured listen address with wildcard hosts mapped
// to loopback.
func localAddr() string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, cfg.Server.Port)
}
