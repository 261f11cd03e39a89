package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gamepi/internal/app"
	"github.com/teslashibe/go-gamepi/internal/httpc"
	"github.com/teslashibe/go-gamepi/internal/log"
)

var flashRemote string

var flashCmd = &cobra.Command{
	Use:   "flash <game>",
	Short: "Flash a game onto the attached board",
	Long: `Runs the configured flash command for one image in the games directory
and prints its output.

With --remote the request is sent to a running gamepi server, which
flashes the board attached to that host.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().StringVar(&flashRemote, "remote", "", "base URL of a gamepi server (http://pi.local:5000)")
}

func runFlash(cmd *cobra.Command, args []string) error {
	game := args[0]
	out := cmd.OutOrStdout()

	if flashRemote != "" {
		resp, err := httpc.New(flashRemote).Flash(game)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp.Body)
		if !resp.OK() {
			return fmt.Errorf("flash %s: server returned status %d", game, resp.StatusCode)
		}
		return nil
	}

	a, err := app.New(cfg, log.L())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Flashing %s...\n", game)
	res, err := a.Invoker.Flash(backgroundContext(cmd), game)
	if res != nil {
		fmt.Fprintln(out, res.Output())
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Done in %s.\n", res.Duration.Round(time.Millisecond))
	return nil
}
