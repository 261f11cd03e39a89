package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gamepi/internal/app"
	"github.com/teslashibe/go-gamepi/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the game page (default)",
	RunE:  runServe,
}

var serveFlags struct {
	host       string
	port       int
	gamesDir   string
	thumbDir   string
	serialPort string
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(c *cobra.Command) {
	c.Flags().StringVar(&serveFlags.host, "host", "", "listen host (overrides config)")
	c.Flags().IntVarP(&serveFlags.port, "port", "p", 0, "listen port (overrides config)")
	c.Flags().StringVar(&serveFlags.gamesDir, "games-dir", "", "directory of .hex images (overrides config)")
	c.Flags().StringVar(&serveFlags.thumbDir, "thumb-dir", "", "directory of thumbnails (overrides config)")
	c.Flags().StringVar(&serveFlags.serialPort, "serial-port", "", "programmer serial port (overrides config)")
}

func applyServeFlags() {
	if serveFlags.host != "" {
		cfg.Server.Host = serveFlags.host
	}
	if serveFlags.port != 0 {
		cfg.Server.Port = serveFlags.port
	}
	if serveFlags.gamesDir != "" {
		cfg.Paths.GamesDir = serveFlags.gamesDir
	}
	if serveFlags.thumbDir != "" {
		cfg.Paths.ThumbDir = serveFlags.thumbDir
	}
	if serveFlags.serialPort != "" {
		cfg.Flash.SerialPort = serveFlags.serialPort
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags()

	a, err := app.New(cfg, log.L())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		return err
	}
	log.Info("gamepi stopped")
	return nil
}

// backgroundContext is used by one-shot commands that never cancel.
func backgroundContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
