package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gamepi/internal/app"
	"github.com/teslashibe/go-gamepi/internal/log"
	"github.com/teslashibe/go-gamepi/internal/service"
)

var serviceCmd = &cobra.Command{
	Use:   "service <action>",
	Short: "Manage the gamepi system service",
	Long: `Installs and controls gamepi as a system service (systemd, launchd or
the Windows service manager).

Actions: ` + strings.Join(service.Actions, ", ") + `, status, run.

"run" is what the service manager invokes; the installed service is
given the config file in use when "install" ran.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: append(append([]string{}, service.Actions...), "status", "run"),
	RunE:      runService,
}

func runService(cmd *cobra.Command, args []string) error {
	action := args[0]
	out := cmd.OutOrStdout()

	prg := service.NewProgram(func(ctx context.Context) error {
		a, err := app.New(cfg, log.L())
		if err != nil {
			return err
		}
		return a.Run(ctx)
	}, log.Component("service"))

	svc, err := service.New(prg, cfgSource)
	if err != nil {
		return err
	}

	switch action {
	case "run":
		log.Info("running under service manager", "interactive", service.Interactive())
		if err := svc.Run(); err != nil {
			return err
		}
		return prg.Err()
	case "status":
		st, err := service.Status(svc)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", service.Name, st)
		return nil
	default:
		if err := service.Control(svc, action); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s ok\n", service.Name, action)
		return nil
	}
}
