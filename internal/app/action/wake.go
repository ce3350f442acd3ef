package action

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MaxxisHub/game-server-wol/internal/probe"
	"github.com/MaxxisHub/game-server-wol/internal/sysexec"
	"github.com/MaxxisHub/game-server-wol/internal/wol"
	"github.com/urfave/cli/v3"
)

func WakeCommand() *cli.Command {
	cmd := &cli.Command{
		Name:        "wake",
		Description: "Send a one-shot Wake-on-LAN magic packet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mac",
				Usage:    "Hardware address of the machine to wake",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "broadcast",
				Value: []string{"255.255.255.255"},
				Usage: "Broadcast addresses to send the packet to",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: wol.DefaultPort,
				Usage: "UDP port for the magic packet",
			},
			&cli.StringFlag{
				Name:  "wait",
				Usage: "Host to ping until it answers after the wake",
			},
			&cli.DurationFlag{
				Name:  "wait-timeout",
				Value: 2 * time.Minute,
				Usage: "How long to wait for the host to come up",
			},
		},
	}

	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		sender := wol.NewSender(int(c.Int("port")))
		if err := sender.Wake(c.String("mac"), c.StringSlice("broadcast")); err != nil {
			return err
		}

		host := c.String("wait")
		if host == "" {
			return nil
		}

		slog.Info("Waiting for the host to come up", "host", host)
		checker := &probe.PingChecker{Host: host, Runner: sysexec.ExecRunner{}}
		if err := probe.RetryUntil(ctx, checker, c.Duration("wait-timeout")); err != nil {
			return fmt.Errorf("host %s did not come up: %w", host, err)
		}
		slog.Info("Host is up", "host", host)
		return nil
	}

	return cmd
}
