package action

import (
	"context"
	"fmt"

	"github.com/MaxxisHub/game-server-wol/internal/netclaim"
	"github.com/MaxxisHub/game-server-wol/internal/sysexec"
	"github.com/urfave/cli/v3"
)

func DetectCommand() *cli.Command {
	cmd := &cli.Command{
		Name:        "detect",
		Description: "Show the detected interface, prefix and broadcast addresses for a target IP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "ip",
				Usage:    "Target IP address",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "cidr",
				Usage: "Prefix length override (0 = auto-detect)",
			},
		},
	}

	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		manager := netclaim.NewManager(c.String("ip"), int(c.Int("cidr")), sysexec.ExecRunner{})

		iface, prefix, err := manager.Detect(ctx)
		if err != nil {
			return err
		}
		broadcasts, err := manager.Broadcasts(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("interface:  %s\n", iface)
		fmt.Printf("prefix:     /%d\n", prefix)
		fmt.Printf("broadcasts: %v\n", broadcasts)
		return nil
	}

	return cmd
}
