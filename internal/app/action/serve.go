package action

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/MaxxisHub/game-server-wol/internal/app/logger/logging"
	"github.com/MaxxisHub/game-server-wol/internal/config"
	"github.com/MaxxisHub/game-server-wol/internal/console"
	"github.com/MaxxisHub/game-server-wol/internal/proxy"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func ServeCommand() *cli.Command {
	cmd := &cli.Command{
		Name:        "serve",
		Description: "Run the wake-on-demand proxy daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: defaultConfigPath,
				Usage: "Path to the configuration file",
			},
			&cli.StringFlag{
				Name:  "console-addr",
				Value: defaultConsoleAddr,
				Usage: "Address of the HTTP console (empty disables it)",
			},
		},
	}

	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		configPath := c.String("config")
		if err := config.WaitForFile(ctx, configPath); err != nil {
			return err
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		manager := proxy.NewManager(cfg)

		group, groupContext := errgroup.WithContext(ctx)
		group.Go(func() error {
			return manager.Run(groupContext)
		})

		if consoleAddr := c.String("console-addr"); consoleAddr != "" {
			con := console.NewConsole(consoleAddr, manager)
			startConsole, stopConsole := con.Handlers()
			group.Go(func() error {
				if err := startConsole(groupContext); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-groupContext.Done()
				return stopConsole(context.Background())
			})
		}

		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Daemon exited with error", logging.Error(err))
			return err
		}
		return nil
	}

	return cmd
}
