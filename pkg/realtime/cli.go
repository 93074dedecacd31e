package realtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 30 * time.Second

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML configuration file",
			EnvVars: []string{"SMARTRAIL_CONFIG"},
		},
		&cli.BoolFlag{
			Name:  "memory",
			Usage: "use the in-memory store instead of MongoDB",
		},
		&cli.StringFlag{
			Name:  "seed",
			Usage: "YAML seed file for the in-memory store",
		},
	}
}

func optionsFromContext(c *cli.Context) Options {
	return Options{
		ConfigPath: c.String("config"),
		Memory:     c.Bool("memory"),
		SeedPath:   c.String("seed"),
	}
}

func shutdown(components *Components) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := components.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown incomplete")
	}
}

func RegisterCLI() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "run",
			Usage: "run the scheduler, broadcaster and web API",
			Flags: storeFlags(),
			Action: func(c *cli.Context) error {
				components, err := Build(c.Context, optionsFromContext(c))
				if err != nil {
					return err
				}

				if err := components.Start(c.Context); err != nil {
					shutdown(components)
					return err
				}

				webApp := components.Server().App()
				go func() {
					if err := webApp.Listen(components.Config.Listen); err != nil {
						log.Error().Err(err).Str("listen", components.Config.Listen).Msg("Web API stopped")
					}
				}()

				signals := make(chan os.Signal, 1)
				signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(signals)

				<-signals // wait for signal
				go func() {
					<-signals // hard exit on second signal (in case shutdown gets stuck)
					os.Exit(1)
				}()

				log.Info().Msg("Shutting down")

				if err := webApp.ShutdownWithTimeout(shutdownTimeout); err != nil {
					log.Error().Err(err).Msg("Failed to stop web API")
				}
				shutdown(components)

				return nil
			},
		},
		{
			Name:  "cleanup",
			Usage: "delete tracking samples and predictions past retention",
			Flags: storeFlags(),
			Action: func(c *cli.Context) error {
				components, err := Build(c.Context, optionsFromContext(c))
				if err != nil {
					return err
				}
				defer shutdown(components)

				result, err := components.Scheduler.Cleanup(c.Context)
				if err != nil {
					return err
				}

				pretty.Println(result)

				return nil
			},
		},
		{
			Name:  "predict",
			Usage: "predict the arrival of a train at a station",
			Flags: append(storeFlags(),
				&cli.Int64Flag{
					Name:     "train",
					Required: true,
				},
				&cli.Int64Flag{
					Name:     "station",
					Required: true,
				},
			),
			Action: func(c *cli.Context) error {
				components, err := Build(c.Context, optionsFromContext(c))
				if err != nil {
					return err
				}
				defer shutdown(components)

				prediction, err := components.Engine.Predict(c.Context, c.Int64("train"), c.Int64("station"))
				if err != nil {
					return err
				}

				pretty.Println(prediction)

				return nil
			},
		},
		{
			Name:  "advance",
			Usage: "force a position update for a train",
			Flags: append(storeFlags(),
				&cli.Int64Flag{
					Name:     "train",
					Required: true,
				},
			),
			Action: func(c *cli.Context) error {
				components, err := Build(c.Context, optionsFromContext(c))
				if err != nil {
					return err
				}
				defer shutdown(components)

				sample, err := components.Scheduler.AdvanceTrain(c.Context, c.Int64("train"))
				if err != nil {
					return err
				}

				pretty.Println(sample)

				return nil
			},
		},
	}
}
