package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/nm-morais/packetmux/configs"
	"github.com/nm-morais/packetmux/examples/pingPong"
	"github.com/nm-morais/packetmux/pkg"
	"github.com/nm-morais/packetmux/pkg/logs"
	"github.com/nm-morais/packetmux/pkg/message"
	"github.com/nm-morais/packetmux/pkg/registry"
	"github.com/urfave/cli/v2"
)

var logger = logs.NewLogger("pingPong")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := app().RunContext(ctx, os.Args); err != nil {
		logger.Fatalf("Application failed: %s", err.Error())
	}
}

func app() *cli.App {
	configPath := ""
	logLevel := ""
	return &cli.App{
		Name:  "pingPong",
		Usage: "Lobby server and clients exchanging ping, chat and move packets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "JSON or TOML config file",
				EnvVars:     []string{"PINGPONG_CONFIG"},
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Verbosity of log, valid values are: trace, debug, info, warn, error",
				EnvVars:     []string{"PINGPONG_LOG_LEVEL"},
				Destination: &logLevel,
			},
		},
		Before: func(*cli.Context) error {
			if logLevel == "" {
				return nil
			}
			return logs.SetLevel(logLevel)
		},
		Commands: []*cli.Command{
			runCmd(&configPath, &logLevel),
			tableCmd(),
		},
	}
}

func loadConfig(configPath string) (configs.Config, error) {
	if configPath == "" {
		return configs.DefaultConfig(), nil
	}
	return configs.ReadConfigFromFile(configPath)
}

func runCmd(configPath, logLevel *string) *cli.Command {
	var (
		side         string
		name         string
		listen       string
		contact      string
		pingInterval time.Duration
		nearRadius   float64
	)
	return &cli.Command{
		Name:  "run",
		Usage: "Starts a lobby server (responder) or a client (initiator)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "side", Aliases: []string{"s"}, Usage: "initiator|client, responder|server or none", Destination: &side},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Name this endpoint announces", Destination: &name},
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "Address the server listens on", Destination: &listen},
			&cli.StringFlag{Name: "contact", Usage: "Address of the server a client dials", Destination: &contact},
			&cli.DurationFlag{Name: "ping-interval", Usage: "How often a client pings", Value: time.Second, Destination: &pingInterval},
			&cli.Float64Flag{Name: "near-radius", Usage: "Radius moves are forwarded in", Value: 32, Destination: &nearRadius},
		},
		Action: func(ctx *cli.Context) error {
			conf, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if ctx.IsSet("side") {
				if conf.Side, err = message.ParseSide(side); err != nil {
					return err
				}
			}
			if ctx.IsSet("name") {
				conf.Name = name
			}
			if ctx.IsSet("listen") {
				conf.ListenAddr = listen
			}
			if ctx.IsSet("contact") {
				conf.ContactAddr = contact
			}
			if *logLevel != "" {
				conf.LogLevel = *logLevel
			}

			m, err := pkg.NewManager(conf)
			if err != nil {
				return err
			}
			defer m.Close()

			proto := pingPong.NewPingPongProtocol(m, nearRadius)
			proto.OnPong(func(pong *pingPong.Pong, rtt time.Duration) {
				fmt.Fprintf(ctx.App.Writer, "pong %d in %s\n", pong.Seq, rtt)
			})
			proto.OnChat(func(chat *pingPong.Chat) {
				fmt.Fprintf(ctx.App.Writer, "<%s> %s\n", chat.Sender, chat.Text)
			})
			if err := proto.Register(); err != nil {
				return err
			}
			if err := m.Start(ctx.Context); err != nil {
				return err
			}
			if conf.Side == message.SideInitiator {
				if err := proto.Say(fmt.Sprintf("%s joined", conf.Name), pingPong.NoPartition); err != nil {
					logger.Warnf("Greeting not sent: %s", err.Error())
				}
				go proto.RunPinger(ctx.Context, pingInterval)
			}
			<-ctx.Context.Done()
			logger.Info("Shutting down")
			return nil
		},
	}
}

func tableCmd() *cli.Command {
	return &cli.Command{
		Name:  "table",
		Usage: "Prints the discriminator assigned to every message type",
		Action: func(ctx *cli.Context) error {
			r := registry.New()
			for _, d := range pingPong.NewPingPongProtocol(nil, 0).Descriptors() {
				if err := r.Register(d); err != nil {
					return err
				}
			}
			r.Freeze()
			for _, e := range r.Entries() {
				fmt.Fprintf(ctx.App.Writer, "%3d  %s\n", e.Discriminator, e.Descriptor.Name())
			}
			fmt.Fprintf(ctx.App.Writer, "fingerprint %s\n", r.Fingerprint())
			return nil
		},
	}
}
