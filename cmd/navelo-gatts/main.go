package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chaz8081/navelo-gatts/internal/ble"
	"github.com/chaz8081/navelo-gatts/internal/broadcast"
	"github.com/chaz8081/navelo-gatts/internal/config"
	"github.com/chaz8081/navelo-gatts/internal/gatts"
	"github.com/chaz8081/navelo-gatts/internal/logging"
	"github.com/chaz8081/navelo-gatts/internal/monitor"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "navelo-gatts: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()

	app.Name = "navelo-gatts"
	app.Usage = "Navelo BLE GATT server"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "path to config file (default: ~/.config/navelo-gatts/config.yaml)"},
		cli.StringFlag{Name: "log-level", Usage: "override log_level from the config (debug, info, warn, error)"},
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Advertise the service and broadcast indications until interrupted",
			Action: serve,
		},
		{
			Name:  "config",
			Usage: "Manage the config file",
			Subcommands: []cli.Command{
				{
					Name:   "init",
					Usage:  "Write the default config file if none exists",
					Action: configInit,
				},
				{
					Name:   "show",
					Usage:  "Print the effective config",
					Action: configShow,
				},
			},
		},
	}
	app.Action = cli.ShowAppHelp
	return app
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string, log logrus.FieldLogger) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Infof("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Info("No config file found, using defaults")
	return config.Default(), nil
}

// effectiveConfig loads and validates the config with the global flags applied.
func effectiveConfig(c *cli.Context, log logrus.FieldLogger) (*config.Config, error) {
	cfg, err := loadConfig(c.GlobalString("config"), log)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if lvl := c.GlobalString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	log, err := logging.New("info", os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := effectiveConfig(c, log)
	if err != nil {
		return err
	}
	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	opts, err := cfg.ServerOptions()
	if err != nil {
		return err
	}

	printBanner(cfg)

	stack, err := ble.OpenHostStack()
	if err != nil {
		return fmt.Errorf("opening bluetooth adapter: %w", err)
	}
	peripheral := ble.NewPeripheral(stack, log)
	defer peripheral.Close()

	server, err := gatts.NewServer(peripheral, log, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, server, cfg, log)
}

// run drives the session, the broadcast driver and the monitor until ctx is
// done or the session stops on its own.
func run(ctx context.Context, server *gatts.Server, cfg *config.Config, log logrus.FieldLogger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if cfg.Broadcast.Enabled {
		driver := broadcast.New(server, cfg.Broadcast.Interval, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := driver.Run(ctx); err != nil && !errors.Is(err, gatts.ErrServerClosed) {
				log.WithError(err).Error("[BCAST] driver stopped")
			}
		}()
	}
	if cfg.Monitor.Listen != "" {
		mon := monitor.New(server, cfg.Monitor.Interval, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mon.ListenAndServe(ctx, cfg.Monitor.Listen); err != nil {
				log.WithError(err).Error("[MON] monitor stopped")
			}
		}()
	}

	log.Info("Ready! Ctrl+C to quit.")
	err := server.Run(ctx)
	cancel()
	wg.Wait()

	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	log.Info("Goodbye!")
	return nil
}

func configInit(c *cli.Context) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

func configShow(c *cli.Context) error {
	log, err := logging.New("warn", os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := effectiveConfig(c, log)
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== navelo-gatts ===")
	fmt.Printf("  Device:    %s\n", cfg.Device.Name)
	fmt.Printf("  Service:   %s\n", cfg.Service.UUID)
	fmt.Printf("  Peers:     up to %d\n", cfg.Connection.MaxConnections)
	if cfg.Broadcast.Enabled {
		fmt.Printf("  Broadcast: every %s\n", cfg.Broadcast.Interval)
	} else {
		fmt.Println("  Broadcast: off")
	}
	if cfg.Monitor.Listen != "" {
		fmt.Printf("  Monitor:   http://%s/status\n", cfg.Monitor.Listen)
	}
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("====================")
}
