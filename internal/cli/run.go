package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ridgelink/sensormesh/internal/config"
	"github.com/ridgelink/sensormesh/internal/gpsdev"
	"github.com/ridgelink/sensormesh/internal/logging"
	"github.com/ridgelink/sensormesh/internal/mesh"
	"github.com/ridgelink/sensormesh/internal/node"
	"github.com/ridgelink/sensormesh/internal/sensordev"
	"github.com/ridgelink/sensormesh/internal/tui"
)

var (
	dryRun      bool
	interactive bool
	noGPS       bool
	noConsole   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a mesh node",
	Long: `Start one node of the sensor mesh.

The node joins the configured radio transport, schedules its own report in
its TDMA slot, forwards peer reports toward the gateway and relays routing
beacons. A gateway node (device id equal to the gateway id) additionally
originates beacons and delivers accepted reports to the configured sinks.

While running, the process accepts console commands on stdin:
  SETTIME HH:MM:SS, mesh status, mesh stats, mesh reset,
  mesh test <destId> <ttl> <text>

Use --interactive or -i for a live status TUI instead of the console.`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate configuration without starting the node")
	runCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "run with interactive TUI")
	runCmd.Flags().BoolVar(&noGPS, "no-gps", false, "run without a GPS fix (schedule off network time)")
	runCmd.Flags().BoolVar(&noConsole, "no-console", false, "do not read commands from stdin")
}

func runNode(_ *cobra.Command, _ []string) error {
	// Initialize logging
	logCfg := logging.Config{
		Level:  viper.GetString("logging.level"),
		Format: viper.GetString("logging.format"),
	}

	// For interactive mode, reduce log noise behind the TUI
	if interactive {
		logCfg.Format = "text"
		logCfg.Level = "error"
	}

	if err := logging.Initialize(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		logging.Info("Using config file", zap.String("path", cfgFile))
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if dryRun {
		fmt.Println("Configuration is valid!")
		fmt.Printf("  Device:  %d (gateway: %v)\n", cfg.Node.DeviceID, cfg.Node.IsGateway())
		fmt.Printf("  Radio:   %s\n", cfg.Radio.Type)
		fmt.Printf("  Slot:    [%d,%d]\n",
			(cfg.Node.DeviceID-1)*12, (cfg.Node.DeviceID-1)*12+11)
		enabled := 0
		for _, s := range cfg.Sinks {
			if s.Enabled {
				enabled++
			}
		}
		fmt.Printf("  Sinks:   %d enabled (gateway only)\n", enabled)
		return nil
	}

	// GPS and sensor collaborators
	var gps mesh.GPS
	if noGPS {
		gps = gpsdev.NoFix{}
	} else {
		gps = gpsdev.NewSimulated(33768200, -118195600, 31)
	}
	sensors := sensordev.NewSimulated(72.5, 45.0, 1013.0)

	service, err := node.New(cfg, gps, sensors)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	if interactive {
		go func() {
			<-sigChan
			cancel()
		}()
		if err := tui.Run(service); err != nil {
			logging.Error("TUI error", zap.Error(err))
		}
	} else {
		if !noConsole {
			go service.RunConsole(ctx, os.Stdin, os.Stdout)
		}
		logging.Info("Node is running. Press Ctrl+C to stop.")
		<-sigChan
		logging.Info("Received shutdown signal")
	}

	if err := service.Stop(); err != nil {
		logging.Error("Error stopping node", zap.Error(err))
	}
	return nil
}
