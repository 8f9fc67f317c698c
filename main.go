package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"midi-bridge/internal/bridge"
	"midi-bridge/internal/config"
	"midi-bridge/internal/logger"
)

var log = logger.New("midi-bridge")

var (
	configFile = flag.String("config", "", "Config file")
	debug      = flag.Bool("debug", false, "Show debug info")
	sinkName   = flag.String("sink", "", "Name of the MIDI output port")
	baudRate   = flag.Int("baud", 0, "Serial baud rate")
	reconnect  = flag.Bool("reconnect", false, "Reconnect after the transport disconnects")

	transports config.StringList
)

func init() {
	flag.Var(&transports, "transport", "Transport candidate, device path or host:port (repeatable; tcp:// means localhost:4000)")
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: midi-bridge [flags] [bridge|panic|list]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "  midi-bridge -transport /dev/ttyACM0 -transport /dev/ttyUSB0")
	fmt.Fprintln(os.Stderr, "  midi-bridge -transport tcp://")
	fmt.Fprintln(os.Stderr, "  midi-bridge -config bridges.yml")
	fmt.Fprintln(os.Stderr, "  midi-bridge panic")
	fmt.Fprintln(os.Stderr)
	flag.PrintDefaults()
}

// loadConfig reads the config file, or builds a single bridge from flags
func loadConfig() (config.Config, error) {
	cfg, err := config.Resolve(*configFile, config.Overrides{
		Transports: transports,
		Sink:       *sinkName,
		BaudRate:   *baudRate,
		Reconnect:  *reconnect,
	})
	if err != nil {
		return cfg, err
	}

	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func run() int {
	flag.Usage = usage
	flag.Parse()

	command := "bridge"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Error("Invalid configuration")
		return 1
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.WithError(err).Error("Invalid log level")
		return 1
	}
	log.Logger.SetLevel(logger.Level)

	defer drivers.Close()

	switch command {
	case "list":
		if err := listPorts(); err != nil {
			log.WithError(err).Error("Listing ports")
			return 1
		}
		return 0
	case "panic":
		if err := runPanic(cfg.Panic); err != nil {
			log.WithError(err).Error("Panic failed")
			return 1
		}
		log.Info("Panic sent")
		return 0
	case "bridge":
	default:
		usage()
		return 1
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Stopping MIDI bridge...")
		cancel()
	}()

	err = runBridges(ctx, cfg)
	switch {
	case err == nil, errors.Is(err, bridge.ErrDisconnected):
		return 0
	case errors.Is(err, bridge.ErrTransportUnavailable):
		log.WithError(err).Error("No suitable transport found")
	case errors.Is(err, bridge.ErrSinkUnavailable):
		log.WithError(err).Error("Could not open MIDI output")
	default:
		log.WithError(err).Error("Bridge failed")
	}
	return 1
}

func main() {
	os.Exit(run())
}
