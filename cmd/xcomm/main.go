package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"xcomm"
)

var (
	configFilePath string
	device         string
)

func init() {
	flag.StringVar(&configFilePath, "c", "", "path to configuration file (.toml or .yaml).")
	flag.StringVar(&device, "d", "", "serial device for send, overrides the configured ones.")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-c config] [-d device] send [message] | bridge\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	config := &xcomm.Config{}
	if configFilePath != "" {
		var err error
		config, err = xcomm.LoadConfig(configFilePath)
		if err != nil {
			log.Fatal().Msgf("can't load config %s: %+v", configFilePath, err)
		}
	}
	initLog(config)

	var err error
	switch flag.Arg(0) {
	case "send":
		message := "hello world"
		if flag.NArg() > 1 {
			message = flag.Arg(1)
		}
		err = send(config, message)
	case "bridge":
		err = bridge(config)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Msgf("%s failed: %+v", flag.Arg(0), err)
		os.Exit(1)
	}
}

func initLog(config *xcomm.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger, err := xcomm.NewLogger(config.Global, zerolog.ConsoleWriter{Out: os.Stderr})
	if err != nil {
		log.Fatal().Msgf("%+v", err)
	}
	log.Logger = logger
	zerolog.SetGlobalLevel(logger.GetLevel())
}

// send dials one serial line, writes message and closes it.
func send(config *xcomm.Config, message string) error {
	serialConfig := xcomm.SerialConfig{Device: device}
	if len(config.Serials) > 0 {
		serialConfig = config.Serials[0]
		if device != "" {
			serialConfig.Device = device
		}
	}
	serial, err := xcomm.DialSerial(serialConfig)
	if err != nil {
		return err
	}
	defer serial.Close()
	n, err := serial.Send([]byte(message))
	if err != nil {
		return err
	}
	log.Info().Msgf("write %s to serial %s (%d bytes accepted, %d pending)", message, serial.Device(), n, serial.Pending())
	return nil
}

func bridge(config *xcomm.Config) error {
	if len(config.Bridges) == 0 {
		return fmt.Errorf("%w: no bridges configured", xcomm.ErrInvalidConfiguration)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loop, err := xcomm.NewEventLoop(config.Loop)
	if err != nil {
		return err
	}
	defer loop.Close()

	resolver, err := xcomm.NewResolver(config.Resolver)
	if err != nil {
		return err
	}
	defer resolver.Close()

	group, ctx := errgroup.WithContext(ctx)
	for _, bridgeConfig := range config.Bridges {
		serialConfig, _ := config.Serial(bridgeConfig.Serial)
		socketConfig, _ := config.Socket(bridgeConfig.Socket)
		socketConfig.Resolver = resolver
		b := &bridgeRunner{
			config: bridgeConfig,
			serial: serialConfig,
			socket: socketConfig,
			loop:   loop,
		}
		if err = b.start(ctx, group); err != nil {
			return err
		}
	}
	group.Go(func() error {
		return loop.Run(ctx)
	})
	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info().Msgf("stopped: %+v", loop.Stats())
		return nil
	}
	return err
}
