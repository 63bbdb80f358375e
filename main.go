package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/katvier/naia/internal"
	"github.com/katvier/naia/pkg/logger"
)

var log = logger.Get("Main")

// main loads the user configuration, constructs the Naia service graph and
// runs it until an interrupt arrives.
func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file (environment-only when omitted)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logger.SetMinLoggingLevel(logger.DEBUG)
	}

	config := internal.NaiaConfig{}
	var err error
	if *configPath != "" {
		err = config.LoadFromFile(*configPath)
	} else {
		err = config.LoadFromEnv()
	}
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	naia, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise Naia: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := naia.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Naia stopped with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Naia stopped\n")
}
