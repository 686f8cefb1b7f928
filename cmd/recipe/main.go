package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/always-cache/shell-cache/recipe"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	endpointFlag       string
	timeoutFlag        time.Duration
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&endpointFlag, "endpoint", recipe.DefaultEndpoint, "Random recipe endpoint")
	flag.DurationVar(&timeoutFlag, "timeout", 10*time.Second, "Request timeout")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.InfoLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	r, err := recipe.NewClient(recipe.Config{Endpoint: endpointFlag}).Random(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Could not get recipe")
		if errors.Is(err, recipe.ErrOffline) {
			fmt.Println(recipe.OfflineMessage)
		} else {
			fmt.Println("Could not get a recipe, please try again.")
		}
		os.Exit(1)
	}
	fmt.Print(r.String())
}
