package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	tallycmd "github.com/louisbranch/ballotbox/internal/cmd/tally"
	entrypoint "github.com/louisbranch/ballotbox/internal/platform/cmd"
	"github.com/louisbranch/ballotbox/internal/platform/config"
)

func main() {
	cfg, err := tallycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Usagef("parse flags: %v", err)
	}
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceTally))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tallycmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
