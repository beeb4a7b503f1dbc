package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/midikiti/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to mkctl TOML config (defaults built in)")
	port := flag.String("port", "", "serial port, overrides the config file")
	listPorts := flag.Bool("list-ports", false, "print serial ports and exit")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := resolveConfig(*configPath, *port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listPorts {
		err = printPorts(os.Stdout)
	} else {
		err = run(ctx, cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkctl: %v\n", err)
		os.Exit(1)
	}
}
