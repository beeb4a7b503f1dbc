package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/midikiti/internal/auth"
	"github.com/danmuck/midikiti/internal/config"
	"github.com/danmuck/midikiti/internal/console"
	"github.com/danmuck/midikiti/internal/server"
	"github.com/danmuck/midikiti/internal/surface"
	"github.com/danmuck/midikiti/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var errNothingToRun = errors.New("console and http_addr both disabled with reconnect off")

var consoleOut io.Writer = os.Stdout

func resolveConfig(path, port string) (config.Config, error) {
	cfg := config.Default()
	if strings.TrimSpace(path) != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if p := strings.TrimSpace(port); p != "" {
		cfg.Port = p
	}
	return cfg, nil
}

func printPorts(w io.Writer) error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	if !cfg.Console && cfg.HTTPAddr == "" && !cfg.Reconnect {
		return errNothingToRun
	}
	svc := surface.NewService(cfg.SessionConfig())
	defer svc.Close()
	return runService(ctx, cfg, svc, func() console.LineReader { return console.NewLineReader() })
}

// runService wires the optional status API, the connection and the
// console around svc. Leaving the console ends the process.
func runService(ctx context.Context, cfg config.Config, svc *surface.Service, lines func() console.LineReader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.HTTPAddr != "" {
		srv := server.New(svc, cfg.HTTPAddr, cfg.CorsOrigins)
		srv.RequireToken(auth.FromConfig(cfg.APIToken))
		g.Go(func() error { return srv.Serve(ctx) })
	}

	var con *console.Console
	if cfg.Console {
		reader := lines()
		defer reader.Close()
		con = console.New(svc, reader, consoleOut)
		svc.OnMessage(con.PrintMessage)
		svc.OnPreferences(con.PrintLoaded)
		defer svc.OnMessage(nil)
		defer svc.OnPreferences(nil)
	}

	if cfg.Reconnect {
		g.Go(func() error { return svc.Supervise(ctx, cfg.Port) })
	} else if name, err := svc.ResolvePort(cfg.Port); err != nil {
		log.Warn().Err(err).Msg("mkctl.run no port to open")
	} else if _, err := svc.Connect(ctx, name); err != nil {
		log.Warn().Err(err).Str("port", name).Msg("mkctl.run connect failed")
	}

	if con != nil {
		g.Go(func() error {
			err := con.Run(ctx)
			cancel()
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}
