package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nomis52/archivepanel/buildinfo"
	"github.com/nomis52/archivepanel/config"
	"github.com/nomis52/archivepanel/server"
	serverconfig "github.com/nomis52/archivepanel/server/config"
)

type Args struct {
	ConfigPath  string
	Validate    bool
	ShowVersion bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ShowVersion {
		props := buildinfo.Get()
		fmt.Printf("archivepanel server\nBuilt: %s\nCommit: %s\n", props.BuildTime, props.GitCommit)
		return nil
	}
	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	srvCfg, err := serverconfig.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	if args.Validate {
		if _, err := config.LoadConfig(srvCfg.PanelConfig); err != nil {
			return fmt.Errorf("invalid panel config %s: %w", srvCfg.PanelConfig, err)
		}
		fmt.Printf("Configuration validation successful: %s, %s\n", args.ConfigPath, srvCfg.PanelConfig)
		return nil
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		srv.Logger().Info("received signal, shutting down")
	}()

	return srv.Run(ctx)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to server config file")
	configPathShort := flag.String("c", "", "Path to server config file (shorthand)")
	validate := flag.Bool("validate", false, "Validate the server and panel config and exit")
	showVersion := flag.Bool("version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\narchivepanel - project archive panels for SharePoint sites\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/archivepanel/server.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c server.yaml --validate\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath:  path,
		Validate:    *validate,
		ShowVersion: *showVersion,
	}
}
