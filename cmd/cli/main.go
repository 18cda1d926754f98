package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nomis52/archivepanel/buildinfo"
	"github.com/nomis52/archivepanel/clients/spclient"
	"github.com/nomis52/archivepanel/clients/trigger"
	"github.com/nomis52/archivepanel/config"
	"github.com/nomis52/archivepanel/logging"
	"github.com/nomis52/archivepanel/metrics"
	"github.com/nomis52/archivepanel/panel"
	"github.com/nomis52/archivepanel/propertybag"
)

type Args struct {
	ConfigPath  string
	PageURL     string
	Action      string
	StateDir    string
	Token       string
	Render      bool
	ShowVersion bool
	Validate    bool
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
		showVersion()
		return nil
	}

	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if args.Validate {
		fmt.Printf("Configuration validation successful: %s\n", args.ConfigPath)
		return nil
	}

	if args.PageURL == "" {
		return fmt.Errorf("page flag (-p or --page) is required")
	}

	logger, err := logging.New(logging.Config(cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	props := buildinfo.Get()
	logger.Info("archivepanel cli started",
		"build_time", props.BuildTime,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var m *panel.Metrics
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		registry := metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
			Logger:   logger.Logger,
		})
		m, err = panel.NewMetrics(registry)
		if err != nil {
			return err
		}

		// Run flushes queued samples once pushCtx is cancelled.
		pushCtx, stopPush := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			registry.Run(pushCtx)
			close(done)
		}()
		defer func() {
			stopPush()
			<-done
		}()
	}

	var store propertybag.Store = propertybag.NewMemoryStore()
	if args.StateDir != "" {
		if store, err = propertybag.NewDiskStore(args.StateDir, logger.Logger); err != nil {
			return err
		}
	}

	token := args.Token
	if token == "" {
		token = cfg.SharePoint.AccessToken
	}
	sp := spclient.New(
		spclient.WithToken(token),
		spclient.WithTimeout(cfg.SharePoint.Timeout),
		spclient.WithLogger(logger.Logger),
	)

	renderer, err := panel.NewRenderer(cfg.Styles, cfg.Messages, "")
	if err != nil {
		return err
	}

	ctrl := panel.NewController(args.PageURL, &cfg, panel.Deps{
		Permissions: sp,
		Items:       sp,
		Triggers:    trigger.New(cfg.Triggers.Timeout, logger.Logger),
		Properties:  store,
		Renderer:    renderer,
		Metrics:     m,
		Logger:      logger.Logger,
	})
	ctrl.Activate(ctx)

	if err := runAction(ctx, ctrl, args.Action); err != nil {
		return err
	}

	if args.Render {
		return ctrl.RenderDocument(os.Stdout, "")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(ctrl.Snapshot())
}

// runAction applies a command line action. archive opens and confirms in one
// step, as a user clicking through the overlay would.
func runAction(ctx context.Context, ctrl *panel.Controller, action string) error {
	var err error
	switch action {
	case "", "status":
		return nil
	case "archive":
		if err = ctrl.Archive(); err == nil {
			err = ctrl.Confirm(ctx)
		}
	case "reactivate":
		err = ctrl.Reactivate(ctx)
	default:
		return fmt.Errorf("unknown action %q (want status, archive or reactivate)", action)
	}

	if errors.Is(err, panel.ErrActionUnavailable) {
		snap := ctrl.Snapshot()
		return fmt.Errorf("cannot %s: project status is %q and user_can_edit=%t", action, snap.ProjectStatus, snap.UserCanEdit)
	}
	return err
}

func showVersion() {
	props := buildinfo.Get()
	fmt.Printf("archivepanel\n")
	fmt.Printf("Built: %s\n", props.BuildTime)
	fmt.Printf("Commit: %s\n", props.GitCommit)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to panel config file")
	configPathShort := flag.String("c", "", "Path to panel config file (shorthand)")
	pageURL := flag.String("page", "", "SharePoint page URL")
	pageURLShort := flag.String("p", "", "SharePoint page URL (shorthand)")
	action := flag.String("action", "status", "Action to run: status, archive or reactivate")
	stateDir := flag.String("state-dir", "", "Property store directory (in memory when empty)")
	token := flag.String("token", "", "SharePoint access token (defaults to sharepoint.access_token)")
	render := flag.Bool("render", false, "Print the rendered panel instead of the JSON snapshot")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nProject archive panel for SharePoint sites\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -c panel.yaml -p https://contoso.sharepoint.com/sites/solar-roof-4521\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c panel.yaml -p https://contoso.sharepoint.com/sites/solar-roof-4521 --action archive\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config panel.yaml --validate\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}
	page := *pageURL
	if page == "" && *pageURLShort != "" {
		page = *pageURLShort
	}

	return Args{
		ConfigPath:  path,
		PageURL:     page,
		Action:      *action,
		StateDir:    *stateDir,
		Token:       *token,
		Render:      *render,
		ShowVersion: *showVersion || *versionShort,
		Validate:    *validate,
	}
}
