package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/novadb/novadb-mcp-demo/internal/svcfields"
	"github.com/novadb/novadb-mcp-demo/internal/telemetry"
	"github.com/novadb/novadb-mcp-demo/internal/version"
	"github.com/novadb/novadb-mcp-demo/mcp"
	"pkt.systems/pslog"
)

const (
	envPrefix             = "NOVA"
	defaultConfigDirName  = ".novadb-mcp"
	defaultConfigFileName = "config.yaml"
	defaultInlineMaxBytes = "2MiB"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("NOVA_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "novadb-mcp")
	cmd := newRootCommand(baseLogger, viper.New())
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			svcfields.WithSubsystem(baseLogger, svcfields.CLIRoot).Error("cli.root.command_failed", "error", err)
		}
		return 1
	}
	return 0
}

// newRootCommand builds the CLI. Flags, NOVA_* environment variables and the
// optional YAML config file all resolve through v.
func newRootCommand(baseLogger pslog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "novadb-mcp",
		Short:         "novadb-mcp exposes the NovaDB CMS and Index APIs as MCP tools over stdio",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Credentials from the environment, downloads written below ./downloads
  NOVA_HOST=nova.example.com NOVA_CMS_USER=cms NOVA_CMS_PASSWORD=... \
  NOVA_INDEX_USER=index NOVA_INDEX_PASSWORD=... novadb-mcp --workspace-dir ./downloads

  # Return payloads inline (up to 512 KiB) instead of touching the disk
  novadb-mcp --config ~/.novadb-mcp/config.yaml --payload-mode inline --inline-max-bytes 512KiB

  # Print the tool catalogue without contacting NovaDB
  novadb-mcp tools --format yaml
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, baseLogger, v)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/"+defaultConfigDirName+"/"+defaultConfigFileName+" when present)")
	persistent.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	persistent.String("host", "", "NovaDB host name; a full URL is reduced to its host")
	persistent.String("cms-user", "", "CMS API user")
	persistent.String("cms-password", "", "CMS API password")
	persistent.String("index-user", "", "Index API user")
	persistent.String("index-password", "", "Index API password")
	persistent.String("cms-base-url", "", "override the CMS API root (default https://<host>/apis/cms/v1)")
	persistent.String("index-base-url", "", "override the Index API root (default https://<host>/apis/index/v1)")
	persistent.String("payload-mode", string(mcp.PayloadModeDisk), "binary payload handling (disk|inline)")
	persistent.String("workspace-dir", ".", "directory downloads are written to and uploads read from in disk mode")
	persistent.String("inline-max-bytes", defaultInlineMaxBytes, "maximum inline payload size (e.g. 512KiB, 4MB)")
	persistent.Duration("http-timeout", 0, "per-request timeout for NovaDB calls (0 disables)")
	persistent.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	persistent.String("metrics-listen", "", "Prometheus metrics listen address (empty disables)")
	persistent.Bool("enable-runtime-metrics", false, "export Go runtime metrics on the Prometheus endpoint")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{
		"config", "log-level",
		"host", "cms-user", "cms-password", "index-user", "index-password", "cms-base-url", "index-base-url",
		"payload-mode", "workspace-dir", "inline-max-bytes", "http-timeout",
		"otlp-endpoint", "metrics-listen", "enable-runtime-metrics",
	} {
		flag := persistent.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := v.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio (default action)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, baseLogger, v)
		},
	}
	cmd.AddCommand(serveCmd)
	cmd.AddCommand(newToolsCommand(v))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func runServe(cmd *cobra.Command, baseLogger pslog.Logger, v *viper.Viper) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := baseLogger
	if level, ok := pslog.ParseLevel(strings.TrimSpace(v.GetString("log-level"))); ok {
		logger = logger.LogLevel(level)
	}
	cliLogger := svcfields.WithSubsystem(logger, svcfields.CLIRoot)
	cliLogger.Info("cli.root.start", "version", version.Current(), "pid", os.Getpid())

	configFile, err := loadConfigFile(v)
	if err != nil {
		return err
	}
	if configFile != "" {
		cliLogger.Info("cli.root.config_loaded", "path", configFile)
	}

	cfg, telemetryCfg, err := configFromViper(v)
	if err != nil {
		return err
	}
	srv, err := mcp.NewServer(mcp.NewServerRequest{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	bundle, err := telemetry.Setup(ctx, telemetryCfg, svcfields.WithSubsystem(logger, svcfields.Telemetry))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bundle.Shutdown(shutdownCtx); err != nil {
			cliLogger.Warn("cli.root.telemetry_shutdown_failed", "error", err)
		}
	}()
	return srv.Run(ctx)
}

// configFromViper maps resolved settings onto the server and telemetry
// configs. Credentials are checked by mcp.NewServer, not here, so the tools
// command works without them.
func configFromViper(v *viper.Viper) (mcp.Config, telemetry.Config, error) {
	mode, err := mcp.ParsePayloadMode(v.GetString("payload-mode"))
	if err != nil {
		return mcp.Config{}, telemetry.Config{}, err
	}
	inlineMax, err := parseByteSize(v.GetString("inline-max-bytes"))
	if err != nil {
		return mcp.Config{}, telemetry.Config{}, fmt.Errorf("--inline-max-bytes: %w", err)
	}
	workspace, err := expandPath(strings.TrimSpace(v.GetString("workspace-dir")))
	if err != nil {
		return mcp.Config{}, telemetry.Config{}, fmt.Errorf("expand workspace dir: %w", err)
	}
	timeout := v.GetDuration("http-timeout")
	if timeout < 0 {
		return mcp.Config{}, telemetry.Config{}, fmt.Errorf("--http-timeout must not be negative")
	}
	cfg := mcp.Config{
		Host:           strings.TrimSpace(v.GetString("host")),
		CMSUser:        strings.TrimSpace(v.GetString("cms-user")),
		CMSPassword:    v.GetString("cms-password"),
		IndexUser:      strings.TrimSpace(v.GetString("index-user")),
		IndexPassword:  v.GetString("index-password"),
		CMSBaseURL:     strings.TrimSpace(v.GetString("cms-base-url")),
		IndexBaseURL:   strings.TrimSpace(v.GetString("index-base-url")),
		PayloadMode:    mode,
		WorkspaceDir:   workspace,
		InlineMaxBytes: inlineMax,
		HTTPTimeout:    timeout,
		Version:        version.Current(),
	}
	telemetryCfg := telemetry.Config{
		OTLPEndpoint:   strings.TrimSpace(v.GetString("otlp-endpoint")),
		MetricsListen:  strings.TrimSpace(v.GetString("metrics-listen")),
		RuntimeMetrics: v.GetBool("enable-runtime-metrics"),
		Version:        cfg.Version,
	}
	return cfg, telemetryCfg, nil
}

// parseByteSize accepts humanized sizes ("512KiB", "4MB") and plain byte
// counts. Empty selects the server default.
func parseByteSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > 1<<40 {
		return 0, fmt.Errorf("size %q out of range", raw)
	}
	return int64(n), nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultConfigDirName, defaultConfigFileName)
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	explicit := cfgPath != ""
	if cfgPath == "" {
		candidate := defaultConfigPath()
		if candidate == "" {
			return "", nil
		}
		if _, err := os.Stat(candidate); err != nil {
			return "", nil
		}
		cfgPath = candidate
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
