// Command plbot is the process entrypoint: it reads the credentials file,
// the site-profile file, and the named profile within it, then assembles a
// gateway.Client, config.Manager, finder.Finder and bot.Bot and runs them
// until SIGINT/SIGTERM.
//
// Grounded on the teacher's cmd/cobra_cli.go for the cobra root command,
// fatih/color + golang.org/x/term TTY-gated output, and the
// signal.Notify-driven graceful shutdown pattern.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/milkydeferwm/pagelist-bot/internal/bot"
	"github.com/milkydeferwm/pagelist-bot/internal/config"
	"github.com/milkydeferwm/pagelist-bot/internal/finder"
	"github.com/milkydeferwm/pagelist-bot/internal/gateway"
	"github.com/milkydeferwm/pagelist-bot/internal/logging"
	"github.com/milkydeferwm/pagelist-bot/internal/metrics"
	"github.com/milkydeferwm/pagelist-bot/internal/tracing"
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

func statusf(format string, args ...interface{}) {
	if isTTY() {
		fmt.Fprintf(os.Stderr, "%s %s\n", green("plbot:"), fmt.Sprintf(format, args...))
		return
	}
	fmt.Fprintf(os.Stderr, "plbot: "+format+"\n", args...)
}

func errorf(format string, args ...interface{}) {
	if isTTY() {
		fmt.Fprintf(os.Stderr, "%s %s\n", red("plbot:"), fmt.Sprintf(format, args...))
		return
	}
	fmt.Fprintf(os.Stderr, "plbot: "+format+"\n", args...)
}

// credentialsFile is the shape of the credentials JSON: a map keyed by
// login-name string.
type credentialsFile map[string]struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// siteProfileFile is the shape of the site-profile JSON: a map keyed by
// profile name.
type siteProfileFile map[string]struct {
	API     string `json:"api"`
	DB      string `json:"db,omitempty"`
	Login   string `json:"login"`
	Assert  string `json:"assert,omitempty"`
	BotFlag bool   `json:"botflag"`
	Config  string `json:"config"`
}

func main() {
	root := &cobra.Command{
		Use:           "plbot <credentials.json> <site-profile.json> <profile-name>",
		Short:         "Run the page-list bot against one configured wiki profile",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rcPath, err := cmd.Flags().GetString("runtime-config")
			if err != nil {
				return err
			}
			return run(args[0], args[1], args[2], rcPath)
		},
	}
	root.PersistentFlags().String("runtime-config", "", "optional path to a plbot.yaml runtime-tuning file")

	if err := root.Execute(); err != nil {
		errorf("%v", err)
		os.Exit(1)
	}
}

func run(credPath, profilePath, profileName, runtimeConfigPath string) error {
	creds, err := loadCredentials(credPath)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	profile, err := loadProfile(profilePath, profileName)
	if err != nil {
		return fmt.Errorf("loading site profile %q: %w", profileName, err)
	}
	cred, ok := creds[profile.Login]
	if !ok {
		return fmt.Errorf("no credentials entry for login name %q", profile.Login)
	}

	runtimeCfg, err := config.LoadRuntimeConfig(runtimeConfigPath)
	if err != nil {
		return fmt.Errorf("loading runtime config: %w", err)
	}

	log := logging.NewStderr(parseLevel(runtimeCfg.LogLevel))

	gw, err := gateway.New(gateway.Config{
		APIURL:    profile.API,
		Assert:    gateway.AssertMode(profile.Assert),
		BotFlag:   profile.BotFlag,
		Timeout:   runtimeCfg.HTTPTimeout,
		RetryMax:  runtimeCfg.RetryMax,
		CacheSize: runtimeCfg.CacheSize,
	}, gateway.Credentials{Username: cred.Username, Password: cred.Password}, log)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}

	metricsProvider, err := metrics.NewProvider()
	if err != nil {
		return fmt.Errorf("building metrics provider: %w", err)
	}
	recorder, err := metricsProvider.NewRecorder()
	if err != nil {
		return fmt.Errorf("building metrics recorder: %w", err)
	}
	tracingProvider, err := tracing.NewProvider(context.Background(), runtimeCfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("building tracing provider: %w", err)
	}

	metricsSrv := &http.Server{Addr: runtimeCfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server: %v", err)
		}
	}()

	mgr := config.NewManager()
	f := finder.New(gw, mgr, log.With("component", "finder"), runtimeCfg.FinderInterval, profile.Config)
	f.Metrics = recorder

	b := &bot.Bot{
		Gateway:           gw,
		Finder:            f,
		Config:            mgr,
		Log:               log.With("component", "bot"),
		KeepAliveInterval: runtimeCfg.KeepAliveInterval,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusf("starting for profile %q against %s", profileName, profile.API)

	runErr := b.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), runtimeCfg.HTTPTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutting down metrics server: %v", err)
	}
	if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutting down tracing provider: %v", err)
	}
	if err := metricsProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutting down metrics provider: %v", err)
	}

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	statusf("%s", gray("shut down cleanly"))
	return nil
}

func loadCredentials(path string) (credentialsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cf credentialsFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, err
	}
	return cf, nil
}

type profile struct {
	API     string
	DB      string
	Login   string
	Assert  string
	BotFlag bool
	Config  string
}

func loadProfile(path, name string) (profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return profile{}, err
	}
	var spf siteProfileFile
	if err := json.Unmarshal(raw, &spf); err != nil {
		return profile{}, err
	}
	p, ok := spf[name]
	if !ok {
		return profile{}, fmt.Errorf("profile %q not found", name)
	}
	return profile{
		API:     p.API,
		DB:      p.DB,
		Login:   p.Login,
		Assert:  p.Assert,
		BotFlag: p.BotFlag,
		Config:  p.Config,
	}, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
