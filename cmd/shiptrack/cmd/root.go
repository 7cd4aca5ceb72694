// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shiptrack/internal/carriers"
	"shiptrack/internal/cli"
	"shiptrack/internal/config"
	"shiptrack/internal/storage"
)

// Version information
const Version = "1.0.0"

// app carries what every command needs once flags are parsed
type app struct {
	v          *viper.Viper
	configFile string
	serverURL  string

	cfg    *config.Config
	logger *slog.Logger
	out    *cli.OutputFormatter

	stores  *storage.Stores
	tracker *carriers.Tracker
}

// Execute builds the command tree and runs it
func Execute(ctx context.Context) error {
	return fang.Execute(ctx, newRootCmd())
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "shiptrack [tracking-number...]",
		Short: "Track USPS and UPS packages from the terminal",
		Long: `shiptrack looks up USPS and UPS shipments straight from the carrier
websites. UPS numbers (1Z...) go to UPS, everything else to USPS.

Without arguments it tracks every saved number. When a carrier rejects the
stored session, a headless Chrome generates fresh cookies once per query.

CONFIGURATION:
    shiptrack.yaml in ., ./config or ~/.config/shiptrack, or --config.
    Every key can be set from the environment, e.g. SHIPTRACK_STORAGE_BACKEND,
    SHIPTRACK_HEADLESS_ENABLED, SHIPTRACK_OUTPUT_FORMAT. NO_COLOR is honored.`,
		Example: `  shiptrack 9400111899223817576451
  shiptrack add 1Z999AA10123456784
  shiptrack --format json
  shiptrack cookies import ups --browser chrome
  shiptrack serve`,
		Version:           Version,
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
		RunE:              a.runTrack,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is shiptrack.yaml in ., ./config or ~/.config/shiptrack)")
	flags.StringVarP(&a.serverURL, "server", "s", "", "use a running shiptrack server at this URL instead of tracking locally")
	flags.StringP("format", "f", "table", "Output format (table, json)")
	flags.BoolP("quiet", "q", false, "Quiet mode (minimal output)")
	flags.Bool("no-color", false, "Disable color output")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("data-dir", "", "Directory for saved packages and credentials")
	flags.String("storage", "file", "Storage backend (file, sqlite, redis)")
	flags.Bool("show-browser", false, "Show the browser window while generating cookies")

	for key, flag := range map[string]string{
		"output.format":         "format",
		"output.quiet":          "quiet",
		"output.no_color":       "no-color",
		"log.level":             "log-level",
		"data_dir":              "data-dir",
		"storage.backend":       "storage",
		"headless.show_browser": "show-browser",
	} {
		a.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		newTrackCmd(a),
		newAddCmd(a),
		newRemoveCmd(a),
		newListCmd(a),
		newCookiesCmd(a),
		newServeCmd(a),
	)

	return rootCmd
}

// load reads the configuration once flags are parsed
func (a *app) load(cmd *cobra.Command, args []string) error {
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
	}

	cfg, err := config.LoadWithViper(a.v)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	a.cfg = cfg

	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	a.out = cli.NewOutputFormatter(cfg.Output.Format, cfg.Output.Quiet, cfg.Output.NoColor)
	a.out.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
	return nil
}

// openStores opens the configured storage backend
func (a *app) openStores() error {
	if a.stores != nil {
		return nil
	}
	stores, err := storage.Open(storage.Options{
		Backend:     a.cfg.Storage.Backend,
		DataDir:     a.cfg.DataDir,
		SQLitePath:  a.cfg.Storage.SQLitePath,
		RedisAddr:   a.cfg.Storage.RedisAddr,
		RedisPrefix: a.cfg.Storage.RedisPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.stores = stores
	return nil
}

// openTracker builds the carrier drivers over the opened stores. hook runs
// around browser acquisitions and may be nil.
func (a *app) openTracker(hook carriers.AcquireHook) error {
	if a.tracker != nil {
		return nil
	}
	if err := a.openStores(); err != nil {
		return err
	}

	var acquirer carriers.Acquirer
	if a.cfg.Headless.Enabled {
		opts := carriers.DefaultHeadlessOptions()
		opts.Headless = !a.cfg.Headless.ShowBrowser
		opts.Timeout = a.cfg.Headless.Timeout
		opts.DisableImages = a.cfg.Headless.DisableImages
		opts.UserAgent = a.cfg.HTTP.UserAgent
		opts.DebugMode = a.cfg.LogLevel == "debug"
		acquirer = carriers.NewHeadlessAcquirer(opts, a.logger)
	}

	a.tracker = carriers.New(carriers.Options{
		Store:          a.stores.Credentials,
		Acquirer:       acquirer,
		HTTPClient:     &http.Client{Timeout: a.cfg.HTTP.Timeout},
		UserAgent:      a.cfg.HTTP.UserAgent,
		USPSBaseURL:    a.cfg.USPS.BaseURL,
		UPSBaseURL:     a.cfg.UPS.BaseURL,
		UPSAPIURL:      a.cfg.UPS.APIURL,
		StrictLocation: a.cfg.USPS.StrictLocation,
		ReadyTimeout:   a.cfg.Headless.ReadyTimeout,
		OnAcquire:      hook,
		Logger:         a.logger,
	})
	return nil
}

// client returns the remote API client when --server is set
func (a *app) client(ctx context.Context) (*cli.Client, error) {
	client := cli.NewClient(a.serverURL, a.cfg.HTTP.Timeout+a.cfg.Headless.Timeout)
	if err := client.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("server %s is not available: %w", a.serverURL, err)
	}
	return client, nil
}

// close releases the browser and storage handles
func (a *app) close() {
	if a.tracker != nil {
		if err := a.tracker.Close(); err != nil {
			a.logger.Warn("Failed to close browser", "error", err)
		}
		a.tracker = nil
	}
	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			a.logger.Warn("Failed to close storage", "error", err)
		}
		a.stores = nil
	}
}
