package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/stub-console/internal/adminapi"
	"github.com/prasenjit/stub-console/internal/apierr"
	"github.com/prasenjit/stub-console/internal/config"
	"github.com/prasenjit/stub-console/internal/logging"
	"github.com/prasenjit/stub-console/internal/stats"
	"github.com/prasenjit/stub-console/internal/store"
)

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "stub-console",
		Short: "Stub Console - manage request stubs on a mock server",
		Long: `Stub Console manages the request stubs of a WireMock-style mock server
through its admin API.

Stubs can be listed, searched, created, edited, toggled and deleted one at
a time or in batches, from the terminal or from the web dashboard started
with "stub-console serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("admin-url", "", "admin API base URL (overrides config)")
	rootCmd.PersistentFlags().String("api-key", "", "admin API key")
	rootCmd.PersistentFlags().Int("page-size", 0, "stubs per page")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	viper.BindPFlag("admin.baseUrl", rootCmd.PersistentFlags().Lookup("admin-url"))
	viper.BindPFlag("admin.apiKey", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("store.pageSize", rootCmd.PersistentFlags().Lookup("page-size"))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(stubsCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(mappingsCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// STUBCONSOLE_ADMIN_BASEURL overrides admin.baseUrl
	viper.SetEnvPrefix("STUBCONSOLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults sets the default configuration values
func setDefaults() {
	d := config.Default()

	// Admin API defaults
	viper.SetDefault("admin.baseUrl", d.Admin.BaseURL)
	viper.SetDefault("admin.apiKey", "")
	viper.SetDefault("admin.bearerToken", "")
	viper.SetDefault("admin.timeout", d.Admin.Timeout.String())

	// Server defaults
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.uiDir", "")
	viper.SetDefault("server.tls.enabled", false)
	viper.SetDefault("server.tls.certFile", "")
	viper.SetDefault("server.tls.keyFile", "")
	viper.SetDefault("server.tls.autoGenerate", true)
	viper.SetDefault("server.tls.storePath", d.Server.TLS.StorePath)

	viper.SetDefault("store.pageSize", d.Store.PageSize)

	// Logging defaults
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.maxSizeMB", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
	viper.SetDefault("logging.maxAgeDays", d.Logging.MaxAgeDays)
	viper.SetDefault("logging.compress", false)
}

// loadConfig resolves the configuration. Zero-valued flags do not
// override the file.
func loadConfig() (*config.Config, error) {
	if viper.GetInt("store.pageSize") == 0 {
		viper.Set("store.pageSize", config.Default().Store.PageSize)
	}
	if viper.GetString("admin.baseUrl") == "" {
		viper.Set("admin.baseUrl", config.Default().Admin.BaseURL)
	}
	return config.FromViper(viper.GetViper())
}

// app is one configured session against the admin API
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	logs    io.Closer
	client  *adminapi.Client
	metrics *stats.Collector
	store   *store.Store
}

// newApp builds the adapter, store and logger from cfg. console receives
// log output; nil keeps logs out of the terminal.
func newApp(cfg *config.Config, console io.Writer) (*app, error) {
	log, closer, err := logging.New(cfg.Logging, console)
	if err != nil {
		return nil, err
	}

	metrics := stats.NewCollector()
	opts := []adminapi.Option{
		adminapi.WithTimeout(cfg.Admin.Timeout),
		adminapi.WithObserver(metrics),
	}
	if cfg.Admin.APIKey != "" {
		opts = append(opts, adminapi.WithAPIKey(cfg.Admin.APIKey))
	}
	if cfg.Admin.BearerToken != "" {
		opts = append(opts, adminapi.WithBearerToken(cfg.Admin.BearerToken))
	}
	client := adminapi.New(cfg.Admin.BaseURL, opts...)

	st := store.New(client,
		store.WithPageSize(cfg.Store.PageSize),
		store.WithLogger(log),
	)

	return &app{
		cfg:     cfg,
		log:     log,
		logs:    closer,
		client:  client,
		metrics: metrics,
		store:   st,
	}, nil
}

// cliApp builds the session used by one-shot commands
func cliApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	var console io.Writer
	if verbose {
		console = os.Stderr
	}
	return newApp(cfg, console)
}

func (a *app) Close() {
	a.store.Close()
	a.logs.Close()
}

// printError writes a failure the way the console reports it
func printError(w io.Writer, err error) {
	var rec *apierr.Record
	if !errors.As(err, &rec) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", rec.Kind, rec.Message)

	var batchErr *store.BatchError
	if errors.As(err, &batchErr) {
		for _, r := range batchErr.Results {
			if r.Outcome == store.OutcomeFailed && r.Error != nil {
				fmt.Fprintf(w, "  %s: [%s] %s\n", r.ID, r.Error.Kind, r.Error.Message)
			}
		}
	}

	if rec.Retryable() {
		fmt.Fprintln(w, "This failure may be temporary, retry the command.")
	}
}
