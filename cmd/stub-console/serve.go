package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/stub-console/internal/adminapi/fakeadmin"
	"github.com/prasenjit/stub-console/internal/dashboard"
	"github.com/prasenjit/stub-console/internal/tlsutil"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Stub Console dashboard",
	Long: `Starts the web dashboard for the configured admin API.

The server will:
  - Expose the dashboard API at /_api/
  - Push store state over a websocket at /_api/events
  - Serve the dashboard UI at /_ui/ when --ui-dir or server.uiDir is set

With --demo an in-process mock admin API is started with sample stubs and
the dashboard is pointed at it, so no mock server is needed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	devMode      bool
	uiDirFlag    string
	portFlag     int
	tlsFlag      bool
	demoMode     bool
	demoDataFile string
)

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (serve UI from ./ui/dist)")
	serveCmd.Flags().StringVar(&uiDirFlag, "ui-dir", "", "Directory with built UI assets")
	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Override server port")
	serveCmd.Flags().BoolVar(&tlsFlag, "tls", false, "Enable TLS (overrides config)")
	serveCmd.Flags().BoolVar(&demoMode, "demo", false, "Run against an in-process mock admin API")
	serveCmd.Flags().StringVar(&demoDataFile, "demo-data", "", "Stub file to seed the demo admin API with")

	// Bind flags to viper
	viper.BindPFlag("server.tls.enabled", serveCmd.Flags().Lookup("tls"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override port if flag was explicitly set
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}
	if uiDirFlag != "" {
		cfg.Server.UIDir = uiDirFlag
	}

	var demoListener net.Listener
	if demoMode || demoDataFile != "" {
		demoListener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to create demo listener: %w", err)
		}
		cfg.Admin.BaseURL = "http://" + demoListener.Addr().String()
	}

	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		if demoListener != nil {
			demoListener.Close()
		}
		return err
	}
	defer a.Close()

	var demo *http.Server
	if demoListener != nil {
		demo, err = startDemoAdmin(demoListener, a.log)
		if err != nil {
			demoListener.Close()
			return err
		}
		defer demo.Close()
		a.log.Info().Str("adminUrl", cfg.Admin.BaseURL).Msg("Demo admin API started")
	}

	// Setup router
	router := dashboard.NewRouter(a.store, a.client, a.metrics, a.log)

	// Setup UI serving
	switch {
	case devMode:
		a.log.Info().Msg("Development mode: serving UI from ./ui/dist")
		router.ServeUIFromFS("./ui/dist")
	case cfg.Server.UIDir != "":
		router.ServeUIFromFS(cfg.Server.UIDir)
	}

	// First page, so the dashboard has something to show
	loadCtx, cancelLoad := context.WithTimeout(cmd.Context(), cfg.Admin.Timeout)
	if err := a.store.FetchPage(loadCtx, 0, cfg.Store.PageSize, ""); err != nil {
		a.log.Warn().Err(err).Str("adminUrl", cfg.Admin.BaseURL).Msg("Initial stub page could not be loaded")
	}
	cancelLoad()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheme := "http"
	if cfg.Server.TLS.Enabled {
		tlsConfig, err := tlsutil.ServerConfig(cfg.Server.TLS, a.log)
		if err != nil {
			return fmt.Errorf("failed to get TLS certificate: %w", err)
		}
		server.TLSConfig = tlsConfig
		scheme = "https"
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info().
			Str("addr", server.Addr).
			Str("adminUrl", cfg.Admin.BaseURL).
			Msgf("Dashboard API available at %s://%s/_api/", scheme, server.Addr)

		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case <-cmd.Context().Done():
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	a.log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("Server shutdown error")
	}
	if demo != nil {
		if err := demo.Shutdown(ctx); err != nil {
			a.log.Error().Err(err).Msg("Demo admin API shutdown error")
		}
	}

	a.log.Info().Msg("Server stopped")
	return nil
}

// startDemoAdmin serves a seeded fake admin API on listener
func startDemoAdmin(listener net.Listener, log zerolog.Logger) (*http.Server, error) {
	admin := fakeadmin.New(fakeadmin.WithLogger(log))
	if demoDataFile != "" {
		n, err := admin.LoadFile(demoDataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load demo data: %w", err)
		}
		log.Info().Int("stubs", n).Str("file", demoDataFile).Msg("Demo data loaded")
	} else {
		admin.SeedDemo()
	}

	server := &http.Server{
		Handler:     admin,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Demo admin API failed")
		}
	}()

	return server, nil
}
