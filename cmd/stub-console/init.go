package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/prasenjit/stub-console/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml",
	Long: `Creates config.yaml with default settings.

Point admin.baseUrl at the mock server's admin API and set admin.apiKey or
admin.bearerToken if it requires authentication.

If config.yaml already exists, it will not be overwritten unless --force is used.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initForce    bool
	initPath     string
	initAdminURL string
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing config file")
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "Directory to write config.yaml into")
	initCmd.Flags().StringVar(&initAdminURL, "admin", "", "Admin API base URL to write")
}

func runInit(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(initPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	configFile := filepath.Join(absPath, "config.yaml")

	if _, err := os.Stat(configFile); err == nil && !initForce {
		return fmt.Errorf("config.yaml already exists. Use --force to overwrite")
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", absPath, err)
	}

	cfg := config.Default()
	if initAdminURL != "" {
		cfg.Admin.BaseURL = initAdminURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	header := `# Stub Console configuration
# Every key can be overridden with STUBCONSOLE_<SECTION>_<KEY>,
# e.g. STUBCONSOLE_ADMIN_BASEURL.

`
	if err := os.WriteFile(configFile, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file: %s\n", configFile)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Initialization complete! Try:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  cd %s\n", absPath)
	fmt.Fprintln(out, "  stub-console stubs list")
	fmt.Fprintln(out, "  stub-console serve")
	fmt.Fprintln(out)

	return nil
}
