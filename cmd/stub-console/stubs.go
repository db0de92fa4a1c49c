package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/prasenjit/stub-console/internal/models"
	"github.com/prasenjit/stub-console/internal/openapi"
)

var stubsCmd = &cobra.Command{
	Use:     "stubs",
	Aliases: []string{"stub"},
	Short:   "Manage stubs on the mock server",
}

var (
	listPage    int
	listSize    int
	listKeyword string

	inputFile   string
	stubName    string
	stubDesc    string
	stubMethod  string
	stubURL     string
	stubMatch   string
	stubResp    string
	stubPrio    int
	stubEnabled bool

	assumeYes bool

	openapiBase   string
	openapiDryRun bool
)

var stubsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of stubs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.FetchPage(cmd.Context(), listPage, listSize, listKeyword); err != nil {
			return err
		}
		return showPage(cmd, a)
	},
}

var stubsSearchCmd = &cobra.Command{
	Use:   "search KEYWORD",
	Short: "Search stubs by name, url or description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Search(cmd.Context(), args[0]); err != nil {
			return err
		}
		return showPage(cmd, a)
	},
}

var stubsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one stub",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.store.GetByID(cmd.Context(), args[0])
		if st == nil {
			return fmt.Errorf("stub %s not found or unavailable (use -v for details)", args[0])
		}
		return showStub(cmd, st)
	},
}

var stubsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create stubs from flags or a JSON file",
	Long: `Creates a stub from flags, or from a JSON file given with --file.
The file holds either one stub or an array of stubs; an array is created
in a single bulk call.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if inputFile != "" {
			ins, err := readInputs(inputFile)
			if err != nil {
				return err
			}
			if len(ins) > 1 {
				created, err := a.store.CreateBulk(cmd.Context(), ins)
				if err != nil {
					return err
				}
				return showStubs(cmd, created)
			}
			created, err := a.store.Create(cmd.Context(), ins[0])
			if err != nil {
				return err
			}
			return showStub(cmd, created)
		}

		in := &models.StubInput{
			Name:               stubName,
			Description:        stubDesc,
			Method:             strings.ToUpper(stubMethod),
			URL:                stubURL,
			UrlMatchType:       models.UrlMatchType(strings.ToUpper(stubMatch)),
			ResponseDefinition: stubResp,
			Priority:           stubPrio,
			Enabled:            stubEnabled,
		}
		created, err := a.store.Create(cmd.Context(), in)
		if err != nil {
			return err
		}
		return showStub(cmd, created)
	},
}

var stubsUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Replace a stub from a JSON file or change individual fields",
	Long: `Replaces a stub. With --file the stub is replaced by the file content.
Otherwise the current stub is fetched and the given flags are applied to it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var in *models.StubInput
		if inputFile != "" {
			ins, err := readInputs(inputFile)
			if err != nil {
				return err
			}
			if len(ins) != 1 {
				return fmt.Errorf("%s holds %d stubs, update takes one", inputFile, len(ins))
			}
			in = ins[0]
		} else {
			current := a.store.GetByID(cmd.Context(), args[0])
			if current == nil {
				return fmt.Errorf("stub %s not found or unavailable (use -v for details)", args[0])
			}
			in = current.Input()
			applyFlags(cmd, in)
		}

		updated, err := a.store.Update(cmd.Context(), args[0], in)
		if err != nil {
			return err
		}
		return showStub(cmd, updated)
	},
}

var stubsDeleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Delete one or more stubs",
	Long: `Deletes stubs. Several ids are deleted one after another; every id is
attempted and failures are reported together at the end.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !assumeYes {
			ok, err := confirm(fmt.Sprintf("Delete %s?", describeIDs(args)))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
		}

		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			if err := a.store.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted stub %s\n", args[0])
			return nil
		}

		results, err := a.store.BatchDelete(cmd.Context(), args)
		if jsonOutput {
			if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
				return perr
			}
		} else {
			printBatch(cmd.OutOrStdout(), results)
		}
		return err
	},
}

var stubsToggleCmd = &cobra.Command{
	Use:   "toggle ID",
	Short: "Flip a stub's enabled flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.store.Toggle(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		state := "disabled"
		if st.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stub %s is now %s\n", st.ID, state)
		return nil
	},
}

var stubsEnableCmd = &cobra.Command{
	Use:   "enable ID...",
	Short: "Enable stubs; ids already enabled are skipped",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatchToggle(cmd, args, true)
	},
}

var stubsDisableCmd = &cobra.Command{
	Use:   "disable ID...",
	Short: "Disable stubs; ids already disabled are skipped",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatchToggle(cmd, args, false)
	},
}

var stubsReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the mock server to reload all stubs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.ReloadAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Stubs reloaded")
		return nil
	},
}

var stubsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stub counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.store.Statistics(cmd.Context())
		if st == nil {
			return errors.New("statistics unavailable (use -v for details)")
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		printStatistics(cmd.OutOrStdout(), st)
		return nil
	},
}

var stubsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a mock-server mapping document",
	Long: `Sends a mapping document ({"mappings": [...]}, an array of mappings or a
single mapping) to the admin API, which translates it into stubs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		if !gjson.ValidBytes(data) {
			return fmt.Errorf("%s is not valid JSON", args[0])
		}

		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		imported, err := a.store.ImportBulk(cmd.Context(), data)
		if err != nil {
			return err
		}
		return showStubs(cmd, imported)
	},
}

var stubsOpenAPICmd = &cobra.Command{
	Use:   "openapi FILE",
	Short: "Create one stub per operation of an OpenAPI 3 document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		ins, err := openapi.Convert(string(content), openapiBase)
		if err != nil {
			return err
		}
		if len(ins) == 0 {
			return fmt.Errorf("%s defines no operations", args[0])
		}

		if openapiDryRun {
			return printJSON(cmd.OutOrStdout(), ins)
		}

		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.store.CreateBulk(cmd.Context(), ins)
		if err != nil {
			return err
		}
		return showStubs(cmd, created)
	},
}

func init() {
	stubsListCmd.Flags().IntVar(&listPage, "page", 0, "page number, starting at 0")
	stubsListCmd.Flags().IntVar(&listSize, "size", 0, "page size (default: store.pageSize)")
	stubsListCmd.Flags().StringVarP(&listKeyword, "keyword", "k", "", "filter by keyword")

	for _, c := range []*cobra.Command{stubsCreateCmd, stubsUpdateCmd} {
		c.Flags().StringVarP(&inputFile, "file", "f", "", "JSON file with the stub definition")
		c.Flags().StringVar(&stubName, "name", "", "stub name")
		c.Flags().StringVar(&stubDesc, "description", "", "stub description")
		c.Flags().StringVar(&stubMethod, "method", "GET", "HTTP method, or ANY")
		c.Flags().StringVar(&stubURL, "url", "", "request url")
		c.Flags().StringVar(&stubMatch, "match", string(models.MatchEquals), "url match type: EQUALS, CONTAINS, REGEX or PATH_TEMPLATE")
		c.Flags().StringVar(&stubResp, "response", `{"status":200}`, "response definition JSON")
		c.Flags().IntVar(&stubPrio, "priority", 5, "priority, lower wins")
		c.Flags().BoolVar(&stubEnabled, "enabled", true, "whether the stub is active")
	}

	stubsDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	stubsOpenAPICmd.Flags().StringVar(&openapiBase, "base-path", "", "prefix for every generated url")
	stubsOpenAPICmd.Flags().BoolVar(&openapiDryRun, "dry-run", false, "print the generated stubs without creating them")

	stubsCmd.AddCommand(
		stubsListCmd,
		stubsSearchCmd,
		stubsGetCmd,
		stubsCreateCmd,
		stubsUpdateCmd,
		stubsDeleteCmd,
		stubsToggleCmd,
		stubsEnableCmd,
		stubsDisableCmd,
		stubsReloadCmd,
		stubsStatsCmd,
		stubsImportCmd,
		stubsOpenAPICmd,
	)
}

func runBatchToggle(cmd *cobra.Command, ids []string, enable bool) error {
	a, err := cliApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.store.BatchToggle(cmd.Context(), ids, enable)
	if jsonOutput {
		if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
			return perr
		}
	} else {
		printBatch(cmd.OutOrStdout(), results)
	}
	return err
}

// applyFlags copies explicitly set flags onto in
func applyFlags(cmd *cobra.Command, in *models.StubInput) {
	flags := cmd.Flags()
	if flags.Changed("name") {
		in.Name = stubName
	}
	if flags.Changed("description") {
		in.Description = stubDesc
	}
	if flags.Changed("method") {
		in.Method = strings.ToUpper(stubMethod)
	}
	if flags.Changed("url") {
		in.URL = stubURL
	}
	if flags.Changed("match") {
		in.UrlMatchType = models.UrlMatchType(strings.ToUpper(stubMatch))
	}
	if flags.Changed("response") {
		in.ResponseDefinition = stubResp
	}
	if flags.Changed("priority") {
		in.Priority = stubPrio
	}
	if flags.Changed("enabled") {
		in.Enabled = stubEnabled
	}
}

// readInputs reads one stub input or an array of them
func readInputs(path string) ([]*models.StubInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc := gjson.ParseBytes(data)

	switch {
	case doc.IsArray():
		var ins []*models.StubInput
		if err := json.Unmarshal(data, &ins); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if len(ins) == 0 {
			return nil, fmt.Errorf("%s holds no stubs", path)
		}
		return ins, nil
	case doc.IsObject():
		var in models.StubInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return []*models.StubInput{&in}, nil
	default:
		return nil, fmt.Errorf("%s must hold a JSON object or array", path)
	}
}

func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func describeIDs(ids []string) string {
	if len(ids) == 1 {
		return "stub " + ids[0]
	}
	return fmt.Sprintf("%d stubs (%s)", len(ids), strings.Join(ids, ", "))
}

func showPage(cmd *cobra.Command, a *app) error {
	snap := a.store.Snapshot()
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), snap)
	}
	printPage(cmd.OutOrStdout(), snap)
	return nil
}

func showStub(cmd *cobra.Command, st *models.Stub) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), st)
	}
	printStub(cmd.OutOrStdout(), st)
	return nil
}

func showStubs(cmd *cobra.Command, stubs []*models.Stub) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), stubs)
	}
	printStubs(cmd.OutOrStdout(), stubs)
	fmt.Fprintf(cmd.OutOrStdout(), "%d stubs\n", len(stubs))
	return nil
}
