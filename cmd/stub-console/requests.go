package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/prasenjit/stub-console/internal/apierr"
)

var requestsLimit int

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Show requests recently received by the mock server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		requests, err := a.client.ListRequests(cmd.Context(), requestsLimit)
		if err != nil {
			return apierr.NewNormalizer(a.log).Normalize(err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), requests)
		}
		printRequests(cmd.OutOrStdout(), requests)
		return nil
	},
}

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Show the mappings the mock server compiled from enabled stubs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cliApp()
		if err != nil {
			return err
		}
		defer a.Close()

		mappings, err := a.client.ListMappings(cmd.Context())
		if err != nil {
			return apierr.NewNormalizer(a.log).Normalize(err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), mappings)
		}

		for _, m := range mappings {
			request := gjson.GetBytes(m, "request")
			url := firstOf(request, "url", "urlPath", "urlPathTemplate", "urlPattern", "urlPathPattern")
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %d\n",
				request.Get("method").String(), url, gjson.GetBytes(m, "response.status").Int())

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, m, "  ", "  "); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", pretty.String())
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d mappings\n", len(mappings))
		return nil
	},
}

func init() {
	requestsCmd.Flags().IntVarP(&requestsLimit, "limit", "n", 20, "number of requests to show")
}

func firstOf(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r.String()
		}
	}
	return ""
}
