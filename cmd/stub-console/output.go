package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/prasenjit/stub-console/internal/models"
	"github.com/prasenjit/stub-console/internal/store"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPage prints the held page as a table with a paging footer
func printPage(w io.Writer, snap *store.Snapshot) {
	printStubs(w, snap.Stubs)

	if snap.Total == 0 {
		if snap.Keyword != "" {
			fmt.Fprintf(w, "No stubs match %q\n", snap.Keyword)
		} else {
			fmt.Fprintln(w, "No stubs")
		}
		return
	}

	footer := fmt.Sprintf("Page %d of %d (%d stubs)", snap.Page+1, snap.TotalPages, snap.Total)
	if snap.Keyword != "" {
		footer += fmt.Sprintf(", matching %q", snap.Keyword)
	}
	if snap.HasNext {
		footer += fmt.Sprintf(", next: --page %d", snap.Page+1)
	}
	fmt.Fprintln(w, footer)
}

func printStubs(w io.Writer, stubs []*models.Stub) {
	if len(stubs) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMETHOD\tURL\tMATCH\tPRIORITY\tSTATUS\tENABLED")
	for _, st := range stubs {
		status := "-"
		if code := st.ResponseStatus(); code != 0 {
			status = strconv.Itoa(code)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			st.ID, st.Name, st.Method, st.URL, st.UrlMatchType, st.Priority, status, yesNo(st.Enabled))
	}
	tw.Flush()
}

// printStub prints a single stub as a field list
func printStub(w io.Writer, st *models.Stub) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", st.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", st.Name)
	if st.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", st.Description)
	}
	fmt.Fprintf(tw, "Request:\t%s %s (%s)\n", st.Method, st.URL, st.UrlMatchType)
	if st.RequestHeadersPattern != "" {
		fmt.Fprintf(tw, "Headers:\t%s\n", st.RequestHeadersPattern)
	}
	if st.QueryParametersPattern != "" {
		fmt.Fprintf(tw, "Query:\t%s\n", st.QueryParametersPattern)
	}
	if st.RequestBodyPattern != "" {
		fmt.Fprintf(tw, "Body:\t%s\n", st.RequestBodyPattern)
	}
	fmt.Fprintf(tw, "Response:\t%s\n", st.ResponseDefinition)
	fmt.Fprintf(tw, "Priority:\t%d\n", st.Priority)
	fmt.Fprintf(tw, "Enabled:\t%s\n", yesNo(st.Enabled))
	if !st.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "Created:\t%s\n", st.CreatedAt.Format(time.RFC3339))
	}
	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "Updated:\t%s\n", st.UpdatedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func printBatch(w io.Writer, results []store.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOUTCOME\tERROR")
	for _, r := range results {
		msg := ""
		if r.Error != nil {
			msg = fmt.Sprintf("[%s] %s", r.Error.Kind, r.Error.Message)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Outcome, msg)
	}
	tw.Flush()
}

func printRequests(w io.Writer, requests []*models.LoggedRequest) {
	if len(requests) == 0 {
		fmt.Fprintln(w, "No requests logged")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMETHOD\tURL\tSTATUS\tMATCHED")
	for _, r := range requests {
		ts := "-"
		if at := r.Request.LoggedAt(); !at.IsZero() {
			ts = at.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			ts, r.Request.Method, r.Request.URL, r.ResponseDefinition.Status, yesNo(r.WasMatched))
	}
	tw.Flush()
}

func printStatistics(w io.Writer, st *models.Statistics) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total:\t%d\n", st.TotalStubs)
	fmt.Fprintf(tw, "Enabled:\t%d\n", st.EnabledStubs)
	fmt.Fprintf(tw, "Disabled:\t%d\n", st.DisabledStubs)
	tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
