// Package cli renders command output for the shopassist binary.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperjump/shopassist/internal/importer"
	"github.com/hyperjump/shopassist/internal/models"
	"github.com/hyperjump/shopassist/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (use text or json)", s)
}

// WritePlaces writes nearby search results to w.
func WritePlaces(w io.Writer, results []*models.PlaceResult, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []*models.PlaceResult{}
		}
		return writeJSON(w, results)
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No places found.")
		return err
	}
	fmt.Fprintf(w, "\nFound %d places\n\n", len(results))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDISTANCE\tNAME\tADDRESS")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%.2f km\t%s\t%s\n", r.PlaceID, r.DistanceKm, utils.Truncate(r.Name, 40), utils.Truncate(r.Address, 60))
	}
	return tw.Flush()
}

// WriteImportResults writes a per-file import summary to w.
func WriteImportResults(w io.Writer, results []importer.Result, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []importer.Result{}
		}
		return writeJSON(w, results)
	}
	var created, updated, skipped int
	for _, r := range results {
		fmt.Fprintf(w, "%s: %d created, %d updated, %d skipped\n", r.File, r.Created, r.Updated, r.Skipped)
		created += r.Created
		updated += r.Updated
		skipped += r.Skipped
	}
	_, err := fmt.Fprintf(w, "Imported %d files: %d created, %d updated, %d skipped\n", len(results), created, updated, skipped)
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
