package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/wallet-search-cli/internal/sheet"
	"github.com/sells-group/wallet-search-cli/pkg/gsheets"
)

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "Create missing result columns and print each worksheet's layout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		if f.Changed("worksheet") {
			names, _ := f.GetStringSlice("worksheet")
			cfg.Sheet.Worksheets = joinNames(names)
		}
		if f.Changed("xlsx") {
			cfg.Sheet.XLSXPath, _ = f.GetString("xlsx")
		}
		if err := cfg.Validate("columns"); err != nil {
			return err
		}

		worksheets, err := openWorksheets(cfg.Worksheets())
		if err != nil {
			return err
		}

		layouts := make([]namedLayout, 0, len(worksheets))
		for _, ws := range worksheets {
			l, err := sheet.Bootstrap(cmd.Context(), ws)
			if err != nil {
				return err
			}
			layouts = append(layouts, namedLayout{Worksheet: ws.Title(), Layout: l})
		}
		formatLayouts(cmd.OutOrStdout(), layouts)
		return nil
	},
}

func init() {
	columnsCmd.Flags().StringSlice("worksheet", nil, "worksheet(s) to prepare (overrides config)")
	columnsCmd.Flags().String("xlsx", "", "use a local .xlsx workbook instead of Google Sheets")
	rootCmd.AddCommand(columnsCmd)
}

type namedLayout struct {
	Worksheet string
	Layout    sheet.Layout
}

// formatLayouts writes the column letter of each role per worksheet.
func formatLayouts(out io.Writer, layouts []namedLayout) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WORKSHEET\tWALLET\tPOST_EXISTS\tHANDLE\tCONFIDENCE\tSCRIPT_RUN")
	for _, nl := range layouts {
		l := nl.Layout
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			nl.Worksheet,
			columnName(l.Wallet),
			columnName(l.PostExists),
			columnName(l.Handle),
			columnName(l.Confidence),
			columnName(l.ScriptRun),
		)
	}
	_ = w.Flush()
}

func columnName(col int) string {
	if col <= 0 {
		return "-"
	}
	return gsheets.ColumnLetter(col)
}
