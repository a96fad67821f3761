package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
)

func NewTotalsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "totals <fixture.yml>",
		Short: "Compute subtotal, tax breakdown and total of a document fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTotals(rootOpts, args[0], cmd)
		},
	}
}

func runTotals(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := &outputFormatter{format: opts.Format, w: cmd.OutOrStdout(), errWriter: cmd.ErrOrStderr(), verbose: opts.Verbose}

	doc, err := loadFixture(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid fixture", err)
	}
	out.verboseLog("loaded %d line(s) from %s", len(doc.Lines), path)

	totals := doc.Totals()
	return out.emit("ok", totals, func(w io.Writer) {
		writeTotals(w, totals)
	})
}

func writeTotals(w io.Writer, totals taxdomain.Totals) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Subtotal\t%s\n", totals.Subtotal.StringFixed(taxdomain.MinorUnitPlaces))
	for _, entry := range totals.Breakdown {
		fmt.Fprintf(tw, "Tax %s on %s\t%s\n",
			entry.Rate,
			entry.TaxableAmount.StringFixed(taxdomain.MinorUnitPlaces),
			entry.TaxAmount.StringFixed(taxdomain.MinorUnitPlaces),
		)
	}
	fmt.Fprintf(tw, "Total\t%s\n", totals.Total.StringFixed(taxdomain.MinorUnitPlaces))
	_ = tw.Flush()
}
