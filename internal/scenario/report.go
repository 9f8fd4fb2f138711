package scenario

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Report writes the scenario totals as an aligned table. With monthly set
// the per-month rows are written first, separated by a blank line.
func Report(w io.Writer, r *Result, monthly bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	if monthly {
		fmt.Fprintln(tw, "month\tscenario\tusage\tfeed_in\tbill_total\t")
		for _, m := range r.MonthlyBills() {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t\n", m.Month, m.Scenario, m.Usage, m.FeedIn, m.BillTotal)
		}
		fmt.Fprintln(tw)
	}

	fmt.Fprintln(tw, "scenario\tbill_total\t")
	for _, t := range r.TotalBills() {
		fmt.Fprintf(tw, "%s\t%.2f\t\n", t.Scenario, t.BillTotal)
	}
	return tw.Flush()
}
