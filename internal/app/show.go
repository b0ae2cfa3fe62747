package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"bist-tracker/internal/dashboard"
)

// Show prints the ticker list and the trailing rows of the selected ticker.
func (a *App) Show(ctx context.Context, w io.Writer, opts ShowOptions) error {
	presenter := a.newPresenter()

	var sel dashboard.Selection
	if opts.Ticker != "" {
		if err := presenter.Select(ctx, &sel, opts.Ticker); err != nil {
			return err
		}
	}

	page, err := presenter.Build(ctx, &sel, a.Config.ResolveTableRows(opts.Rows))
	if err != nil {
		return err
	}
	for _, n := range page.Notices {
		fmt.Fprintln(w, n.Message)
	}
	if page.Blocked() || len(page.Summaries) == 0 {
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "\tTicker\tLast\tChange")
	for _, s := range page.Summaries {
		marker := ""
		if page.IsSelected(s.Ticker) {
			marker = ">"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", marker, s.Ticker, s.PriceText(), s.ChangeText())
	}
	writer.Flush()

	rows := page.Table()
	if len(rows) == 0 {
		return nil
	}

	fmt.Fprintf(w, "\n%s (last %d of %d rows)\n", page.Detail.Ticker, len(rows), len(page.Detail.Records))
	writer = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(writer, "Date\tOpen\tHigh\tLow\tClose\tVolume\t")
	for _, r := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%d\t\n",
			r.Date,
			r.Open.StringFixed(2),
			r.High.StringFixed(2),
			r.Low.StringFixed(2),
			r.Close.StringFixed(2),
			r.Volume,
		)
	}
	return writer.Flush()
}
