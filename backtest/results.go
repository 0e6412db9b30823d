package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/sim"
)

// Result is a lightweight summary of a run.
type Result struct {
	Account       sim.Account
	Frames        int
	Updates       int
	OpenPositions int
	ClosedAtEnd   int

	Start time.Time
	End   time.Time

	Summary journal.Summary
}

func PrintResult(w io.Writer, startBalance float64, r Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Simulation Result")
	fmt.Fprintln(w, "==================================================")

	if !r.Start.IsZero() {
		fmt.Fprintf(w, "Start:          %s\n", r.Start.Format(time.RFC3339))
		fmt.Fprintf(w, "End:            %s\n", r.End.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Frames:         %d\n", r.Frames)
	fmt.Fprintf(w, "Updates:        %d\n", r.Updates)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Margin Balance: %.2f USDT\n", r.Account.MarginBalance)
	fmt.Fprintf(w, "Total Balance:  %.2f USDT\n", r.Account.TotalBalance)
	fmt.Fprintf(w, "Unrealized PnL: %+.2f USDT\n", r.Account.UnrealizedPnL)
	fmt.Fprintf(w, "Margin Ratio:   %.4f%%\n", r.Account.MarginRatio)
	fmt.Fprintf(w, "Profit/Loss:    %+.2f USDT\n", r.Account.TotalBalance-startBalance)
	fmt.Fprintf(w, "Open Positions: %d\n", r.OpenPositions)
	if r.ClosedAtEnd > 0 {
		fmt.Fprintf(w, "Closed at End:  %d\n", r.ClosedAtEnd)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprint(w, r.Summary.String())
	fmt.Fprintln(w, "==================================================")
}
