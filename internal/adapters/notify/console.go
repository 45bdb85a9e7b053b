package notify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// Console implementa ports.Notifier escribiendo a stdout.
type Console struct {
	out     io.Writer
	verbose bool
}

// NewConsole crea el notificador estándar.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// TradeRecorded imprime una línea compacta por intento. En modo no
// verbose solo se imprimen los intentos que mutan posición.
func (c *Console) TradeRecorded(rec domain.TradeRecord) {
	if !c.verbose && !rec.Status.Mutates() {
		return
	}

	ts := rec.Timestamp.Format("15:04:05")
	tag := string(rec.Status)
	if rec.IsHedge {
		tag += "+hedge"
	}

	switch rec.Status {
	case domain.StatusFilled, domain.StatusPartial, domain.StatusSim:
		fmt.Fprintf(c.out, "[%s] %s %s %.1f/%.1f @ %.3f avg %.3f (%s)\n",
			ts, rec.Side, rec.Outcome, rec.FilledSize, rec.RequestedSize,
			rec.Price, rec.AvgPrice, tag)
	default:
		fmt.Fprintf(c.out, "[%s] %s %s %.1f @ %.3f (%s) %s\n",
			ts, rec.Side, rec.Outcome, rec.RequestedSize, rec.Price, tag, rec.Reason)
	}
}

// WindowClosed imprime la tabla de cierre de ventana con el snapshot del
// ledger y el PnL proyectado a settlement.
func (c *Console) WindowClosed(sum domain.WindowSummary) {
	fmt.Fprintf(c.out, "\n[%s] window %s closed — winner %s\n",
		sum.ClosedAt.Format("15:04:05"), sum.Slug, sum.Winner)

	table := tablewriter.NewWriter(c.out)
	table.Header("Side", "Shares", "AvgCost", "Notional")
	table.Append("UP",
		fmt.Sprintf("%.2f", sum.UpShares),
		fmt.Sprintf("%.4f", sum.UpAvgCost),
		fmt.Sprintf("$%.2f", sum.UpShares*sum.UpAvgCost),
	)
	table.Append("DOWN",
		fmt.Sprintf("%.2f", sum.DownShares),
		fmt.Sprintf("%.4f", sum.DownAvgCost),
		fmt.Sprintf("$%.2f", sum.DownShares*sum.DownAvgCost),
	)
	table.Render()

	fmt.Fprintf(c.out, "  spent $%.2f | received $%.2f | net $%.2f | settlement PnL $%.2f\n",
		sum.Spent, sum.Received, sum.NetSpent, sum.SettlementPnL)
	fmt.Fprintf(c.out, "  attempts %d | fills %d | no-fills %d | errors %d | skips %d\n",
		sum.Attempts, sum.Fills, sum.NoFills, sum.Errors, sum.Skips)
	fmt.Fprintf(c.out, "  window %s → %s (%.0f min)\n\n",
		sum.StartTime.Format("15:04"), sum.EndTime.Format("15:04"),
		sum.EndTime.Sub(sum.StartTime).Minutes())
}

// PrintRecent imprime los últimos intentos en tabla, el más reciente al
// final. Útil al arrancar para ver el histórico persistido.
func (c *Console) PrintRecent(recs []domain.TradeRecord) {
	if len(recs) == 0 {
		fmt.Fprintf(c.out, "[%s] no trade history\n", time.Now().Format("15:04:05"))
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Side", "Outcome", "Req", "Filled", "Price", "Status")
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		table.Append(
			rec.Timestamp.Format("15:04:05"),
			string(rec.Side),
			string(rec.Outcome),
			fmt.Sprintf("%.1f", rec.RequestedSize),
			fmt.Sprintf("%.1f", rec.FilledSize),
			fmt.Sprintf("%.3f", rec.Price),
			string(rec.Status),
		)
	}
	table.Render()
}

var _ ports.Notifier = (*Console)(nil)
