package ports

import "github.com/alejandrodnm/updownbot/internal/domain"

// Notifier surfaces engine activity to the operator.
type Notifier interface {
	// TradeRecorded is called for every attempt, fills and failures alike.
	TradeRecorded(rec domain.TradeRecord)

	// WindowClosed is called once per rollover with the final snapshot.
	WindowClosed(sum domain.WindowSummary)
}
