package storage

// sqlite.go — persistencia de trades y resúmenes de ventana.
//
// Estrategia:
//   - `trades`: UNA fila por intento de orden, incluidos skips y errores.
//     El histórico completo es la fuente para auditar el comportamiento
//     del motor ventana a ventana.
//   - `windows`: una fila por ventana cerrada con el snapshot del ledger
//     en el rollover.
//   - Prune automático al arrancar: trades > 14d, ventanas > 60d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
-- Un intento de orden por fila, mutante o no
CREATE TABLE IF NOT EXISTS trades (
    id             TEXT PRIMARY KEY,
    outcome        TEXT    NOT NULL,
    side           TEXT    NOT NULL,
    requested_size REAL    NOT NULL DEFAULT 0,
    filled_size    REAL    NOT NULL DEFAULT 0,
    price          REAL    NOT NULL DEFAULT 0,
    avg_price      REAL    NOT NULL DEFAULT 0,
    status         TEXT    NOT NULL,
    mode           TEXT    NOT NULL,
    reason         TEXT,
    order_id       TEXT,
    is_hedge       INTEGER NOT NULL DEFAULT 0,
    hedge_of       TEXT,
    created_at     DATETIME NOT NULL
);

-- Snapshot del ledger al cierre de cada ventana
CREATE TABLE IF NOT EXISTS windows (
    slug           TEXT PRIMARY KEY,
    start_time     DATETIME NOT NULL,
    end_time       DATETIME NOT NULL,
    winner         TEXT     NOT NULL,
    up_shares      REAL     NOT NULL DEFAULT 0,
    up_avg_cost    REAL     NOT NULL DEFAULT 0,
    down_shares    REAL     NOT NULL DEFAULT 0,
    down_avg_cost  REAL     NOT NULL DEFAULT 0,
    spent          REAL     NOT NULL DEFAULT 0,
    received       REAL     NOT NULL DEFAULT 0,
    net_spent      REAL     NOT NULL DEFAULT 0,
    settlement_pnl REAL     NOT NULL DEFAULT 0,
    attempts       INTEGER  NOT NULL DEFAULT 0,
    fills          INTEGER  NOT NULL DEFAULT 0,
    no_fills       INTEGER  NOT NULL DEFAULT 0,
    errors         INTEGER  NOT NULL DEFAULT 0,
    skips          INTEGER  NOT NULL DEFAULT 0,
    closed_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_at     ON trades(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_windows_at    ON windows(closed_at DESC);
`

const (
	retentionTrades  = 14 * 24 * time.Hour // intentos: 14 días
	retentionWindows = 60 * 24 * time.Hour // ventanas: 60 días
)

// SQLiteStorage implementa ports.TradeStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveTrade inserta un intento de orden. Los IDs son UUIDs generados por
// el motor, así que el INSERT nunca colisiona en operación normal.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, rec domain.TradeRecord) error {
	isHedge := 0
	if rec.IsHedge {
		isHedge = 1
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, outcome, side, requested_size, filled_size, price, avg_price,
			 status, mode, reason, order_id, is_hedge, hedge_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		string(rec.Outcome),
		string(rec.Side),
		rec.RequestedSize,
		rec.FilledSize,
		rec.Price,
		rec.AvgPrice,
		string(rec.Status),
		string(rec.Mode),
		rec.Reason,
		rec.OrderID,
		isHedge,
		rec.HedgeOf,
		rec.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveTrade %s: %w", rec.ID, err)
	}
	return nil
}

// SaveWindowSummary hace upsert del snapshot de una ventana cerrada. El
// slug es único por ventana, así que un re-cierre solo sobreescribe.
func (s *SQLiteStorage) SaveWindowSummary(ctx context.Context, sum domain.WindowSummary) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO windows
			(slug, start_time, end_time, winner, up_shares, up_avg_cost,
			 down_shares, down_avg_cost, spent, received, net_spent,
			 settlement_pnl, attempts, fills, no_fills, errors, skips, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			winner         = excluded.winner,
			up_shares      = excluded.up_shares,
			up_avg_cost    = excluded.up_avg_cost,
			down_shares    = excluded.down_shares,
			down_avg_cost  = excluded.down_avg_cost,
			spent          = excluded.spent,
			received       = excluded.received,
			net_spent      = excluded.net_spent,
			settlement_pnl = excluded.settlement_pnl,
			attempts       = excluded.attempts,
			fills          = excluded.fills,
			no_fills       = excluded.no_fills,
			errors         = excluded.errors,
			skips          = excluded.skips,
			closed_at      = excluded.closed_at
	`,
		sum.Slug,
		sum.StartTime.UTC(),
		sum.EndTime.UTC(),
		string(sum.Winner),
		sum.UpShares,
		sum.UpAvgCost,
		sum.DownShares,
		sum.DownAvgCost,
		sum.Spent,
		sum.Received,
		sum.NetSpent,
		sum.SettlementPnL,
		sum.Attempts,
		sum.Fills,
		sum.NoFills,
		sum.Errors,
		sum.Skips,
		sum.ClosedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveWindowSummary %s: %w", sum.Slug, err)
	}
	return nil
}

// RecentTrades devuelve los últimos intentos, el más reciente primero.
func (s *SQLiteStorage) RecentTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outcome, side, requested_size, filled_size, price,
		       avg_price, status, mode, reason, order_id, is_hedge,
		       hedge_of, created_at
		FROM trades
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentTrades: query: %w", err)
	}
	defer rows.Close()

	var recs []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var outcome, side, status, mode string
		var isHedge int
		var createdAt time.Time

		if err := rows.Scan(
			&rec.ID,
			&outcome,
			&side,
			&rec.RequestedSize,
			&rec.FilledSize,
			&rec.Price,
			&rec.AvgPrice,
			&status,
			&mode,
			&rec.Reason,
			&rec.OrderID,
			&isHedge,
			&rec.HedgeOf,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage.RecentTrades: scan row: %w", err)
		}

		rec.Outcome = domain.Outcome(outcome)
		rec.Side = domain.Side(side)
		rec.Status = domain.TradeStatus(status)
		rec.Mode = domain.TradeMode(mode)
		rec.IsHedge = isHedge == 1
		rec.Timestamp = createdAt.UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoffTrades := time.Now().UTC().Add(-retentionTrades)
	cutoffWindows := time.Now().UTC().Add(-retentionWindows)
	s.db.ExecContext(ctx, `DELETE FROM trades WHERE created_at < ?`, cutoffTrades)
	s.db.ExecContext(ctx, `DELETE FROM windows WHERE closed_at < ?`, cutoffWindows)
}

var _ ports.TradeStorage = (*SQLiteStorage)(nil)
