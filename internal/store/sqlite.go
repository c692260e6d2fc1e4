package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dstolz/tradesim/internal/domain"
)

// Open opens (and creates if necessary) the SQLite database backing
// the durable stores. Use ":memory:" for a throwaway database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The stores serialize access through the actors owning them, and
	// sqlite handles at most one writer anyway.
	db.SetMaxOpenConns(1)
	return db, nil
}

const bookSchema = `
CREATE TABLE IF NOT EXISTS orderbook (
	order_id     TEXT PRIMARY KEY,
	strategy_id  TEXT NOT NULL,
	asset        TEXT NOT NULL,
	kind         TEXT NOT NULL,
	size         REAL NOT NULL,
	price_limit  REAL,
	stop_limit   REAL,
	valid_from   INTEGER NOT NULL,
	valid_until  INTEGER NOT NULL,
	priority     INTEGER NOT NULL,
	seq          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orderbook_window
	ON orderbook (strategy_id, asset, valid_from, valid_until);

CREATE TABLE IF NOT EXISTS orderbook_history (
	order_id        TEXT NOT NULL,
	strategy_id     TEXT NOT NULL,
	asset           TEXT NOT NULL,
	kind            TEXT NOT NULL,
	requested_size  REAL NOT NULL,
	price_limit     REAL,
	stop_limit      REAL,
	valid_from      INTEGER NOT NULL,
	valid_until     INTEGER NOT NULL,
	status          TEXT NOT NULL,
	filled_quantity REAL NOT NULL,
	filled_price    REAL NOT NULL,
	filled_fee      REAL NOT NULL,
	executed_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orderbook_history_order
	ON orderbook_history (strategy_id, valid_from, asset);
`

// SQLiteBookStore is a BookStore backed by SQLite, keyed by strategy
// id so the same database can carry several strategies.
type SQLiteBookStore struct {
	db         *sql.DB
	strategyID string
	seq        uint64
}

// NewSQLiteBookStore creates the orderbook tables if needed and
// returns a store scoped to the given strategy.
func NewSQLiteBookStore(db *sql.DB, strategyID string) (*SQLiteBookStore, error) {
	if _, err := db.Exec(bookSchema); err != nil {
		return nil, fmt.Errorf("create orderbook schema: %w", err)
	}

	s := &SQLiteBookStore{db: db, strategyID: strategyID}
	// Resume the insertion sequence after a restart.
	row := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM orderbook WHERE strategy_id = ?`, strategyID)
	if err := row.Scan(&s.seq); err != nil {
		return nil, fmt.Errorf("read orderbook seq: %w", err)
	}
	return s, nil
}

// Insert stores a pending order. The effective validUntil is resolved
// at insert time so range queries never see a zero expiry.
func (s *SQLiteBookStore) Insert(o domain.Order) error {
	s.seq++
	_, err := s.db.Exec(`
		INSERT INTO orderbook
			(order_id, strategy_id, asset, kind, size, price_limit, stop_limit, valid_from, valid_until, priority, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, s.strategyID, string(o.Asset), string(o.Kind), o.Size,
		nullable(o.Limit), nullable(o.StopLimit),
		o.ValidFrom.UnixNano(), o.EffectiveValidUntil().UnixNano(), o.Priority(), s.seq,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Remove deletes a pending order by id and returns it.
func (s *SQLiteBookStore) Remove(orderID string) (domain.Order, error) {
	row := s.db.QueryRow(selectOrders+`WHERE strategy_id = ? AND order_id = ?`, s.strategyID, orderID)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM orderbook WHERE strategy_id = ? AND order_id = ?`, s.strategyID, orderID); err != nil {
		return domain.Order{}, fmt.Errorf("delete order: %w", err)
	}
	return o, nil
}

// Pending returns all pending orders in deterministic order.
func (s *SQLiteBookStore) Pending() ([]domain.Order, error) {
	rows, err := s.db.Query(selectOrders+`
		WHERE strategy_id = ?
		ORDER BY asset, valid_from, priority, seq`, s.strategyID)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	return collectOrders(rows)
}

// Executable selects the orders in force at t whose limit or stop
// limit is satisfiable inside [low, high]: buys (size >= 0) need the
// limit at or above the low, sells need it at or below the high.
func (s *SQLiteBookStore) Executable(asset domain.Asset, t time.Time, low, high float64) ([]domain.Order, error) {
	rows, err := s.db.Query(selectOrders+`
		WHERE strategy_id = ?
		  AND asset = ?
		  AND ? BETWEEN valid_from AND valid_until
		  AND (
			(price_limit IS NULL AND stop_limit IS NULL)
			OR (size <  0 AND price_limit IS NOT NULL AND price_limit <= ?)
			OR (size >= 0 AND price_limit IS NOT NULL AND price_limit >= ?)
			OR (size <  0 AND stop_limit  IS NOT NULL AND stop_limit  <= ?)
			OR (size >= 0 AND stop_limit  IS NOT NULL AND stop_limit  >= ?)
		  )
		ORDER BY valid_from, priority, seq`,
		s.strategyID, string(asset), t.UnixNano(), high, low, high, low)
	if err != nil {
		return nil, fmt.Errorf("select executable: %w", err)
	}
	return collectOrders(rows)
}

// Evict removes and returns every pending order for asset whose
// validUntil lies strictly before t.
func (s *SQLiteBookStore) Evict(asset domain.Asset, t time.Time) ([]domain.Order, error) {
	rows, err := s.db.Query(selectOrders+`
		WHERE strategy_id = ? AND asset = ? AND valid_until < ?
		ORDER BY valid_from, priority, seq`,
		s.strategyID, string(asset), t.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("select expired: %w", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	if _, err := s.db.Exec(`
		DELETE FROM orderbook
		WHERE strategy_id = ? AND asset = ? AND valid_until < ?`,
		s.strategyID, string(asset), t.UnixNano()); err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}
	return orders, nil
}

// Archive appends a terminal order record.
func (s *SQLiteBookStore) Archive(rec ArchivedOrder) error {
	_, err := s.db.Exec(`
		INSERT INTO orderbook_history
			(order_id, strategy_id, asset, kind, requested_size, price_limit, stop_limit,
			 valid_from, valid_until, status, filled_quantity, filled_price, filled_fee, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID, s.strategyID, string(rec.Asset), string(rec.Kind), rec.RequestedSize,
		nullable(rec.Limit), nullable(rec.StopLimit),
		rec.ValidFrom.UnixNano(), rec.ValidUntil.UnixNano(), string(rec.Status),
		rec.FilledQuantity, rec.FilledPrice, rec.FilledFee, rec.ExecutedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("archive order: %w", err)
	}
	return nil
}

// Archived returns archived orders sorted by (validFrom, asset).
func (s *SQLiteBookStore) Archived(includeAll bool) ([]ArchivedOrder, error) {
	query := `
		SELECT order_id, strategy_id, asset, kind, requested_size, price_limit, stop_limit,
		       valid_from, valid_until, status, filled_quantity, filled_price, filled_fee, executed_at
		FROM orderbook_history
		WHERE strategy_id = ?`
	args := []any{s.strategyID}
	if !includeAll {
		query += ` AND status = ?`
		args = append(args, string(domain.OrderStatusExecuted))
	}
	query += ` ORDER BY valid_from, asset`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("select archived: %w", err)
	}
	defer rows.Close()

	var out []ArchivedOrder
	for rows.Next() {
		var rec ArchivedOrder
		var asset, kind, status string
		var limit, stopLimit sql.NullFloat64
		var validFrom, validUntil, executedAt int64
		if err := rows.Scan(&rec.OrderID, &rec.StrategyID, &asset, &kind, &rec.RequestedSize,
			&limit, &stopLimit, &validFrom, &validUntil, &status,
			&rec.FilledQuantity, &rec.FilledPrice, &rec.FilledFee, &executedAt); err != nil {
			return nil, fmt.Errorf("scan archived: %w", err)
		}
		rec.Asset = domain.Asset(asset)
		rec.Kind = domain.OrderKind(kind)
		rec.Status = domain.OrderStatus(status)
		rec.Limit = fromNullable(limit)
		rec.StopLimit = fromNullable(stopLimit)
		rec.ValidFrom = time.Unix(0, validFrom).UTC()
		rec.ValidUntil = time.Unix(0, validUntil).UTC()
		rec.ExecutedAt = time.Unix(0, executedAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close is a no-op: the shared database handle is owned by the caller.
func (s *SQLiteBookStore) Close() error { return nil }

const selectOrders = `
	SELECT order_id, asset, kind, size, price_limit, stop_limit, valid_from, valid_until
	FROM orderbook `

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var o domain.Order
	var asset, kind string
	var limit, stopLimit sql.NullFloat64
	var validFrom, validUntil int64
	if err := scan(&o.ID, &asset, &kind, &o.Size, &limit, &stopLimit, &validFrom, &validUntil); err != nil {
		return domain.Order{}, err
	}
	o.Asset = domain.Asset(asset)
	o.Kind = domain.OrderKind(kind)
	o.Limit = fromNullable(limit)
	o.StopLimit = fromNullable(stopLimit)
	o.ValidFrom = time.Unix(0, validFrom).UTC()
	o.ValidUntil = time.Unix(0, validUntil).UTC()
	return o, nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const positionSchema = `
CREATE TABLE IF NOT EXISTS position_history (
	strategy_id TEXT NOT NULL,
	asset       TEXT NOT NULL,
	time        INTEGER NOT NULL,
	quantity    REAL NOT NULL,
	cost_basis  REAL NOT NULL,
	value       REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_history_time
	ON position_history (strategy_id, time);

CREATE TABLE IF NOT EXISTS position_trades (
	strategy_id TEXT NOT NULL,
	asset       TEXT NOT NULL,
	time        INTEGER NOT NULL,
	quantity    REAL NOT NULL,
	price       REAL NOT NULL,
	fee         REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_trades_time
	ON position_trades (strategy_id, time);
`

// SQLitePositionStore is a PositionStore backed by SQLite.
type SQLitePositionStore struct {
	db         *sql.DB
	strategyID string
}

// NewSQLitePositionStore creates the position tables if needed and
// returns a store scoped to the given strategy.
func NewSQLitePositionStore(db *sql.DB, strategyID string) (*SQLitePositionStore, error) {
	if _, err := db.Exec(positionSchema); err != nil {
		return nil, fmt.Errorf("create position schema: %w", err)
	}
	return &SQLitePositionStore{db: db, strategyID: strategyID}, nil
}

// AppendHistory appends one valuation row.
func (s *SQLitePositionStore) AppendHistory(rec PositionRow) error {
	_, err := s.db.Exec(`
		INSERT INTO position_history (strategy_id, asset, time, quantity, cost_basis, value)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.strategyID, string(rec.Asset), rec.Time.UnixNano(), rec.Quantity, rec.CostBasis, rec.Value)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns valuation rows in append order up to asOf.
func (s *SQLitePositionStore) History(asOf time.Time) ([]PositionRow, error) {
	query := `
		SELECT strategy_id, asset, time, quantity, cost_basis, value
		FROM position_history
		WHERE strategy_id = ?`
	args := []any{s.strategyID}
	if !asOf.IsZero() {
		query += ` AND time <= ?`
		args = append(args, asOf.UnixNano())
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var out []PositionRow
	for rows.Next() {
		var rec PositionRow
		var asset string
		var ts int64
		if err := rows.Scan(&rec.StrategyID, &asset, &ts, &rec.Quantity, &rec.CostBasis, &rec.Value); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Asset = domain.Asset(asset)
		rec.Time = time.Unix(0, ts).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendTrade appends one applied fill.
func (s *SQLitePositionStore) AppendTrade(rec TradeRow) error {
	_, err := s.db.Exec(`
		INSERT INTO position_trades (strategy_id, asset, time, quantity, price, fee)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.strategyID, string(rec.Asset), rec.Time.UnixNano(), rec.Quantity, rec.Price, rec.Fee)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// Trades returns applied fills in time order up to asOf.
func (s *SQLitePositionStore) Trades(asOf time.Time) ([]TradeRow, error) {
	query := `
		SELECT strategy_id, asset, time, quantity, price, fee
		FROM position_trades
		WHERE strategy_id = ?`
	args := []any{s.strategyID}
	if !asOf.IsZero() {
		query += ` AND time <= ?`
		args = append(args, asOf.UnixNano())
	}
	query += ` ORDER BY time, rowid`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("select trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var rec TradeRow
		var asset string
		var ts int64
		if err := rows.Scan(&rec.StrategyID, &asset, &ts, &rec.Quantity, &rec.Price, &rec.Fee); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		rec.Asset = domain.Asset(asset)
		rec.Time = time.Unix(0, ts).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close is a no-op: the shared database handle is owned by the caller.
func (s *SQLitePositionStore) Close() error { return nil }

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func fromNullable(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
