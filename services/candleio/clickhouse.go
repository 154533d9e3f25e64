package candleio

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"backsim/services/engine"
)

// ClickHouseConfig is the connection and table configuration of the candle
// warehouse.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// ClickHouseLoader reads candles from a ClickHouse OHLCV table.
type ClickHouseLoader struct {
	conn  driver.Conn
	table string
	log   *zap.Logger
}

// NewClickHouseLoader opens the connection and pings it.
func NewClickHouseLoader(ctx context.Context, cfg ClickHouseConfig, logger *zap.Logger) (*ClickHouseLoader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "ohlcv"
	}
	return &ClickHouseLoader{conn: conn, table: table, log: logger}, nil
}

func (l *ClickHouseLoader) Close() error { return l.conn.Close() }

// Load reads the candles of one symbol and interval inside [from, to),
// ordered by open time. Timestamps are milliseconds since epoch.
func (l *ClickHouseLoader) Load(ctx context.Context, symbol, interval string, from, to int64) ([]engine.Candle, error) {
	query := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s
		WHERE symbol = ? AND interval = ?
		  AND open_time_ms >= ? AND open_time_ms < ?
		ORDER BY open_time_ms`, l.table)

	rows, err := l.conn.Query(ctx, query, symbol, interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []engine.Candle
	for rows.Next() {
		var (
			ts                           uint64
			open, high, low, cls, volume float64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &cls, &volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, engine.Candle{
			Timestamp: int64(ts),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    volume,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read candle rows: %w", err)
	}

	l.log.Info("candles loaded",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(candles)),
	)
	if len(candles) == 0 {
		return nil, &engine.DataError{Reason: fmt.Sprintf("no candles for %s %s in range", symbol, interval)}
	}
	return candles, nil
}
