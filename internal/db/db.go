package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NagaPranathiRallabandi/marg-ai/internal/traffic"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open opens the signal store with the given database/sql driver ("pgx" or "sqlite").
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// a single connection keeps ":memory:" databases coherent
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchSignals reads the whole traffic signal inventory. Status values other
// than GREEN are read as RED.
func FetchSignals(ctx context.Context, db *sql.DB) ([]traffic.TrafficSignal, error) {
	q := `SELECT id, name, latitude, longitude, COALESCE(status, 'RED') FROM traffic_signals ORDER BY id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query traffic_signals: %w", err)
	}
	defer rows.Close()

	var signals []traffic.TrafficSignal
	for rows.Next() {
		var s traffic.TrafficSignal
		var status string
		if err := rows.Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &status); err != nil {
			return nil, fmt.Errorf("scan traffic_signals: %w", err)
		}
		s.Status = traffic.ParseStatus(status)
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// LoadRegistry opens the store, reads the inventory and closes the store again.
// The inventory is static for the life of the process.
func LoadRegistry(ctx context.Context, driver, dsn string) (*traffic.Registry, error) {
	conn, err := Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	defer conn.Close()
	if err := Ping(ctx, conn); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	signals, err := FetchSignals(ctx, conn)
	if err != nil {
		return nil, err
	}
	return traffic.NewRegistry(signals), nil
}
