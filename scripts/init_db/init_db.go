package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	withDevices := flag.Bool("sample-devices", false, "insert a few sample devices")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		getEnv("DB_USER", "fleet_user"),
		getEnv("DB_PASSWORD", "fleet_password"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "fleet_monitor"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	createExtensions(ctx, conn)
	createDevices(ctx, conn)
	createPositions(ctx, conn)
	createEvents(ctx, conn)
	createIndexes(ctx, conn)
	if *withDevices {
		insertSampleDevices(ctx, conn)
	}
	verify(ctx, conn)

	fmt.Println("\n✅ Database initialised")
	fmt.Println("   Run next: go run ./scripts/seed_redis")
}

func createExtensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Extensions ──────────────────────────────────")
	execOrFatal(ctx, conn, "CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;", "timescaledb extension")
}

func createDevices(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── devices ─────────────────────────────────────")

	// attributes carries per-device settings such as filter.skipAttributes
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS devices (
			id            BIGINT  PRIMARY KEY,
			unique_id     TEXT    NOT NULL UNIQUE,
			name          TEXT    NOT NULL DEFAULT '',
			phone         TEXT    NOT NULL DEFAULT '',
			plate_number  TEXT    NOT NULL DEFAULT '',
			attributes    JSONB   NOT NULL DEFAULT '{}'
		);
	`, "devices table created")
}

func createPositions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── positions ───────────────────────────────────")

	// Speed is in knots and course in degrees, as reported by the device.
	// Hypertable unique keys must include the partition column, so id is
	// indexed but not a primary key.
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS positions (
			id           TEXT             NOT NULL,
			device_id    BIGINT           NOT NULL,
			protocol     TEXT             NOT NULL DEFAULT '',
			server_time  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			device_time  TIMESTAMPTZ      NOT NULL,
			fix_time     TIMESTAMPTZ      NOT NULL,
			valid        BOOLEAN          NOT NULL DEFAULT false,
			latitude     DOUBLE PRECISION NOT NULL,
			longitude    DOUBLE PRECISION NOT NULL,
			altitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
			speed        DOUBLE PRECISION NOT NULL DEFAULT 0,
			course       DOUBLE PRECISION NOT NULL DEFAULT 0,
			accuracy     DOUBLE PRECISION NOT NULL DEFAULT 0,
			address      TEXT             NOT NULL DEFAULT '',
			network      TEXT             NOT NULL DEFAULT '',
			attributes   JSONB            NOT NULL DEFAULT '{}'
		);
	`, "positions table created")

	execOrFatal(ctx, conn, `
		SELECT create_hypertable('positions', 'fix_time', if_not_exists => TRUE);
	`, "positions converted to hypertable")
}

func createEvents(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── events ──────────────────────────────────────")

	// notifications_sent maps notificator type to true once delivered
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS events (
			id                  TEXT        PRIMARY KEY,
			type                TEXT        NOT NULL,
			device_id           BIGINT      NOT NULL,
			position_id         TEXT,
			server_time         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			attributes          JSONB       NOT NULL DEFAULT '{}',
			notifications_sent  JSONB       NOT NULL DEFAULT '{}'
		);
	`, "events table created")
}

func createIndexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Indexes ─────────────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		use  string
	}{
		{
			name: "idx_positions_device_fix",
			sql: `CREATE INDEX IF NOT EXISTS idx_positions_device_fix
				  ON positions (device_id, fix_time DESC);`,
			use: "cold-start seed: last fix per device",
		},
		{
			name: "idx_positions_id",
			sql: `CREATE INDEX IF NOT EXISTS idx_positions_id
				  ON positions (id);`,
			use: "event to position lookup",
		},
		{
			name: "idx_events_device_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_events_device_time
				  ON events (device_id, server_time DESC);`,
			use: "event history for one device",
		},
		{
			name: "idx_events_type_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_events_type_time
				  ON events (type, server_time DESC);`,
			use: "recent alarms and overspeeds",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql, fmt.Sprintf("%-28s ← %s", idx.name, idx.use))
	}
}

func insertSampleDevices(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Sample devices ──────────────────────────────")

	devices := []struct {
		id       int64
		uniqueID string
		name     string
		phone    string
		plate    string
		attrs    map[string]any
	}{
		{1, "358480081234567", "Truck 01", "+251911000001", "AA-3-12345", nil},
		{2, "358480081234568", "Truck 02", "+251911000002", "AA-3-12346", nil},
		{3, "358480081234569", "Tanker 07", "+251911000003", "OR-2-88410", map[string]any{"filter.skipAttributes": "alarm,ignition"}},
	}

	for _, d := range devices {
		attrs := d.attrs
		if attrs == nil {
			attrs = map[string]any{}
		}
		_, err := conn.Exec(ctx, `
			INSERT INTO devices (id, unique_id, name, phone, plate_number, attributes)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, d.id, d.uniqueID, d.name, d.phone, d.plate, attrs)
		if err != nil {
			log.Fatalf("Failed to insert device %d: %v", d.id, err)
		}
		fmt.Printf("  ✓ device %d %-10s %s\n", d.id, d.name, d.phone)
	}
}

func verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Verification ────────────────────────────────")

	for _, table := range []string{"devices", "positions", "events"} {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var hypertable string
	err := conn.QueryRow(ctx, `
		SELECT hypertable_name
		FROM timescaledb_information.hypertables
		WHERE hypertable_name = 'positions'
	`).Scan(&hypertable)
	if err != nil {
		log.Fatalf("positions is not a hypertable: %v", err)
	}
	fmt.Printf("  ✓ hypertable: %s\n", hypertable)
}

// execOrFatal runs a statement and prints the label, or exits on error.
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	if _, err := conn.Exec(ctx, sql); err != nil {
		log.Fatalf("FAILED: %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
