package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"strings"

	"go-agreements/internal/config"

	_ "github.com/lib/pq"
)

// hash columns must hold a 0x-prefixed 32 byte hex string
var hashColumns = []struct {
	table  string
	column string
}{
	{"event_logs", "tx_hash"},
	{"event_logs", "agreement_id"},
}

func main() {
	configPath := flag.String("config", "", "config.yaml path (default config.yaml)")
	fix := flag.Bool("fix", false, "widen hash columns that are too small")
	flag.Parse()

	fmt.Println("🔍 Verifying database connection and schema...")
	fmt.Println(strings.Repeat("=", 60))

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if config.AppConfig.Database.DSN == "" {
		log.Fatalf("database.dsn (or DATABASE_DSN) is not set")
	}

	sqlDB, err := sql.Open("postgres", config.AppConfig.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	for _, table := range []string{"state_entries", "event_logs"} {
		var exists bool
		err := sqlDB.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			log.Fatalf("Failed to check table %s: %v", table, err)
		}
		if !exists {
			fmt.Printf("❌ Table %s does not exist (start the server once to migrate)\n", table)
			continue
		}
		var rows int64
		if err := sqlDB.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&rows); err != nil {
			log.Fatalf("Failed to count %s: %v", table, err)
		}
		fmt.Printf("✅ Table %s: %d rows\n", table, rows)
	}

	for _, col := range hashColumns {
		var size sql.NullInt64
		err := sqlDB.QueryRow(`
			SELECT character_maximum_length
			FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		`, col.table, col.column).Scan(&size)
		if err == sql.ErrNoRows || (err == nil && !size.Valid) {
			fmt.Printf("⚠️ %s.%s column does not exist\n", col.table, col.column)
			continue
		}
		if err != nil {
			log.Fatalf("Failed to query column size: %v", err)
		}

		fmt.Printf("📋 %s.%s column size: VARCHAR(%d)\n", col.table, col.column, size.Int64)
		if size.Int64 >= 66 {
			fmt.Printf("✅ Column size is correct: VARCHAR(%d)\n", size.Int64)
			continue
		}
		fmt.Printf("❌ Column size is too small! Need VARCHAR(66), but got VARCHAR(%d)\n", size.Int64)
		if !*fix {
			fmt.Println("   rerun with -fix to widen it")
			continue
		}
		if _, err := sqlDB.Exec(fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE VARCHAR(66)`, col.table, col.column)); err != nil {
			log.Fatalf("Failed to fix column size: %v", err)
		}
		fmt.Println("✅ Column size fixed to VARCHAR(66)")
	}

	var seq sql.NullInt64
	if err := sqlDB.QueryRow(`SELECT MAX(sequence) FROM event_logs`).Scan(&seq); err == nil && seq.Valid {
		fmt.Printf("📋 Latest recorded transaction sequence: %d\n", seq.Int64)
	}
}
