package db

import (
	"database/sql"
	"log"
)

// DataMigration represents a data migration
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) error
}

// GetDataMigrations return all data migrations
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Backfill event_logs.agreement_id from event data",
			Up:          backfillAgreementIDs,
		},
	}
}

// backfillAgreementIDs fills agreement_id for rows written before the column
// was indexed.
func backfillAgreementIDs(db *sql.DB) error {
	log.Println("🔄 Backfilling event_logs.agreement_id...")
	result, err := db.Exec(`
		UPDATE event_logs
		SET agreement_id = data::json->>'agreementId'
		WHERE (agreement_id IS NULL OR agreement_id = '')
		  AND data LIKE '%"agreementId"%'
	`)
	if err != nil {
		log.Printf("❌ Failed to backfill event_logs: %v", err)
		return err
	}
	rows, _ := result.RowsAffected()
	log.Printf("✅ Backfilled %d event_logs rows", rows)
	return nil
}

// RunDataMigrations applies each data migration once.
func RunDataMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations_log (
			id SERIAL PRIMARY KEY,
			version VARCHAR(50) NOT NULL UNIQUE,
			description TEXT,
			executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			status VARCHAR(20) DEFAULT 'completed'
		)
	`); err != nil {
		return err
	}

	for _, migration := range GetDataMigrations() {
		var count int
		if err := db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations_log WHERE version = $1",
			migration.Version,
		).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			log.Printf("📋 Data migration %s already applied", migration.Version)
			continue
		}

		log.Printf("🚀 Running data migration: %s", migration.Description)
		if err := migration.Up(db); err != nil {
			return err
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations_log (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			return err
		}
		log.Printf("✅ Data migration %s completed", migration.Version)
	}
	return nil
}
