package db

import (
	"database/sql"
	"fmt"
	"log"

	"go-agreements/internal/config"
	"go-agreements/internal/metrics"
	"go-agreements/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to Postgres with the service's gorm settings.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		CreateBatchSize:                          1000,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
}

// InitDB connects the global DB and migrates the schema.
func InitDB() error {
	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	log.Printf("Connecting to database...")
	conn, err := Open(config.AppConfig.Database.DSN)
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return fmt.Errorf("failed to connect database: %w", err)
	}
	DB = conn
	metrics.DBConnectionStatus.Set(1)
	log.Println("✅ Database connected successfully")

	return Migrate(DB)
}

// Migrate runs AutoMigrate for every persisted model, then the data migrations.
func Migrate(conn *gorm.DB) error {
	// gorm does not widen existing columns, so fix hash columns first
	log.Println("🔧 Checking hash column sizes...")
	for _, col := range hashColumns {
		if err := fixHashColumn(conn, col.table, col.column); err != nil {
			log.Printf("⚠️ Failed to fix %s.%s: %v", col.table, col.column, err)
		}
	}

	log.Println("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := conn.AutoMigrate(
		&models.StateEntry{}, // Committed protocol state
		&models.EventLog{},   // Receipt events
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunDataMigrations(sqlDB); err != nil {
		return fmt.Errorf("data migrations failed: %w", err)
	}

	log.Println("✅ Database schema migrated successfully")
	return nil
}

// Ping reports whether the global DB answers and updates the status gauge.
func Ping() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
		return err
	}
	metrics.DBConnectionStatus.Set(1)
	return nil
}

var hashColumns = []struct {
	table  string
	column string
}{
	{"event_logs", "tx_hash"},
	{"event_logs", "agreement_id"},
}

// fixHashColumn widens a VARCHAR column to hold a 0x-prefixed 32-byte hash
func fixHashColumn(conn *gorm.DB, tableName, columnName string) error {
	var currentSize sql.NullInt64
	err := conn.Raw(`
		SELECT character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = ?
		AND column_name = ?
	`, tableName, columnName).Scan(&currentSize).Error
	if err != nil {
		return fmt.Errorf("failed to check %s.%s column size: %w", tableName, columnName, err)
	}

	if !currentSize.Valid {
		log.Printf("📋 %s.%s column does not exist yet, will be created by AutoMigrate", tableName, columnName)
		return nil
	}
	if currentSize.Int64 >= 66 {
		return nil
	}

	log.Printf("🔧 Updating %s.%s column from VARCHAR(%d) to VARCHAR(66)...", tableName, columnName, currentSize.Int64)
	if err := conn.Exec(fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE VARCHAR(66)`, tableName, columnName)).Error; err != nil {
		return fmt.Errorf("failed to update %s.%s column size: %w", tableName, columnName, err)
	}
	log.Printf("✅ Updated %s.%s column size to VARCHAR(66)", tableName, columnName)
	return nil
}
