// File: connection.go
package postgres

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SiriusScan/go-ingest/sirius/postgres/models"
)

// ErrNoConnection is returned by repositories built without a database.
var ErrNoConnection = errors.New("database connection not available")

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// Connect opens the PostgreSQL database at dsn and makes it the package
// default returned by GetDB.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connect: %w", ErrNoConnection)
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	dbMu.Lock()
	db = conn
	dbMu.Unlock()
	slog.Info("Connected to database")
	return conn, nil
}

// AutoMigrate creates or updates the tables the ingest service writes to.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return ErrNoConnection
	}
	err := conn.AutoMigrate(
		&models.KPI{},
		&models.KPIValue{},
		&models.Tool{},
		&models.File{},
		&models.Log{},
		&models.Event{},
	)
	if err != nil {
		return fmt.Errorf("error migrating database schema: %w", err)
	}
	return nil
}

func GetDB() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}
