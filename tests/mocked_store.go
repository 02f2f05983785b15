package tests

import (
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"

	"github.com/getlago/lago/billing-processor/config/database"
)

func SetupMockStore(t *testing.T) (*database.DB, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(-4)}))

	db, err := database.OpenConnection(logger, dialector)
	if err != nil {
		t.Fatalf("Failed to open gorm connection: %v", err)
	}

	return db, mock, func() {
		mockDB.Close()
	}
}

// SetupSQLiteStore opens a private in-memory sqlite database.
// A single connection is used, so concurrent transactions are serialized.
func SetupSQLiteStore(t *testing.T) (*database.DB, func()) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenConnection(logger, sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("Failed to open sqlite database: %v", err)
	}

	sqlDB, err := db.Connection.DB()
	if err != nil {
		t.Fatalf("Failed to get sqlite connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, func() {
		db.Close()
	}
}
