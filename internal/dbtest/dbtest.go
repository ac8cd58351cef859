// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger/pkg/db/models"
)

// Open returns a fresh in-memory database with every model migrated and the
// partial unique index that keeps one open cart per customer and store.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:stockledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_open_cart ON orders (customer_id, store_id) WHERE status = 'cart'`,
	).Error; err != nil {
		t.Fatalf("open cart index: %v", err)
	}
	return conn
}
