package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/stockledger/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestStockItemsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_stock_items")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS stock_items",
		"CHECK (count >= 0)",
		"CHECK (reserved >= 0)",
		"ux_stock_items_variant_store ON stock_items (variant_id, store_id)",
		"DROP TABLE IF EXISTS stock_items",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
	if strings.Contains(content, "count - reserved >= 0") || strings.Contains(content, "count >= reserved") {
		t.Error("available must not be constrained; adjustments may drive it negative")
	}
}

func TestStockMovementsMigrationIsAppendOnly(t *testing.T) {
	content := readMigration(t, "create_stock_movements")
	checks := []string{
		"CHECK (quantity <> 0)",
		"BEFORE UPDATE OR DELETE ON stock_movements",
		"'reserved', 'unreserved'",
		"ix_stock_movements_item_created ON stock_movements (stock_item_id, created_at)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationKeepsOneOpenCart(t *testing.T) {
	content := readMigration(t, "create_orders")
	checks := []string{
		"ux_orders_open_cart ON orders (customer_id, store_id) WHERE status = 'cart'",
		"CHECK (quantity >= 1)",
		"REFERENCES orders(id) ON DELETE CASCADE",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
