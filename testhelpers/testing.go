package testhelpers

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"medkit/internal/models"
	"medkit/migrations"
	"medkit/pkg/database"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool *pgxpool.Pool
}

var lifecycleTables = []string{
	"audit_logs", "usage_records", "kit_bindings", "kit_serials", "components", "kits", "distributors",
}

// SetupTestDB connects to TEST_DATABASE_URL, applies the migrations and
// empties every lifecycle table. The test is skipped when no database is
// configured.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, dsn, 8)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	db := &TestDB{Pool: pool}
	db.Truncate(t)
	return db
}

func (db *TestDB) Truncate(t *testing.T) {
	t.Helper()
	for _, table := range lifecycleTables {
		if _, err := db.Pool.Exec(context.Background(), "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("Failed to truncate %s: %v", table, err)
		}
	}
}

// FakeDistributor returns an active distributor with generated contact data.
func FakeDistributor(f *gofakeit.Faker, id string) *models.Distributor {
	return &models.Distributor{
		ID:            id,
		Name:          f.Company(),
		Email:         f.Email(),
		Tel:           f.Phone(),
		Address:       f.Street(),
		City:          f.City(),
		ContactPerson: f.Name(),
		Status:        models.DistributorStatusActive,
	}
}

// FakeComponentItems returns n scanned items of type t with ids
// prefix-1..prefix-n and random catalog models.
func FakeComponentItems(f *gofakeit.Faker, t models.ComponentType, prefix string, n int) []models.ComponentItem {
	items := make([]models.ComponentItem, n)
	for i := range items {
		items[i] = models.ComponentItem{
			ID:          fmt.Sprintf("%s-%d", prefix, i+1),
			ModelNumber: f.RandomString(models.ModelCatalog[t]),
		}
	}
	return items
}
