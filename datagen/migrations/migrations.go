package migrations

import (
	"log/slog"

	"datagen_platform/datagen/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func allTables() []any {
	return []any{&schema.DatagenRun{}, &schema.RunEvent{}}
}

// Migrate brings the database up to the latest schema version. A clean
// database skips the incremental migrations and is initialized directly from
// the current model definitions.
func Migrate(db *gorm.DB) error {
	migration := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "1_initial_schema",
			Migrate: func(txn *gorm.DB) error {
				return txn.AutoMigrate(allTables()...)
			},
			Rollback: func(txn *gorm.DB) error {
				return txn.Migrator().DropTable(allTables()...)
			},
		},
	})

	migration.InitSchema(func(txn *gorm.DB) error {
		slog.Info("clean database detected, running full schema initialization")
		return txn.AutoMigrate(allTables()...)
	})

	return migration.Migrate()
}
