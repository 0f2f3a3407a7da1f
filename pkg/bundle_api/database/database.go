package database

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sugarlabs/bundle-uploader/pkg/bundle_api/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connect opens the record store. DSNs starting with postgres:// use
// the postgres driver; anything else is treated as a sqlite file path
// (the default deployment shape). TranslateError maps driver key
// violations onto gorm.ErrDuplicatedKey, which Insert relies on.
func Connect(dsn string) (*gorm.DB, error) {
	isPostgres := strings.HasPrefix(dsn, "postgres://")

	var dialector gorm.Dialector
	if isPostgres {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if !isPostgres {
		// sqlite serializes writers anyway, and a pool of connections
		// would split an in-memory database into unrelated copies.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Bundle{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
