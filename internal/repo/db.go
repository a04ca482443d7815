package repo

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LeventeLantos/sos-dispatch/internal/model"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver       string
	DSN          string
	PostGIS      bool
	MaxOpenConns int
}

// Open connects to the configured database and applies migrations. SQLite is
// limited to one connection, which serializes transactions.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "pg":
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "database handle")
	}
	if isPostgres(db) {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(5)
	} else {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	if err := Migrate(db, cfg.PostGIS); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates tables and the indexes gorm tags cannot express.
func Migrate(db *gorm.DB, postGIS bool) error {
	if err := db.AutoMigrate(
		&model.Account{},
		&model.TrustedContact{},
		&model.Alert{},
		&model.LocationSample{},
		&model.NotificationRecord{},
		&model.Rating{},
	); err != nil {
		return errors.Wrap(err, "auto migrate")
	}

	// At most one live active alert per user.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_sos_alerts_one_active
		ON sos_alerts (user_id)
		WHERE status = 'active' AND deleted_at IS NULL
	`).Error; err != nil {
		return errors.Wrap(err, "create active alert index")
	}

	if postGIS && isPostgres(db) {
		stmts := []string{
			`CREATE EXTENSION IF NOT EXISTS postgis`,
			`ALTER TABLE alert_locations ADD COLUMN IF NOT EXISTS geom geometry(Point, 4326)
				GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)) STORED`,
			`CREATE INDEX IF NOT EXISTS idx_alert_locations_geom ON alert_locations USING GIST (geom)`,
		}
		for i, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return errors.Wrapf(err, "postgis migration %d", i+1)
			}
		}
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == DriverPostgres
}
