// Package viewstore persists the MS client's volume/certificate view to
// a local database, so a gateway restart can serve reads before its
// first view reload completes. Backed by GORM, pluggable between
// glebarez/sqlite (default, single process) and postgres via pgx (shared
// across a gateway fleet). The postgres schema is migrated with
// golang-migrate; the sqlite schema is created by GORM AutoMigrate.
package viewstore

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// VolumeRow is the persisted row for a held volume record.
type VolumeRow struct {
	VolumeID      uint64 `gorm:"primaryKey"`
	Name          string
	BlockSize     uint32
	VolumeVersion uint64
	CertVersion   uint64
	OwnerUserID   uint64
	RootEntryID   uint64
	PublicKeyPEM  []byte
	Signature     []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (VolumeRow) TableName() string { return "volumes" }

// CertRow is one persisted gateway certificate.
type CertRow struct {
	GatewayID    uint64 `gorm:"primaryKey"`
	VolumeID     uint64 `gorm:"index"`
	GatewayType  string
	OwnerUserID  uint64
	Host         string
	Port         int
	Caps         uint32
	Version      uint64
	PublicKeyPEM []byte
	BlockSize    *uint32
	Signature    []byte
	UpdatedAt    time.Time
}

func (CertRow) TableName() string { return "gateway_certs" }

// Store wraps a GORM connection scoped to one volume's view.
type Store struct {
	db *gorm.DB
}

// Options configures Open.
type Options struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is the connection string: a file path for sqlite, a libpq DSN
	// for postgres.
	DSN string
}

// Open connects to the configured backend and brings its schema up to
// date: the embedded migrations for postgres, AutoMigrate for sqlite.
func Open(opts Options) (*Store, error) {
	if opts.DSN == "" {
		opts.DSN = "view.db"
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case "postgres":
		if err := runPostgresMigrations(opts.DSN); err != nil {
			return nil, err
		}
		dialector = postgres.Open(opts.DSN)
	case "", "sqlite":
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("viewstore: unknown driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("viewstore: open %s: %w", opts.Driver, err)
	}

	if opts.Driver == "" || opts.Driver == "sqlite" {
		if err := db.AutoMigrate(&VolumeRow{}, &CertRow{}); err != nil {
			return nil, fmt.Errorf("viewstore: migrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveVolume upserts the held volume record.
func (s *Store) SaveVolume(v VolumeRow) error {
	return s.db.Save(&v).Error
}

// LoadVolume returns the persisted volume record, if any.
func (s *Store) LoadVolume(volumeID uint64) (*VolumeRow, error) {
	var v VolumeRow
	if err := s.db.First(&v, "volume_id = ?", volumeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// SaveCerts upserts a batch of certificates in one transaction.
func (s *Store) SaveCerts(rows []CertRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.Save(&rows).Error
}

// LoadCerts returns every persisted certificate for a volume.
func (s *Store) LoadCerts(volumeID uint64) ([]CertRow, error) {
	var rows []CertRow
	if err := s.db.Where("volume_id = ?", volumeID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
