package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRecountSessionCatches = "2026-07-14_recount_session_catches"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRecountSessionCatches, apply: recountSessionCatches},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// recountSessionCatches repairs total_catches on completed sessions that
// drifted from the actual catch rows, which happened when a crash landed
// between a catch insert and the session close before both moved into one
// transaction.
func recountSessionCatches(db *gorm.DB) error {
	const recount = `
		UPDATE sessions
		SET total_catches = (
			SELECT COUNT(*) FROM catches WHERE catches.session_id = sessions.id
		)
		WHERE status = 'completed';`
	return db.Exec(recount).Error
}
