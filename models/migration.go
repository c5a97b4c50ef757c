package models

import (
	"bitbucket.org/mmdatafocus/fir_backend/config"
)

// MigrateTable runs gorm AutoMigrate for every table this service owns.
// Skipped when SKIP_MIGRATIONS is set (see main).
func MigrateTable() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&DraftFIR{},
		&FinalFIR{},
		&Notification{},
		&FIREventRecord{},
	)
}
