package migrations

import (
	"github.com/facturacr/einvoice-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createRetryQueueTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_einvoice_retry_queue",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RetryEntryModel{}); err != nil {
				return err
			}
			indexes := []string{
				// One active entry per (document, operation); backs the
				// ON CONFLICT upsert in the retry repository.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_retry_queue_active ON einvoice_retry_queue (document_id, operation) WHERE state IN ('PENDING', 'PROCESSING')`,
				`CREATE INDEX IF NOT EXISTS idx_retry_queue_due ON einvoice_retry_queue (next_attempt_at) WHERE state = 'PENDING'`,
				`CREATE INDEX IF NOT EXISTS idx_retry_queue_document ON einvoice_retry_queue (document_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RetryEntryModel{})
		},
	}
}
