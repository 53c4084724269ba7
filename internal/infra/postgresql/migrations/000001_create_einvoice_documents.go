package migrations

import (
	"github.com/facturacr/einvoice-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createDocumentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_einvoice_documents",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DocumentModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_clave ON einvoice_documents (clave) WHERE clave <> ''`,
				`CREATE INDEX IF NOT EXISTS idx_documents_state_created ON einvoice_documents (state, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_documents_submitted ON einvoice_documents (submitted_at) WHERE state = 'SUBMITTED'`,
				`CREATE INDEX IF NOT EXISTS idx_documents_issuer ON einvoice_documents (issuer_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DocumentModel{})
		},
	}
}
