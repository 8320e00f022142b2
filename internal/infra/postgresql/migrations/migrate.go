package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/opencertify/diploma-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_issuances",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.IssuanceModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_issuances_session_id ON issuances (session_id)`,
					`CREATE INDEX IF NOT EXISTS idx_issuances_student_id ON issuances (student_id)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.IssuanceModel{})
			},
		},
	})

	return m.Migrate()
}
