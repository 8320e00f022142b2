package repository

import (
	"time"

	"github.com/opencertify/diploma-engine/internal/domain"
)

// IssuanceModel is the persistence model for the issuances audit table.
type IssuanceModel struct {
	Ref         string `gorm:"type:varchar(120);primaryKey"`
	SessionID   string `gorm:"type:varchar(50);not null"`
	StudentID   string `gorm:"type:varchar(50);not null"`
	StudentName string `gorm:"type:varchar(100);not null"`
	CourseID    string `gorm:"type:varchar(50)"`
	SourceFile  string `gorm:"type:varchar(255);not null"`
	IssuedAt    time.Time
	CreatedAt   time.Time
}

func (IssuanceModel) TableName() string {
	return "issuances"
}

func issuanceModelFromDomain(i *domain.Issuance) *IssuanceModel {
	if i == nil {
		return nil
	}

	return &IssuanceModel{
		Ref:         i.Ref,
		SessionID:   i.SessionID,
		StudentID:   i.StudentID,
		StudentName: i.StudentName,
		CourseID:    i.CourseID,
		SourceFile:  i.SourceFile,
		IssuedAt:    i.IssuedAt,
		CreatedAt:   i.CreatedAt,
	}
}

func issuanceModelToDomain(m *IssuanceModel) *domain.Issuance {
	if m == nil {
		return nil
	}

	return &domain.Issuance{
		Ref:         m.Ref,
		SessionID:   m.SessionID,
		StudentID:   m.StudentID,
		StudentName: m.StudentName,
		CourseID:    m.CourseID,
		SourceFile:  m.SourceFile,
		IssuedAt:    m.IssuedAt,
		CreatedAt:   m.CreatedAt,
	}
}
