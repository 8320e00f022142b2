package repository

import (
	"context"
	"errors"

	"github.com/opencertify/diploma-engine/internal/domain"
	"gorm.io/gorm"
)

type IssuanceRepository interface {
	Create(ctx context.Context, issuance *domain.Issuance) error
	GetByRef(ctx context.Context, ref string) (*domain.Issuance, error)
}

type GormIssuanceRepo struct {
	db *gorm.DB
}

func NewGormIssuanceRepo(db *gorm.DB) *GormIssuanceRepo {
	return &GormIssuanceRepo{db: db}
}

func (r *GormIssuanceRepo) Create(ctx context.Context, issuance *domain.Issuance) error {
	model := issuanceModelFromDomain(issuance)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if issuance != nil {
		*issuance = *issuanceModelToDomain(model)
	}
	return nil
}

func (r *GormIssuanceRepo) GetByRef(ctx context.Context, ref string) (*domain.Issuance, error) {
	var model IssuanceModel
	err := r.db.WithContext(ctx).First(&model, "ref = ?", ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return issuanceModelToDomain(&model), nil
}
