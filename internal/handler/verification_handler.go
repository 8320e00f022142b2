package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opencertify/diploma-engine/internal/domain"
)

type VerificationService interface {
	Verify(ctx context.Context, ref string) (*domain.Issuance, *domain.StudentRecord, error)
}

type VerificationHandler struct {
	service VerificationService
}

func NewVerificationHandler(service VerificationService) (*VerificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("verification service is required")
	}
	return &VerificationHandler{service: service}, nil
}

func RegisterVerificationRoutes(router fiber.Router, service VerificationService) error {
	h, err := NewVerificationHandler(service)
	if err != nil {
		return err
	}

	router.Group("/v1").Get("/verifications/:ref", h.GetVerification)
	return nil
}

type verificationResponse struct {
	Ref         string          `json:"ref"`
	StudentName string          `json:"studentName"`
	CourseID    string          `json:"courseId,omitempty"`
	SourceFile  string          `json:"sourceFile"`
	IssuedAt    time.Time       `json:"issuedAt"`
	Live        bool            `json:"live"`
	Student     *studentSummary `json:"student,omitempty"`
}

type studentSummary struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
}

func (h *VerificationHandler) GetVerification(c *fiber.Ctx) error {
	ref := strings.TrimSpace(c.Params("ref"))

	issuance, record, err := h.service.Verify(c.Context(), ref)
	if err != nil {
		return toHTTPError(err)
	}

	resp := verificationResponse{
		Ref:         issuance.Ref,
		StudentName: issuance.StudentName,
		CourseID:    issuance.CourseID,
		SourceFile:  issuance.SourceFile,
		IssuedAt:    issuance.IssuedAt,
		Live:        record != nil,
	}
	if record != nil {
		resp.Student = &studentSummary{
			ID:       record.ID,
			FullName: record.FullName,
			Email:    record.Email,
		}
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}
