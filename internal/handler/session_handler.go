package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/opencertify/diploma-engine/internal/domain"
)

const uploadFieldName = "file"

type BatchService interface {
	IngestArchive(ctx context.Context, upload io.Reader) (string, []string, error)
	Payload(sessionID string) (domain.Payload, error)
	Discard(sessionID string)
	RunBatch(ctx context.Context, sessionID string, placement domain.Placement) (domain.BatchOutcome, error)
	PackOutputs(sessionID string, outputs []string) (string, error)
}

type SessionHandler struct {
	service        BatchService
	maxUploadBytes int64
}

func NewSessionHandler(service BatchService, maxUploadBytes int64) (*SessionHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	return &SessionHandler{service: service, maxUploadBytes: maxUploadBytes}, nil
}

func RegisterSessionRoutes(router fiber.Router, service BatchService, maxUploadBytes int64) error {
	h, err := NewSessionHandler(service, maxUploadBytes)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/sessions", h.CreateSession)
	v1.Get("/sessions/:id", h.GetSession)
	v1.Post("/sessions/:id/process", h.ProcessSession)
	v1.Delete("/sessions/:id", h.DeleteSession)

	return nil
}

type createSessionResponse struct {
	SessionID  string   `json:"sessionId"`
	TotalCount int      `json:"totalCount"`
	Files      []string `json:"files"`
}

type processRequest struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

type processFailureResponse struct {
	Error  string             `json:"error"`
	Errors []domain.ItemError `json:"errors"`
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile(uploadFieldName)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}

	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".zip") {
		return fiber.NewError(fiber.StatusBadRequest, "upload must be a .zip archive")
	}
	if fileHeader.Size == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "upload is empty")
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
	}

	upload, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read upload")
	}
	defer upload.Close()

	id, files, err := h.service.IngestArchive(c.Context(), upload)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(createSessionResponse{
		SessionID:  id,
		TotalCount: len(files),
		Files:      files,
	})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return err
	}

	payload, err := h.service.Payload(id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"sessionId": id,
		"payload":   payload,
	})
}

func (h *SessionHandler) ProcessSession(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return err
	}

	var req processRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	placement := domain.Placement{X: req.X, Y: req.Y, Size: req.Size}

	outcome, err := h.service.RunBatch(c.Context(), id, placement)
	if err != nil {
		if errors.Is(err, domain.ErrBatchFailed) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(processFailureResponse{
				Error:  err.Error(),
				Errors: outcome.Errors,
			})
		}
		return toHTTPError(err)
	}

	archivePath, err := h.service.PackOutputs(id, outcome.Processed)
	if err != nil {
		return toHTTPError(err)
	}

	// The session and everything under it is deleted once the archive
	// is handed back, so the bytes are read before discarding.
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("failed to read result archive: %w", err)
	}

	h.service.Discard(id)

	filename := fmt.Sprintf("diplomas_processados_%s.zip", id)
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	c.Set("X-Processing-Errors", strconv.Itoa(len(outcome.Errors)))

	return c.Status(fiber.StatusOK).Send(data)
}

func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return err
	}
	h.service.Discard(id)
	return c.SendStatus(fiber.StatusNoContent)
}

func sessionIDParam(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Params("id"))
	if !domain.ValidSessionID(id) {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid session id")
	}
	return id, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrBatchFailed):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}
