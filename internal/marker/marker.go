// Package marker renders the verification QR code embedded into each
// processed diploma.
package marker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// Payload is the enrichment data encoded into the marker: the matched
// registry record plus a freshly minted issuance timestamp and the
// verification reference.
type Payload struct {
	StudentID       string    `json:"student_id"`
	StudentName     string    `json:"student_name"`
	StudentEmail    string    `json:"student_email,omitempty"`
	CourseID        string    `json:"course_id,omitempty"`
	IssuedAt        time.Time `json:"issued_date"`
	VerificationRef string    `json:"verification_ref"`
	VerificationURL string    `json:"verification_url"`
}

// Generator writes QR code PNGs. Each call produces a fresh artifact;
// determinism is not promised and not needed.
type Generator struct {
	level qrcode.RecoveryLevel
}

const defaultSizePx = 256

func NewGenerator() *Generator {
	return &Generator{level: qrcode.Medium}
}

// Generate encodes the payload as JSON into a QR code PNG of sizePx pixels
// under dir and returns its path. One image pixel later maps onto one PDF
// point, so sizePx is the edge length the embedded marker ends up with.
// The file name is derived from a content hash so two students in one
// session never collide.
func (g *Generator) Generate(payload Payload, dir string, sizePx int) (string, error) {
	if sizePx <= 0 {
		sizePx = defaultSizePx
	}

	content, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode marker payload: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create marker dir: %w", err)
	}

	sum := sha256.Sum256(content)
	path := filepath.Join(dir, fmt.Sprintf("qr_%s.png", hex.EncodeToString(sum[:4])))

	if err := qrcode.WriteFile(string(content), g.level, sizePx, path); err != nil {
		return "", fmt.Errorf("failed to write marker image: %w", err)
	}

	return path, nil
}
