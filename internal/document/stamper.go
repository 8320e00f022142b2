package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/opencertify/diploma-engine/internal/domain"
)

const stampedSuffix = "_com_qr"

// Stamper embeds a marker image into the first page of a diploma PDF.
type Stamper struct {
	conf *model.Configuration
}

func NewStamper() *Stamper {
	return &Stamper{conf: model.NewDefaultConfiguration()}
}

// stampDescription anchors the marker at the placement's bottom-left
// corner. Placement coordinates and the watermark offset share the same
// bottom-left page origin, so they pass through untranslated. The marker
// PNG is generated at placement.Size pixels and rendered at its native
// resolution, so one pixel lands on one point.
func stampDescription(placement domain.Placement) string {
	return fmt.Sprintf("pos:bl, off:%.2f %.2f, scale:1 abs, rot:0", placement.X, placement.Y)
}

// Embed places the image at markerPath onto page one of the document at
// sourcePath, honoring the placement's page coordinates, and writes the
// result under outputDir. It returns the path of the stamped document.
func (s *Stamper) Embed(sourcePath, markerPath string, placement domain.Placement, outputDir string) (string, error) {
	if err := placement.Validate(); err != nil {
		return "", err
	}

	wm, err := api.ImageWatermark(markerPath, stampDescription(placement), true, false, types.POINTS)
	if err != nil {
		return "", fmt.Errorf("failed to prepare marker stamp: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	outputPath := filepath.Join(outputDir, stem+stampedSuffix+".pdf")

	if err := api.AddWatermarksFile(sourcePath, outputPath, []string{"1"}, wm, s.conf); err != nil {
		return "", fmt.Errorf("failed to embed marker: %w", err)
	}

	return outputPath, nil
}
