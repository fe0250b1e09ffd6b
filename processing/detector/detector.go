package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"

	"objwatch/internal/config"
	"objwatch/internal/models"
)

// Detector runs an open-vocabulary model on one frame. Class indexes in the
// result refer to positions in vocab.
type Detector interface {
	Detect(ctx context.Context, frame image.Image, vocab []string) ([]models.Detection, error)
	Close() error
}

// FramePrep shrinks and encodes frames before they leave the process.
type FramePrep struct {
	MaxSide int
	Quality int
}

// Encode fits img inside MaxSide x MaxSide and returns it as JPEG. Boxes are
// normalized, so downscaling does not change what the caller sees.
func (p FramePrep) Encode(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if p.MaxSide > 0 && (b.Dx() > p.MaxSide || b.Dy() > p.MaxSide) {
		img = imaging.Fit(img, p.MaxSide, p.MaxSide, imaging.Lanczos)
	}

	q := p.Quality
	if q <= 0 || q > 100 {
		q = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}

	return buf.Bytes(), nil
}

// NewDetector builds the backend selected in cfg.
func NewDetector(cfg *config.Config) (Detector, error) {
	prep := FramePrep{MaxSide: cfg.Detector.MaxSide, Quality: cfg.Detector.JPEGQuality}

	switch cfg.Detector.Backend {
	case config.BackendWebsocket:
		return NewRemoteDetector(cfg.Detector.URL, RemoteOptions{
			Prep:           prep,
			Timeout:        cfg.Detector.Timeout,
			ReconnectDelay: cfg.Detector.ReconnectDelay,
		}), nil
	case config.BackendOllama:
		return NewOllamaDetector(cfg.Detector.URL, cfg.Detector.Model, prep)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Detector.Backend)
	}
}
