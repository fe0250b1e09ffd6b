package processing

import (
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"objwatch/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDrawDetections(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	drawDetections(img, []models.Detection{
		{Label: "cat", Box: []float32{0.2, 0.2, 0.6, 0.6}},
		{Label: "", Box: []float32{0.7, 0.7, 0.9, 0.9}},
		{Label: "bad", Box: []float32{0.1}},
	})

	assert.Equal(t, boxColor, img.RGBAAt(20, 40))
	assert.Equal(t, boxColor, img.RGBAAt(60, 40))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(40, 40))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(70, 80))
}

func TestDrawBanner(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 50))
	drawBanner(img, "no objects to track")

	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(0, 0))

	dark := 0
	for x := 0; x < 200; x++ {
		for y := 10; y < 30; y++ {
			if img.RGBAAt(x, y) == bannerColor {
				dark++
			}
		}
	}
	assert.Positive(t, dark)
}

func TestToRGBA(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.Same(t, rgba, toRGBA(rgba))

	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	gray.SetGray(1, 1, color.Gray{Y: 200})
	out := toRGBA(gray)
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, out.RGBAAt(1, 1))
}

func TestDetectionRect(t *testing.T) {
	r, ok := models.Detection{Box: []float32{0.5, 0.5, 0.1, 0.2}}.Rect(100, 50)
	assert.True(t, ok)
	assert.Equal(t, image.Rect(10, 10, 50, 25), r)
}
