package processing

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"objwatch/internal/models"
	"objwatch/internal/tracker"
)

const overlayNameLimit = 20

var (
	boxColor    = color.RGBA{0, 255, 0, 255}
	bannerColor = color.RGBA{0, 0, 0, 255}
)

// toRGBA returns img itself when it is already RGBA, a copy otherwise.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}

	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)

	return rgba
}

// drawDetections outlines every labelled detection and writes its label
// above the box. Detections without a label are skipped.
func drawDetections(img *image.RGBA, dets []models.Detection) {
	bounds := img.Bounds()

	for _, d := range dets {
		if d.Label == "" {
			continue
		}

		r, ok := d.Rect(bounds.Dx(), bounds.Dy())
		if !ok {
			continue
		}
		r = r.Add(bounds.Min)

		drawRect(img, r, boxColor, 2)
		drawText(img, image.Pt(r.Min.X, max(r.Min.Y-4, bounds.Min.Y+13)), tracker.Shorten(d.Label, overlayNameLimit), boxColor)
	}
}

// drawBanner clears the frame and centers msg on it.
func drawBanner(img *image.RGBA, msg string) {
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	width := font.MeasureString(face, msg).Ceil()
	b := img.Bounds()

	drawText(img, image.Pt(b.Min.X+(b.Dx()-width)/2, b.Min.Y+b.Dy()/2), msg, bannerColor)
}

func drawText(img *image.RGBA, dot image.Point, text string, col color.Color) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(dot.X, dot.Y),
	}
	d.DrawString(text)
}

func drawRect(img *image.RGBA, r image.Rectangle, col color.Color, thickness int) {
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if (image.Point{x, y}).In(bounds) {
			img.Set(x, y, col)
		}
	}

	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x <= r.Max.X; x++ {
			setPixel(x, r.Min.Y+t)
			setPixel(x, r.Max.Y-t)
		}
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			setPixel(r.Min.X+t, y)
			setPixel(r.Max.X-t, y)
		}
	}
}
