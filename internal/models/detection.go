package models

import "image"

// Detection is one box reported by a detector. Class indexes the vocabulary
// the detector was called with; Box is normalized [x1, y1, x2, y2].
type Detection struct {
	Class      int       `json:"class"`
	Label      string    `json:"label,omitempty"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

// Rect scales the normalized box to a frame of the given size. ok is false
// when the box is malformed.
func (d Detection) Rect(width, height int) (r image.Rectangle, ok bool) {
	if len(d.Box) != 4 {
		return image.Rectangle{}, false
	}

	w := float32(width)
	h := float32(height)

	r = image.Rect(
		int(d.Box[0]*w),
		int(d.Box[1]*h),
		int(d.Box[2]*w),
		int(d.Box[3]*h),
	)

	return r.Canon(), true
}
