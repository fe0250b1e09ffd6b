package cwidget

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"objwatch/internal/tracker"
)

// StatusRow shows one label's absence as a progress bar with its band.
type StatusRow struct {
	widget.BaseWidget

	name     *widget.Label
	bar      *widget.ProgressBar
	severity *widget.Label
}

func NewStatusRow(label string) *StatusRow {
	row := &StatusRow{
		name:     widget.NewLabel(tracker.Shorten(label, 40)),
		bar:      widget.NewProgressBar(),
		severity: widget.NewLabel(tracker.SeverityNormal.String()),
	}

	row.name.Truncation = fyne.TextTruncateEllipsis
	row.bar.Min = 0
	row.bar.Max = 1
	row.bar.TextFormatter = func() string { return "0 s" }

	row.ExtendBaseWidget(row)

	return row
}

// Update renders st. Must run on the fyne goroutine.
func (row *StatusRow) Update(st tracker.LabelStatus) {
	row.bar.TextFormatter = func() string {
		return fmt.Sprintf("%d / %d s", st.Absence, st.Threshold)
	}
	row.bar.SetValue(st.Fraction())

	row.severity.SetText(st.Severity.String())
	row.severity.Importance = importance(st.Severity)
	row.severity.Refresh()
}

// Reset zeroes the bar against threshold.
func (row *StatusRow) Reset(threshold int) {
	row.Update(tracker.LabelStatus{Threshold: threshold})
}

func importance(s tracker.Severity) widget.Importance {
	switch s {
	case tracker.SeverityWarning:
		return widget.WarningImportance
	case tracker.SeverityCritical, tracker.SeverityMissing:
		return widget.DangerImportance
	default:
		return widget.SuccessImportance
	}
}

func (row *StatusRow) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewBorder(nil, nil, row.name, row.severity, row.bar)
	return widget.NewSimpleRenderer(c)
}
