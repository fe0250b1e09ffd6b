package cwidget

import (
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objwatch/internal/tracker"
)

func TestBoundedIntInput(t *testing.T) {
	test.NewTempApp(t)

	var got []int
	in := NewBoundedIntInput("Threshold", "seconds", 30, 5, 300, func(v int) { got = append(got, v) })

	for _, tt := range []struct {
		text    string
		want    int
		wantErr bool
	}{
		{"", 30, false},
		{"45", 45, false},
		{" 7 ", 7, false},
		{"4", 30, true},
		{"301", 30, true},
		{"abc", 30, true},
		{"0", 30, true},
	} {
		v, err := in.Validator(tt.text)
		if tt.wantErr {
			assert.Error(t, err, tt.text)
		} else {
			require.NoError(t, err, tt.text)
		}
		assert.Equal(t, tt.want, v, tt.text)
	}

	in.entryWidget.OnChanged("60")
	in.entryWidget.OnChanged("900")
	assert.Equal(t, []int{60}, got)
	assert.False(t, in.errorWidget.Hidden)
	assert.Equal(t, "Threshold: 60", in.labelWidget.Text)
}

func TestStatusRow(t *testing.T) {
	test.NewTempApp(t)

	row := NewStatusRow("cat")
	row.Update(tracker.LabelStatus{Label: "cat", Absence: 24, Threshold: 30, Severity: tracker.SeverityCritical})

	assert.InDelta(t, 0.8, row.bar.Value, 1e-9)
	assert.Equal(t, "24 / 30 s", row.bar.TextFormatter())
	assert.Equal(t, "critical", row.severity.Text)

	row.Reset(30)
	assert.Zero(t, row.bar.Value)
	assert.Equal(t, "normal", row.severity.Text)
}
