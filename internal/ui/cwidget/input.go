package cwidget

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

type Input[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	entryWidget *widget.Entry
	errorWidget *widget.Label

	LabelText   string
	Placeholder string

	DefaultValue T

	OnChanged   func(T)
	OnSubmitted func(T)

	Validator func(string) (T, error)
}

func newInput[T any](label, placeholder string, defaultValue T, validator func(string) (T, error)) *Input[T] {
	input := &Input[T]{
		LabelText:    label,
		Placeholder:  placeholder,
		DefaultValue: defaultValue,
		Validator:    validator,
	}

	input.labelWidget = widget.NewLabel(fmt.Sprintf("%s: %v", label, defaultValue))
	input.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	input.entryWidget = widget.NewEntry()
	input.entryWidget.SetPlaceHolder(placeholder)

	input.errorWidget = widget.NewLabel("")
	input.errorWidget.Hidden = true
	input.errorWidget.TextStyle = fyne.TextStyle{Italic: true}
	input.errorWidget.Importance = widget.DangerImportance

	input.entryWidget.OnChanged = func(s string) {
		res, err := input.Validator(s)
		input.SetError(err)

		if err == nil {
			input.setValueLabel(res)
			if input.OnChanged != nil {
				input.OnChanged(res)
			}
		}
	}

	input.entryWidget.OnSubmitted = func(s string) {
		res, err := input.Validator(s)
		input.SetError(err)

		if err == nil && input.OnSubmitted != nil {
			input.OnSubmitted(res)
		}
	}

	input.ExtendBaseWidget(input)

	return input
}

func NewIntInput(label, placeholder string, defaultValue int, onChanged func(int)) *Input[int] {
	input := newInput(label, placeholder, defaultValue, nil)
	input.OnChanged = onChanged
	input.Validator = func(s string) (int, error) {
		if s == "" {
			return input.DefaultValue, nil
		}

		res, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return input.DefaultValue, errors.New("not an integer")
		}
		if res == 0 {
			return input.DefaultValue, errors.New("zero error")
		}

		return res, nil
	}

	return input
}

// NewBoundedIntInput only reports values in [lo, hi].
func NewBoundedIntInput(label, placeholder string, defaultValue, lo, hi int, onChanged func(int)) *Input[int] {
	input := NewIntInput(label, placeholder, defaultValue, onChanged)
	parse := input.Validator

	input.Validator = func(s string) (int, error) {
		res, err := parse(s)
		if err != nil {
			return res, err
		}
		if res < lo || res > hi {
			return input.DefaultValue, fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return res, nil
	}

	return input
}

func (item *Input[T]) setValueLabel(v T) {
	item.labelWidget.SetText(fmt.Sprintf("%s: %v", item.LabelText, v))
}

func (item *Input[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		item.labelWidget,
		item.entryWidget,
		item.errorWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (item *Input[T]) SetError(err error) {
	item.errorWidget.Hidden = err == nil
	if err != nil {
		item.errorWidget.SetText(err.Error())
	}
	item.errorWidget.Refresh()
}

func (item *Input[T]) SetText(text string) {
	item.entryWidget.SetText(text)
}
