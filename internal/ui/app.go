package ui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"objwatch/internal/config"
	"objwatch/internal/tracker"
	"objwatch/internal/ui/cwidget"
	"objwatch/processing/capture"
	processing "objwatch/processing/detector"
)

const cardNameLimit = 40

type DetectApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config     *config.Config
	configPath string
	processor  *processing.Processor
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	dynamicSettings *fyne.Container
	staticSettings  *fyne.Container

	labelEntry *widget.Entry
	labelCards *fyne.Container
	statusBox  *fyne.Container
	rows       map[string]*cwidget.StatusRow

	videoCanvas  *canvas.Image
	latencyLabel *widget.Label
	fpsLabel     *widget.Label
	stateLabel   *widget.Label
}

func CreateApp(p *processing.Processor, cfg *config.Config, configPath string) *DetectApp {
	a := app.NewWithID("io.objwatch")
	w := a.NewWindow("Object Watch")

	w.Resize(fyne.NewSize(1200, 720))

	ctx, cancel := context.WithCancel(context.Background())

	return &DetectApp{
		fyneApp:    a,
		mainWin:    w,
		processor:  p,
		config:     cfg,
		configPath: configPath,
		log:        slog.With("component", "ui"),
		ctx:        ctx,
		cancel:     cancel,
		rows:       map[string]*cwidget.StatusRow{},
	}
}

func (a *DetectApp) Run() {
	a.dynamicSettings = container.NewVBox()

	sourceTypeSelect := widget.NewSelect(config.SourcesList[:], func(s string) {
		a.config.SetSource(config.SourceType(s))
		a.refreshSettingsUI(s)
	})
	sourceTypeSelect.SetSelected(string(a.config.GetSource()))

	a.videoCanvas = canvas.NewImageFromImage(blankFrame(a.config.GetWidth(), a.config.GetHeight()))
	a.videoCanvas.FillMode = canvas.ImageFillContain
	a.videoCanvas.SetMinSize(fyne.NewSize(640, 480))

	a.latencyLabel = widget.NewLabel(a.formatLatency(0))
	a.fpsLabel = widget.NewLabel(a.formatFPS(0))
	a.stateLabel = widget.NewLabel("Camera stopped")

	videoContainer := container.NewBorder(
		container.NewHBox(a.stateLabel, widget.NewSeparator(), a.fpsLabel, widget.NewSeparator(), a.latencyLabel),
		nil, nil, nil,
		a.videoCanvas,
	)

	a.setupConfigSettings()

	cameraSettings := container.NewVBox(
		widget.NewLabel("Source Type:"),
		sourceTypeSelect,
		widget.NewSeparator(),
		a.dynamicSettings,
		a.staticSettings,
	)

	tabs := container.NewAppTabs(
		container.NewTabItem("Objects", a.objectsTab()),
		container.NewTabItem("Status", container.NewVScroll(a.statusTab())),
		container.NewTabItem("Camera", container.NewVScroll(cameraSettings)),
	)

	controls := container.NewGridWithColumns(2,
		widget.NewButtonWithIcon("Start Camera", theme.MediaPlayIcon(), a.StartProcessing),
		widget.NewButtonWithIcon("Stop Camera", theme.MediaStopIcon(), a.StopProcessing),
	)

	sidebar := container.NewBorder(nil, controls, nil, nil, tabs)

	split := container.NewHSplit(
		container.NewPadded(sidebar),
		container.NewPadded(videoContainer),
	)
	split.SetOffset(0.35)

	a.mainWin.SetContent(split)

	a.refreshSettingsUI(string(a.config.GetSource()))
	a.refreshLabels()

	go a.runEventLoop()
	go a.runStatLoop()

	a.mainWin.SetCloseIntercept(func() {
		a.processor.Stop()
		a.cancel()
		if err := a.config.Save(a.configPath); err != nil {
			a.log.Error("save config", "path", a.configPath, "err", err)
		}
		a.mainWin.Close()
	})

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

func (a *DetectApp) objectsTab() fyne.CanvasObject {
	a.labelEntry = widget.NewEntry()
	a.labelEntry.SetPlaceHolder("Describe an object, e.g. \"blue coffee mug\"")
	a.labelEntry.OnSubmitted = func(string) { a.addLabel() }

	addBtn := widget.NewButtonWithIcon("Add", theme.ContentAddIcon(), a.addLabel)

	a.labelCards = container.NewVBox()

	return container.NewBorder(
		container.NewVBox(
			widget.NewLabelWithStyle("Tracked objects", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			container.NewBorder(nil, nil, nil, addBtn, a.labelEntry),
			widget.NewSeparator(),
		),
		nil, nil, nil,
		container.NewVScroll(a.labelCards),
	)
}

func (a *DetectApp) statusTab() fyne.CanvasObject {
	threshold := cwidget.NewBoundedIntInput(
		"Max absence (s)",
		fmt.Sprintf("%d-%d", tracker.MinThreshold, tracker.MaxThreshold),
		a.processor.Threshold(),
		tracker.MinThreshold,
		tracker.MaxThreshold,
		func(v int) {
			if err := a.processor.SetThreshold(v); err != nil {
				a.log.Warn("set threshold", "err", err)
				return
			}
			a.renderStatus(a.processor.Snapshot())
		},
	)

	a.statusBox = container.NewVBox()

	return container.NewVBox(threshold, widget.NewSeparator(), a.statusBox)
}

func (a *DetectApp) addLabel() {
	_, err := a.processor.AddLabel(a.labelEntry.Text)

	switch {
	case errors.Is(err, tracker.ErrEmptyLabel):
		dialog.ShowInformation("Attention", "Enter a name or description of the object to watch.", a.mainWin)
		return
	case errors.Is(err, tracker.ErrDuplicateLabel):
		dialog.ShowInformation("Attention", "This object is already tracked.", a.mainWin)
		return
	case err != nil:
		dialog.ShowError(err, a.mainWin)
		return
	}

	a.labelEntry.SetText("")
	a.refreshLabels()
}

func (a *DetectApp) removeLabel(label string) {
	if _, err := a.processor.RemoveLabel(label); err != nil {
		a.log.Warn("remove label", "label", label, "err", err)
	}
	a.refreshLabels()
}

// refreshLabels rebuilds the cards and status rows from the tracked labels.
func (a *DetectApp) refreshLabels() {
	labels := a.processor.Labels()

	a.labelCards.RemoveAll()
	a.statusBox.RemoveAll()
	a.rows = make(map[string]*cwidget.StatusRow, len(labels))

	if len(labels) == 0 {
		hint := widget.NewLabel("The list is empty. Add objects to watch.")
		hint.Alignment = fyne.TextAlignCenter
		a.labelCards.Add(hint)
	}

	for _, label := range labels {
		name := widget.NewLabel(tracker.Shorten(label, cardNameLimit))
		del := widget.NewButtonWithIcon("", theme.DeleteIcon(), func() { a.removeLabel(label) })
		a.labelCards.Add(container.NewBorder(nil, nil, nil, del, name))

		row := cwidget.NewStatusRow(label)
		a.rows[label] = row
		a.statusBox.Add(row)
	}

	a.labelCards.Refresh()
	a.statusBox.Refresh()

	a.renderStatus(a.processor.Snapshot())
}

// renderStatus must run on the fyne goroutine.
func (a *DetectApp) renderStatus(snap tracker.Snapshot) {
	for _, st := range snap {
		if row, ok := a.rows[st.Label]; ok {
			row.Update(st)
		}
	}
}

func (a *DetectApp) resetStatus() {
	threshold := a.processor.Threshold()
	for _, row := range a.rows {
		row.Reset(threshold)
	}
}

func (a *DetectApp) StopProcessing() {
	a.processor.Stop()
}

func (a *DetectApp) StartProcessing() {
	if a.processor.IsActive() {
		return
	}

	if err := a.config.Validate(); err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	streamer, err := capture.NewStreamer(a.config)
	if err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	err = a.processor.Start(a.ctx, streamer)
	switch {
	case errors.Is(err, processing.ErrNoLabels):
		dialog.ShowInformation("Attention", "No objects to watch. Add at least one object.", a.mainWin)
		return
	case errors.Is(err, capture.ErrNoCamera):
		dialog.ShowError(errors.New("could not access the camera"), a.mainWin)
		return
	case err != nil:
		dialog.ShowError(err, a.mainWin)
		return
	}

	a.stateLabel.SetText("Camera running")
}

// runEventLoop moves processor output onto the fyne goroutine for the whole
// life of the window.
func (a *DetectApp) runEventLoop() {
	fps := a.config.GetFPS()
	if fps == 0 {
		fps = 30
	}
	displayTicker := time.NewTicker(time.Second / time.Duration(fps))
	defer displayTicker.Stop()

	var lastFrame image.Image

	for {
		select {
		case <-a.ctx.Done():
			return

		case frame := <-a.processor.Frames():
			lastFrame = frame

		case <-displayTicker.C:
			if lastFrame == nil {
				continue
			}
			frame := lastFrame
			lastFrame = nil
			fyne.Do(func() {
				a.videoCanvas.Image = frame
				a.videoCanvas.Refresh()
			})

		case snap := <-a.processor.Status():
			fyne.Do(func() { a.renderStatus(snap) })

		case n := <-a.processor.Notifications():
			fyne.Do(func() { a.showNotification(n) })

		case end := <-a.processor.Ended():
			lastFrame = nil
			fyne.Do(func() { a.onSessionEnded(end) })
		}
	}
}

func (a *DetectApp) showNotification(n tracker.Notification) {
	a.fyneApp.SendNotification(fyne.NewNotification(n.Title(), n.Message()))
	dialog.ShowInformation(n.Title(), n.Message(), a.mainWin)
}

func (a *DetectApp) onSessionEnded(end processing.SessionEnd) {
	a.stateLabel.SetText("Camera stopped")
	a.resetStatus()

	a.videoCanvas.Image = blankFrame(a.config.GetWidth(), a.config.GetHeight())
	a.videoCanvas.Refresh()

	if end.Reason == processing.EndStreamFailed {
		dialog.ShowError(fmt.Errorf("camera stopped: %w", end.Err), a.mainWin)
	}
}

func (a *DetectApp) runStatLoop() {
	uiTicker := time.NewTicker(time.Millisecond * 200)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			latency, fps := a.processor.Latency(), a.processor.FPS()
			fyne.Do(func() {
				a.latencyLabel.SetText(a.formatLatency(latency))
				a.fpsLabel.SetText(a.formatFPS(fps))
			})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *DetectApp) formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func (a *DetectApp) formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}

func blankFrame(w, h int) image.Image {
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func (a *DetectApp) setupConfigSettings() {
	a.staticSettings = container.NewVBox()

	fpsInput := cwidget.NewBoundedIntInput(
		"FPS",
		"Enter integer",
		int(a.config.GetFPS()),
		1, 120,
		func(i int) {
			a.config.SetFPS(uint(i))
		},
	)

	widthInput := cwidget.NewIntInput(
		"Width",
		"Enter integer",
		a.config.GetWidth(),
		func(i int) {
			a.config.SetWidth(i)
		},
	)

	heightInput := cwidget.NewIntInput(
		"Height",
		"Enter integer",
		a.config.GetHeight(),
		func(i int) {
			a.config.SetHeight(i)
		},
	)

	saveCfg := widget.NewButton("Save config", func() {
		if err := a.config.Save(a.configPath); err != nil {
			dialog.ShowError(err, a.mainWin)
		}
	})

	a.staticSettings.Add(fpsInput)
	a.staticSettings.Add(widthInput)
	a.staticSettings.Add(heightInput)
	a.staticSettings.Add(saveCfg)
}

func (a *DetectApp) refreshSettingsUI(sourceType string) {
	a.dynamicSettings.RemoveAll()
	a.StopProcessing()

	switch config.SourceType(sourceType) {
	case config.SourceLocal:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/video.mp4")
		pathEntry.SetText(a.config.Local.Path)

		pathEntry.OnChanged = func(s string) {
			a.config.Local.Path = s
		}

		fileBtn := widget.NewButtonWithIcon("Open File", theme.FolderOpenIcon(), func() {
			dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err == nil && reader != nil {
					pathEntry.SetText(reader.URI().Path())
					reader.Close()
				}
			}, a.mainWin)
		})

		a.dynamicSettings.Add(widget.NewLabel("Video Path:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))

	case config.SourceOpenCV:
		indexSelect := widget.NewSelect([]string{"0", "1", "2", "3"}, func(s string) {
			if i, err := strconv.Atoi(s); err == nil {
				a.config.OpenCV.DeviceIndex = i
			}
		})
		indexSelect.SetSelected(strconv.Itoa(a.config.OpenCV.DeviceIndex))

		a.dynamicSettings.Add(widget.NewLabel("Camera index:"))
		a.dynamicSettings.Add(indexSelect)

	case config.SourceWebcam:
		deviceSelect := widget.NewSelect([]string{"Loading cameras..."}, func(s string) {
			if s != "Loading cameras..." && s != "No cameras found" {
				a.config.Webcam.DeviceID = s
			}
		})
		deviceSelect.SetSelected("Loading cameras...")
		deviceSelect.Disable()

		a.dynamicSettings.Add(widget.NewLabel("Select Camera:"))
		a.dynamicSettings.Add(deviceSelect)

		go func() {
			devices, err := capture.ListCameras()

			fyne.Do(func() {
				switch {
				case errors.Is(err, capture.ErrNoCamera):
					deviceSelect.Options = []string{"No cameras found"}
				case err != nil:
					dialog.ShowError(err, a.mainWin)
					deviceSelect.Options = []string{"Error listing cameras"}
				default:
					deviceSelect.Options = devices
					deviceSelect.Enable()

					if a.config.Webcam.DeviceID != "" {
						deviceSelect.SetSelected(a.config.Webcam.DeviceID)
					} else {
						deviceSelect.SetSelected(devices[0])
					}
				}
				deviceSelect.Refresh()
			})
		}()
	}

	a.dynamicSettings.Refresh()
}
