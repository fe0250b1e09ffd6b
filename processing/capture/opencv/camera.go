// Package opencv registers the OpenCV camera source with package capture.
// Import it for its side effect:
//
//	import _ "objwatch/processing/capture/opencv"
package opencv

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"objwatch/internal/config"
	"objwatch/processing/capture"
)

// Camera reads BGR frames from a local camera and hands them out as RGBA.
type Camera struct {
	stopOnce sync.Once

	devices   []int
	width     int
	height    int
	targetFPS uint

	log *slog.Logger

	capture   *gocv.VideoCapture
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
	done      chan struct{}
}

// NewCamera tries deviceIndex first, then the next fallback indexes.
func NewCamera(deviceIndex, fallback int, targetFPS uint, width, height int) *Camera {
	return &Camera{
		devices:   candidates(deviceIndex, fallback),
		width:     width,
		height:    height,
		targetFPS: targetFPS,
		log:       slog.With("component", "capture", "source", config.SourceOpenCV),
		frameChan: make(chan image.Image, 1),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func candidates(first, fallback int) []int {
	out := make([]int, 0, fallback+1)
	for i := 0; i <= max(fallback, 0); i++ {
		out = append(out, first+i)
	}
	return out
}

func (c *Camera) Start() error {
	for _, id := range c.devices {
		vc, err := gocv.OpenVideoCapture(id)
		if err != nil {
			c.log.Warn("open camera", "device", id, "err", err)
			continue
		}
		if !vc.IsOpened() {
			vc.Close()
			continue
		}

		c.capture = vc
		c.log.Info("camera opened", "device", id)
		go c.readLoop()

		return nil
	}

	return fmt.Errorf("%w: tried devices %v", capture.ErrNoCamera, c.devices)
}

func (c *Camera) readLoop() {
	defer close(c.done)
	defer close(c.frameChan)
	defer close(c.errChan)
	defer c.capture.Close()

	fps := c.targetFPS
	if fps == 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	frame := gocv.NewMat()
	defer frame.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
		}

		if ok := c.capture.Read(&frame); !ok || frame.Empty() {
			c.sendErr(fmt.Errorf("camera returned no frame"))
			return
		}

		src := frame
		if c.width > 0 && c.height > 0 && (frame.Cols() != c.width || frame.Rows() != c.height) {
			gocv.Resize(frame, &scaled, image.Pt(c.width, c.height), 0, 0, gocv.InterpolationLinear)
			src = scaled
		}

		img, err := src.ToImage()
		if err != nil {
			c.sendErr(fmt.Errorf("convert frame: %w", err))
			return
		}

		select {
		case c.frameChan <- img:
		case <-c.stopChan:
			return
		default:
			// Consumer is still busy with the previous frame.
		}
	}
}

func (c *Camera) sendErr(err error) {
	select {
	case <-c.stopChan:
	default:
		c.errChan <- err
	}
}

// Stop ends the read loop and releases the device.
func (c *Camera) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		if c.capture != nil {
			<-c.done
		}
	})
}

func (c *Camera) FrameChan() <-chan image.Image { return c.frameChan }
func (c *Camera) ErrorChan() <-chan error       { return c.errChan }

func init() {
	capture.Register(config.SourceOpenCV, func(cfg *config.Config) (capture.VideoStreamer, error) {
		return NewCamera(cfg.OpenCV.DeviceIndex, cfg.OpenCV.Fallback, cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight()), nil
	})
}
