package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const bytesPerPixel = 4

// ffmpegStreamer runs ffmpeg with raw RGBA output on stdout and slices the
// pipe into frames.
type ffmpegStreamer struct {
	stopOnce sync.Once
	killOnce sync.Once

	args   []string
	width  int
	height int
	// paceFPS throttles reads for sources that would otherwise decode as fast
	// as possible. Zero reads frames as ffmpeg produces them.
	paceFPS uint

	log *slog.Logger

	cmd       *exec.Cmd
	stderr    bytes.Buffer
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func newFFmpegStreamer(args []string, width, height int, paceFPS uint, log *slog.Logger) *ffmpegStreamer {
	return &ffmpegStreamer{
		args:      args,
		width:     width,
		height:    height,
		paceFPS:   paceFPS,
		log:       log,
		frameChan: make(chan image.Image, 1),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func (fs *ffmpegStreamer) Start() error {
	fs.cmd = exec.Command("ffmpeg", fs.args...)
	fs.cmd.Stderr = &fs.stderr

	stdout, err := fs.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := fs.cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w: %s", err, fs.stderr.String())
	}

	fs.log.Info("ffmpeg started", "args", fs.args)

	go fs.readLoop(stdout)

	return nil
}

func (fs *ffmpegStreamer) readLoop(stdout io.ReadCloser) {
	defer close(fs.frameChan)
	defer close(fs.errChan)
	defer stdout.Close()
	defer fs.stopCmdOut()

	var pace <-chan time.Time
	if fs.paceFPS > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(fs.paceFPS))
		defer ticker.Stop()
		pace = ticker.C
	}

	err := readRawFrames(stdout, fs.width, fs.height, fs.frameChan, fs.stopChan, pace)
	if err == nil {
		return
	}

	select {
	case <-fs.stopChan:
	default:
		fs.errChan <- err
	}
}

// readRawFrames reads width*height RGBA frames from r until r ends or stop is
// closed. When pace is non-nil each read waits for a tick. It returns nil on
// stop and the read error otherwise, io.EOF included.
func readRawFrames(r io.Reader, width, height int, out chan<- image.Image, stop <-chan struct{}, pace <-chan time.Time) error {
	frameSize := width * height * bytesPerPixel
	buffer := make([]byte, frameSize)

	for {
		if pace != nil {
			select {
			case <-stop:
				return nil
			case <-pace:
			}
		}

		select {
		case <-stop:
			return nil
		default:
		}

		if _, err := io.ReadFull(r, buffer); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		pixelData := make([]byte, frameSize)
		copy(pixelData, buffer)

		img := &image.RGBA{
			Pix:    pixelData,
			Stride: width * bytesPerPixel,
			Rect:   image.Rect(0, 0, width, height),
		}

		select {
		case out <- img:
		case <-stop:
			return nil
		}
	}
}

func (fs *ffmpegStreamer) stopCmdOut() {
	fs.killOnce.Do(func() {
		if fs.cmd != nil && fs.cmd.Process != nil {
			fs.cmd.Process.Kill()
			fs.cmd.Wait()
		}
	})
}

func (fs *ffmpegStreamer) Stop() {
	fs.stopOnce.Do(func() {
		close(fs.stopChan)
		fs.stopCmdOut()
	})
}

func (fs *ffmpegStreamer) FrameChan() <-chan image.Image { return fs.frameChan }
func (fs *ffmpegStreamer) ErrorChan() <-chan error       { return fs.errChan }
