package capture

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"runtime"

	"objwatch/internal/config"
)

// NewFFmpegWebcam reads a camera through ffmpeg (v4l2, or dshow on Windows).
func NewFFmpegWebcam(deviceName string, targetFPS uint, width, height int) VideoStreamer {
	input := []string{"-f", "v4l2", "-i", deviceName}
	if runtime.GOOS == "windows" {
		input = []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", deviceName)}
	}

	args := append(input,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", targetFPS, width, height),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)

	log := slog.With("component", "capture", "source", config.SourceWebcam, "device", deviceName)

	return newFFmpegStreamer(args, width, height, 0, log)
}

var dshowDevice = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)

// ListCameras returns the camera names ffmpeg can open on this platform.
func ListCameras() ([]string, error) {
	if runtime.GOOS != "windows" {
		return []string{"/dev/video0", "/dev/video1"}, nil
	}

	cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// ffmpeg exits non-zero after listing.
	_ = cmd.Run()

	cameras := parseDshowDevices(stderr.String())
	if len(cameras) == 0 {
		return nil, ErrNoCamera
	}

	return cameras, nil
}

func parseDshowDevices(output string) []string {
	var cameras []string
	seen := make(map[string]bool)

	for _, m := range dshowDevice.FindAllStringSubmatch(output, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}

	return cameras
}

func init() {
	Register(config.SourceWebcam, func(cfg *config.Config) (VideoStreamer, error) {
		return NewFFmpegWebcam(cfg.Webcam.DeviceID, cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight()), nil
	})
}
