package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"objwatch/internal/config"
)

var ErrNoVideoStream = errors.New("no video stream found")

// NewLocalStreamer plays a video file through ffmpeg at targetFPS, scaled
// to width x height.
func NewLocalStreamer(path string, targetFPS uint, width, height int) (VideoStreamer, error) {
	if _, _, err := probeVideoDimensions(path); err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}

	if targetFPS == 0 {
		targetFPS = standardFPS
	}

	args := []string{
		"-i", path,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d:flags=neighbor", targetFPS, width, height),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	}

	log := slog.With("component", "capture", "source", config.SourceLocal, "path", path)

	return newFFmpegStreamer(args, width, height, targetFPS, log), nil
}

const standardFPS uint = 30

type probeData struct {
	Streams []struct {
		Width  uint16 `json:"width"`
		Height uint16 `json:"height"`
	} `json:"streams"`
}

func probeVideoDimensions(path string) (uint16, uint16, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, 0, err
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (uint16, uint16, error) {
	var data probeData
	if err := json.Unmarshal(output, &data); err != nil {
		return 0, 0, err
	}

	if len(data.Streams) == 0 {
		return 0, 0, ErrNoVideoStream
	}

	return data.Streams[0].Width, data.Streams[0].Height, nil
}

func init() {
	Register(config.SourceLocal, func(cfg *config.Config) (VideoStreamer, error) {
		if cfg.Local.Path == "" {
			return nil, errors.New("local source needs a video path")
		}
		return NewLocalStreamer(cfg.Local.Path, cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight())
	})
}
