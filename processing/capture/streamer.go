package capture

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"objwatch/internal/config"
)

var (
	ErrUnknownSource = errors.New("unknown video source")
	ErrNoCamera      = errors.New("no camera could be opened")
)

// VideoStreamer produces frames until stopped or until the source fails.
// FrameChan is closed when the stream ends; a failure is reported on
// ErrorChan first.
type VideoStreamer interface {
	Start() error
	Stop()
	FrameChan() <-chan image.Image
	ErrorChan() <-chan error
}

// Constructor builds a streamer for one source type from the configuration.
type Constructor func(cfg *config.Config) (VideoStreamer, error)

var (
	registryMu sync.RWMutex
	registry   = map[config.SourceType]Constructor{}
)

// Register makes a source available to NewStreamer. Registering the same
// source twice replaces the earlier constructor.
func Register(source config.SourceType, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[source] = ctor
}

// Sources lists registered source types in name order.
func Sources() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, string(s))
	}
	sort.Strings(out)

	return out
}

func NewStreamer(cfg *config.Config) (VideoStreamer, error) {
	source := cfg.GetSource()

	registryMu.RLock()
	ctor, ok := registry[source]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	return ctor(cfg)
}
