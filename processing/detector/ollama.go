package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"objwatch/internal/models"
)

type chatClient interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// OllamaDetector asks a vision model served by Ollama which vocabulary
// entries are visible in the frame.
type OllamaDetector struct {
	client chatClient
	model  string
	prep   FramePrep
	log    *slog.Logger
}

func NewOllamaDetector(serverURL, model string, prep FramePrep) (*OllamaDetector, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: need scheme and host", serverURL)
	}

	// Drop any path such as /api/chat; the client adds its own.
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}

	return &OllamaDetector{
		client: api.NewClient(base, http.DefaultClient),
		model:  model,
		prep:   prep,
		log:    slog.With("component", "detector", "backend", "ollama", "model", model),
	}, nil
}

func (d *OllamaDetector) Detect(ctx context.Context, frame image.Image, vocab []string) ([]models.Detection, error) {
	imgBytes, err := d.prep.Encode(frame)
	if err != nil {
		return nil, err
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: d.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: detectionPrompt(vocab),
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": 0},
	}

	var content strings.Builder
	err = d.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	dets, err := parseOllamaDetections(content.String())
	if err != nil {
		d.log.Debug("unparseable model output", "content", content.String())
		return nil, err
	}

	return dets, nil
}

func (d *OllamaDetector) Close() error { return nil }

func detectionPrompt(vocab []string) string {
	var b strings.Builder

	b.WriteString("You are an object detector. Classes:\n")
	for i, label := range vocab {
		fmt.Fprintf(&b, "%d: %s\n", i, label)
	}
	b.WriteString(`Report every class that is visible in the image. Reply with JSON only:
{"detections":[{"class":<index>,"confidence":<0..1>,"box":[x1,y1,x2,y2]}]}
Box coordinates are normalized to 0..1. Reply {"detections":[]} when none is visible.`)

	return b.String()
}

var errNoJSON = errors.New("no JSON object in model output")

type ollamaReply struct {
	Detections []models.Detection `json:"detections"`
}

// parseOllamaDetections accepts the reply object, optionally wrapped in
// prose or a code fence.
func parseOllamaDetections(raw string) ([]models.Detection, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}

	var reply ollamaReply
	if err := json.Unmarshal([]byte(raw[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	return reply.Detections, nil
}
