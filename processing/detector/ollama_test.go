package processing

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	reply string
	err   error
	req   *api.ChatRequest
}

func (f *fakeChat) Chat(_ context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	f.req = req
	if f.err != nil {
		return f.err
	}
	return fn(api.ChatResponse{Message: api.Message{Role: "assistant", Content: f.reply}})
}

func TestOllamaDetectorDetect(t *testing.T) {
	chat := &fakeChat{reply: "```json\n{\"detections\":[{\"class\":1,\"confidence\":0.7,\"box\":[0,0,0.5,0.5]}]}\n```"}
	d := &OllamaDetector{client: chat, model: "llava", prep: FramePrep{MaxSide: 64, Quality: 80}, log: discardLogger()}

	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)), []string{"cat", "red mug"})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 1, dets[0].Class)

	require.NotNil(t, chat.req)
	assert.Equal(t, "llava", chat.req.Model)
	require.Len(t, chat.req.Messages, 1)
	assert.Contains(t, chat.req.Messages[0].Content, "1: red mug")
	assert.Len(t, chat.req.Messages[0].Images, 1)
	require.NotNil(t, chat.req.Stream)
	assert.False(t, *chat.req.Stream)
}

func TestOllamaDetectorChatError(t *testing.T) {
	boom := errors.New("model not found")
	d := &OllamaDetector{client: &fakeChat{err: boom}, model: "llava", log: discardLogger()}

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), []string{"cat"})
	assert.ErrorIs(t, err, boom)
}

func TestParseOllamaDetections(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"plain", `{"detections":[{"class":0,"confidence":0.9,"box":[0,0,1,1]}]}`, 1, false},
		{"empty", `{"detections":[]}`, 0, false},
		{"prose around", `Sure! {"detections":[{"class":2}]} hope that helps`, 1, false},
		{"no json", "I see a cat", 0, true},
		{"broken json", `{"detections":[{"class":}]}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOllamaDetections(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestNewOllamaDetectorURL(t *testing.T) {
	_, err := NewOllamaDetector("http://localhost:11434/api/chat", "llava", FramePrep{})
	assert.NoError(t, err)

	_, err = NewOllamaDetector("localhost", "llava", FramePrep{})
	assert.Error(t, err)
}
