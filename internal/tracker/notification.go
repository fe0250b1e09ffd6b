package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const notificationNameLimit = 30

// Notification reports labels that reached the absence threshold on one frame.
type Notification struct {
	ID               uuid.UUID
	MissingLabels    []string
	ThresholdSeconds int
	At               time.Time
}

func (n Notification) Title() string {
	return "Objects missing"
}

func (n Notification) Message() string {
	names := make([]string, 0, len(n.MissingLabels))
	for _, l := range n.MissingLabels {
		names = append(names, Shorten(l, notificationNameLimit))
	}

	return fmt.Sprintf("Not seen for more than %d seconds: %s", n.ThresholdSeconds, strings.Join(names, ", "))
}

// Shorten cuts s to limit runes, ending with "..." when it had to cut.
func Shorten(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit || limit <= 3 {
		return s
	}
	return string(r[:limit-3]) + "..."
}
