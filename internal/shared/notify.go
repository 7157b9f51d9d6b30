package shared

import (
	"context"
	"log/slog"
	"sync"
)

// Indicator is the colour of a user-facing notification.
type Indicator string

const (
	IndicatorGreen  Indicator = "green"
	IndicatorOrange Indicator = "orange"
	IndicatorRed    Indicator = "red"
)

// Notification is a transient message surfaced to the caller of a hook.
type Notification struct {
	Indicator Indicator `json:"indicator"`
	Message   string    `json:"message"`
}

// Notifier receives notifications for a single operation call.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Recorder collects notifications so handlers can return them.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// Items returns a copy of the collected notifications.
func (r *Recorder) Items() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// LogNotifier writes notifications to a logger; used by background jobs.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, note Notification) {
	if n.Logger == nil {
		return
	}
	level := slog.LevelInfo
	switch note.Indicator {
	case IndicatorOrange:
		level = slog.LevelWarn
	case IndicatorRed:
		level = slog.LevelError
	}
	n.Logger.Log(ctx, level, note.Message, slog.String("indicator", string(note.Indicator)))
}

// Discard drops every notification.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, Notification) {}
