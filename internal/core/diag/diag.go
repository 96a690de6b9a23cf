// Package diag carries typed diagnostic events from the core to whoever owns the
// request cycle. The core never writes to a logger directly.
package diag

import (
	"context"
	"log/slog"
	"time"
)

type Kind string

const (
	KindCRSNormalized     Kind = "crs_normalized"
	KindExtentTransformed Kind = "extent_transformed"
	KindRequestBuilt      Kind = "request_built"
	KindVersionFallback   Kind = "version_fallback"
	KindFetchFailed       Kind = "fetch_failed"
	KindCoverageStored    Kind = "coverage_stored"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
)

func (l Level) String() string {
	if l == LevelWarn {
		return "warn"
	}
	return "info"
}

type Event struct {
	Kind    Kind
	Level   Level
	Message string
	Fields  map[string]any
	Time    time.Time
}

// Sink receives events. Implementations must not block for long.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

type multi []Sink

func (m multi) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// Multi fans an event out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Emit stamps the event time and forwards it; a nil sink is allowed.
func Emit(ctx context.Context, s Sink, ev Event) {
	if s == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	s.Emit(ctx, ev)
}

type slogSink struct {
	l *slog.Logger
}

// SlogSink writes events to l at the matching level.
func SlogSink(l *slog.Logger) Sink {
	return slogSink{l: l}
}

func (s slogSink) Emit(ctx context.Context, ev Event) {
	attrs := make([]slog.Attr, 0, len(ev.Fields)+1)
	attrs = append(attrs, slog.String("event", string(ev.Kind)))
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	lvl := slog.LevelInfo
	if ev.Level == LevelWarn {
		lvl = slog.LevelWarn
	}
	s.l.LogAttrs(ctx, lvl, ev.Message, attrs...)
}
