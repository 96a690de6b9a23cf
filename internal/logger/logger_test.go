package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestSlogBridge_WritesContextFieldsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "test"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithCoverageID(ctx, "dgm_1")
	l.With("service", "wcs").InfoContext(ctx, "described", "fields", 3, "err", errors.New("x"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":         "described",
		"level":       "info",
		"component":   "test",
		"request_id":  "req-1",
		"coverage_id": "dgm_1",
		"service":     "wcs",
		"fields":      float64(3),
		"err":         "x",
	}
	for k, v := range want {
		if line[k] != v {
			t.Fatalf("field %q=%v want %v (line %s)", k, line[k], v, buf.String())
		}
	}
}

func TestSlogBridge_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)

	l.Info("dropped")
	l.Debug("dropped too")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
	l.Warn("kept")
	if !strings.Contains(buf.String(), `"kept"`) {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("generated id %q", id)
	}
}
