package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", 0, true},
		{"", 0, true},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func newBufLogger(t *testing.T, lvl slog.Level) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Options{
		App:        "test",
		Level:      lvl,
		JsonFormat: true,
		Writer:     &buf,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, &buf
}

func lastLine(buf *bytes.Buffer) map[string]any {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	_ = json.Unmarshal([]byte(lines[len(lines)-1]), &out)
	return out
}

func TestInfo_EmitsAppAttrAndMessage(t *testing.T) {
	l, buf := newBufLogger(t, slog.LevelInfo)

	l.Info(context.Background(), "hello", "k", "v")

	rec := lastLine(buf)
	if rec["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", rec["msg"])
	}
	if rec["app"] != "test" {
		t.Errorf("app = %v, want test", rec["app"])
	}
	if rec["k"] != "v" {
		t.Errorf("k = %v, want v", rec["k"])
	}
}

func TestDebug_SuppressedAtInfoLevel(t *testing.T) {
	l, buf := newBufLogger(t, slog.LevelInfo)

	l.Debug(context.Background(), "quiet")
	if buf.Len() != 0 {
		t.Fatalf("debug message emitted at info level: %s", buf.String())
	}
}

func TestWith_AddsPersistentFields(t *testing.T) {
	l, buf := newBufLogger(t, slog.LevelInfo)

	l2 := l.With("component", "server")
	l2.Info(context.Background(), "msg")

	rec := lastLine(buf)
	if rec["component"] != "server" {
		t.Errorf("component = %v, want server", rec["component"])
	}

	// original logger should not carry the field
	buf.Reset()
	l.Info(context.Background(), "msg2")
	rec = lastLine(buf)
	if _, ok := rec["component"]; ok {
		t.Error("With should not mutate the parent logger")
	}
}

func TestError_IncludesChainAndTypes(t *testing.T) {
	l, buf := newBufLogger(t, slog.LevelInfo)

	inner := errors.New("root cause")
	err := fmt.Errorf("outer: %w", inner)
	l.Error(context.Background(), err, "failed")

	rec := lastLine(buf)
	if rec["err"] != "outer: root cause" {
		t.Errorf("err = %v", rec["err"])
	}
	if rec["error_type"] == "" || rec["error_type"] == nil {
		t.Error("error_type missing")
	}
	if rec["cause_type"] == "" || rec["cause_type"] == nil {
		t.Error("cause_type missing")
	}
	chain, ok := rec["error_chain"].([]any)
	if !ok || len(chain) != 2 {
		t.Errorf("error_chain = %v, want 2 entries", rec["error_chain"])
	}
}

func TestError_NilErrorStillLogs(t *testing.T) {
	l, buf := newBufLogger(t, slog.LevelInfo)

	l.Error(context.Background(), nil, "no error object")

	rec := lastLine(buf)
	if rec["msg"] != "no error object" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if _, ok := rec["err"]; ok {
		t.Error("err attr should be absent for nil error")
	}
}

func TestNop_SafeEverywhere(t *testing.T) {
	n := Nop()
	ctx := context.Background()
	n.Debug(ctx, "x")
	n.Info(ctx, "x")
	n.Warn(ctx, "x")
	n.Error(ctx, errors.New("x"), "x")
	if n.With("a", 1) == nil {
		t.Fatal("Nop().With returned nil")
	}
	if err := n.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestFromContext_FallsBackToNop(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext should never return nil")
	}
}

func TestFromContext_RoundTrip(t *testing.T) {
	l, _ := newBufLogger(t, slog.LevelInfo)
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("FromContext did not return the stored logger")
	}
}
