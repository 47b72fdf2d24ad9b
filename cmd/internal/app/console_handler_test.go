package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	if got, want := stripANSI(in), "INFO plain ERR"; got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestConsoleHandler_Line(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("session_id", "01HX").WithGroup("ws").Warn("ws.session.close", "reason", "client gone", "status", 101)

	line := buf.String()
	for _, want := range []string{"WARN ", "ws.session.close", " session_id=01HX", `ws.reason="client gone"`, "ws.status=101"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("colour disabled but line has escapes: %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("line not terminated: %q", line)
	}
}

func TestConsoleHandler_ColourAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, true))

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %q", buf.String())
	}

	log.Error("http.request", "status", 503)
	line := buf.String()
	if !strings.Contains(line, ansiRed+"503"+ansiReset) {
		t.Fatalf("status not coloured: %q", line)
	}
	if plain := stripANSI(line); !strings.Contains(plain, "ERROR http.request status=503") {
		t.Fatalf("plain line=%q", plain)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "json", false)
	log.Info("dropped")
	log.Warn("kept", "k", 1)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"k":1`) {
		t.Fatalf("json line=%s", out)
	}
}
