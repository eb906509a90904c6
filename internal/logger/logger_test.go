package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" Warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERR", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, c := range cases {
		if got := parseLevel(c.in); got != c.want {
			t.Fatalf("parseLevel(%q)=%v, want %v", c.in, got, c.want)
		}
	}
}

func TestInitReadsEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "true")
	Init()
	if L().GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", L().GetLevel())
	}
}

func TestL_InitializesZeroLogger(t *testing.T) {
	base = zerolog.Logger{}
	if lg := L(); lg.GetLevel() == zerolog.NoLevel {
		t.Fatalf("logger level not initialized")
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	return m
}

func TestInitWith_ServiceAndVersion(t *testing.T) {
	t.Setenv("APP_VERSION", "1.4.0")
	var buf bytes.Buffer
	InitWith(&buf, zerolog.InfoLevel)
	t.Cleanup(Init)

	L().Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %s", buf.String())
	}
	L().Info().Msg("hello")
	m := decodeLine(t, &buf)
	if m["service"] != "stockmeter" || m["version"] != "1.4.0" || m["message"] != "hello" {
		t.Fatalf("unexpected fields %v", m)
	}
}

func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	InitWith(&buf, zerolog.InfoLevel)
	t.Cleanup(Init)

	Ctx(context.Background()).Info().Msg("plain")
	if m := decodeLine(t, &buf); m["request_id"] != nil {
		t.Fatalf("global logger must not carry a request id: %v", m)
	}

	buf.Reset()
	ctx := WithRequestID(context.Background(), "rid-1")
	Ctx(ctx).Info().Msg("tagged")
	if m := decodeLine(t, &buf); m["request_id"] != "rid-1" || m["service"] != "stockmeter" {
		t.Fatalf("unexpected fields %v", m)
	}
}
