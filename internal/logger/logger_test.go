package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	log.Info().Str("job_id", "abc").Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("log output missing message: %s", out)
	}
	if !strings.Contains(out, "job_id") {
		t.Errorf("log output missing field: %s", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	ctx := WithContext(context.Background(), log)
	got := FromContext(ctx)

	got.Info().Msg("from context")
	if !strings.Contains(buf.String(), "from context") {
		t.Errorf("logger from context did not write to original buffer")
	}
}

func TestFromContextFallback(t *testing.T) {
	// A context without a logger must still return a usable logger.
	log := FromContext(context.Background())
	log.Debug().Msg("should not panic")
}
