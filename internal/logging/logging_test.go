package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWritesJSONToBuffers(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", &buf)
	logger.Info().Str("ticker", "NVDA").Float64("price", 123.45).Msg("price resolved")

	out := buf.String()
	if !strings.Contains(out, `"ticker":"NVDA"`) {
		t.Fatalf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, "price resolved") {
		t.Fatalf("expected message in output, got %q", out)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", &buf)
	logger.Info().Msg("hidden")
	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info/debug to be filtered, got %q", buf.String())
	}

	logger.Warn().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn output, got %q", buf.String())
	}
}

func TestSilentAndOrSilent(t *testing.T) {
	// Must not panic.
	Silent().Error().Str("key", "value").Msg("discarded")
	OrSilent(nil).Warn().Msg("discarded")

	var buf bytes.Buffer
	l := New("info", &buf)
	if OrSilent(l) != l {
		t.Fatalf("OrSilent should return the given logger")
	}
}
