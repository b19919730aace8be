package shared

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLogLevel(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  log.Level
	}{
		{name: "empty", input: "", want: log.InfoLevel},
		{name: "debug", input: "debug", want: log.DebugLevel},
		{name: "warn", input: "warn", want: log.WarnLevel},
		{name: "unknown", input: "chatty", want: log.InfoLevel},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithLogger(NewLogger(&buf), "component", "test")
	logger.Info("hello")

	if !strings.Contains(buf.String(), "component=test") {
		t.Errorf("expected child logger fields in output, got %q", buf.String())
	}
}

func TestLogSink(t *testing.T) {
	t.Run("child loggers follow a redirect", func(t *testing.T) {
		var terminal, file bytes.Buffer
		sink := NewLogSink(&terminal)
		child := WithLogger(NewLogger(sink), "component", "queue")

		restore := sink.Redirect(&file)
		child.Error("write failed")
		restore()
		child.Info("back")

		if strings.Contains(terminal.String(), "write failed") {
			t.Errorf("expected redirected entry to skip the terminal, got %q", terminal.String())
		}
		if !strings.Contains(file.String(), "write failed") || !strings.Contains(file.String(), "component=queue") {
			t.Errorf("expected entry in redirect target, got %q", file.String())
		}
		if !strings.Contains(terminal.String(), "back") {
			t.Errorf("expected output restored, got %q", terminal.String())
		}
	})

	t.Run("OpenLogFile creates directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "app.log")
		f, err := OpenLogFile(path)
		if err != nil {
			t.Fatalf("OpenLogFile failed: %v", err)
		}
		defer f.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected log file to exist: %v", err)
		}
	})
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected unique ids")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid length 36, got %d", len(a))
	}
}

func TestErrors(t *testing.T) {
	t.Run("APIError falls back to status text", func(t *testing.T) {
		err := NewAPIError(502, "")
		if err.Error() != "Spotify API Error: Bad Gateway" {
			t.Errorf("unexpected message %q", err.Error())
		}
		if !errors.Is(err, ErrAPIRequest) {
			t.Error("APIError should unwrap to ErrAPIRequest")
		}
	})

	t.Run("StoreError", func(t *testing.T) {
		err := fmt.Errorf("insert: %w", &StoreError{Op: "insert", Code: "23505", Message: "duplicate key"})
		if !errors.Is(err, ErrStoreOperation) {
			t.Error("StoreError should unwrap to ErrStoreOperation")
		}
		var se *StoreError
		if !errors.As(err, &se) || se.Code != "23505" {
			t.Errorf("errors.As failed: %v", err)
		}
	})

	t.Run("IsSessionError", func(t *testing.T) {
		if !IsSessionError(fmt.Errorf("wrap: %w", ErrSessionExpired)) {
			t.Error("expected session expired to be a session error")
		}
		if IsSessionError(ErrConfigurationMissing) {
			t.Error("configuration missing is not a session error")
		}
		if !errors.Is(ErrVerifierNotFound, ErrAuthorizationFailed) {
			t.Error("verifier not found should wrap authorization failed")
		}
	})
}

func TestBrowserCommand(t *testing.T) {
	orig := getRuntime
	defer func() { getRuntime = orig }()

	tc := []struct {
		goos    string
		want    string
		wantErr bool
	}{
		{goos: "darwin", want: "open"},
		{goos: "linux", want: "xdg-open"},
		{goos: "windows", want: "rundll32"},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.goos, func(t *testing.T) {
			getRuntime = func() string { return tt.goos }
			cmd, err := browserCommand("https://example.com")
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unsupported platform")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Args[0] != tt.want {
				t.Errorf("expected %s, got %s", tt.want, cmd.Args[0])
			}
		})
	}
}
