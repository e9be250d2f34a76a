// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		opts      Options
		wantInOut string
		wantErr   error
	}{
		{name: "defaults", opts: Options{}, wantInOut: "started"},
		{name: "json", opts: Options{Format: FormatJSON}, wantInOut: `"msg":"started"`},
		{name: "logfmt", opts: Options{Format: FormatLogfmt}, wantInOut: "msg=started"},
		{name: "prefix", opts: Options{Prefix: "(ubuntu-latest, x64, 3.12, )"}, wantInOut: "ubuntu-latest"},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: ErrInvalidLevel},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger, err := New(&buf, tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}

			logger.Info("started", "job", 1)
			if !strings.Contains(buf.String(), tt.wantInOut) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.wantInOut)
			}
		})
	}
}

func TestLevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: LevelWarn})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext() without logger returned nil")
	}

	logger := Discard()
	ctx := WithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Errorf("FromContext() = %p, want %p", got, logger)
	}
}
