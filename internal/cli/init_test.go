package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"paycal/internal/config"
	applog "paycal/internal/log"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.Config
		wantErr   bool
		wantDebug bool
	}{
		{"json debug", config.Config{LogLevel: "debug", LogFormat: "json"}, false, true},
		{"bad level", config.Config{LogLevel: "loud", LogFormat: "json"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := SetupLogger(&tt.cfg, applog.ComponentWorker, &buf)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			logger.Debug("details")
			logger.Info("started")

			lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
			wantLines := 1
			if tt.wantDebug {
				wantLines = 2
			}
			if len(lines) != wantLines {
				t.Fatalf("got %d lines: %s", len(lines), buf.String())
			}
			var rec map[string]any
			if err := json.Unmarshal(lines[len(lines)-1], &rec); err != nil {
				t.Fatalf("not JSON: %v", err)
			}
			if rec[applog.FieldComponent] != applog.ComponentWorker {
				t.Errorf("component = %v", rec[applog.FieldComponent])
			}
		})
	}
}

func TestSetupLoggerUnknownFormatFallsBackToText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := SetupLogger(&config.Config{LogFormat: "xml"}, applog.ComponentApp, &buf)
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
	logger.Info("hello")
	if !bytes.Contains(buf.Bytes(), []byte("msg=hello")) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestShutdownTimeout(t *testing.T) {
	logger := applog.New(applog.Config{Output: &bytes.Buffer{}})

	var ran bool
	shutdown(logger, time.Second, func(ctx context.Context) { ran = true })
	if !ran {
		t.Error("cleanup did not run")
	}

	start := time.Now()
	shutdown(logger, 20*time.Millisecond, func(ctx context.Context) { time.Sleep(time.Second) })
	if time.Since(start) > 500*time.Millisecond {
		t.Error("shutdown waited past its timeout")
	}
}
