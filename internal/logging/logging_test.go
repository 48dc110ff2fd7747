// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewDefaultsToInfoText(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	logger := New(cfg)

	logger.Debug("should not appear")
	logger.Info("hello", "key", "value")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Error("debug record should be filtered at info level")
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "key=value") {
		t.Errorf("expected info record with key=value, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: "debug", Format: "json", Output: &buf}
	logger := New(cfg)

	logger.Debug("json record")
	if !strings.Contains(buf.String(), `"msg":"json record"`) {
		t.Errorf("expected json record, got %q", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: "info", Format: "text", Output: &buf}
	logger := New(cfg).WithComponent("notifier")

	logger.Info("starting")
	if !strings.Contains(buf.String(), "component=notifier") {
		t.Errorf("expected component=notifier, got %q", buf.String())
	}
}

func TestSetDefaultAndPackageLevelFuncs(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: "info", Format: "text", Output: &buf}
	prior := Default()
	defer SetDefault(prior)

	SetDefault(New(cfg))
	Info("package level info")
	if !strings.Contains(buf.String(), "package level info") {
		t.Errorf("expected package level info, got %q", buf.String())
	}
}
