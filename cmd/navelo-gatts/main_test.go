package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/navelo-gatts/internal/config"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig("", quietLogger())
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Device.Name != config.Default().Device.Name {
		t.Errorf("Device.Name = %q, want default", cfg.Device.Name)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte("device:\n  name: Bench\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path, quietLogger())
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Device.Name != "Bench" {
		t.Errorf("Device.Name = %q, want %q", cfg.Device.Name, "Bench")
	}
}

func TestConfigInitThenShow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	app := newApp()
	app.Writer = io.Discard
	if err := app.Run([]string{"navelo-gatts", "config", "init"}); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(config.DefaultConfigPath()); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	var out bytes.Buffer
	app = newApp()
	app.Writer = &out
	if err := app.Run([]string{"navelo-gatts", "--log-level", "debug", "config", "show"}); err != nil {
		t.Fatalf("config show: %v", err)
	}

	var shown config.Config
	if err := yaml.Unmarshal(out.Bytes(), &shown); err != nil {
		t.Fatalf("config show printed invalid YAML: %v\n%s", err, out.String())
	}
	if shown.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want override %q", shown.LogLevel, "debug")
	}
	if shown.Service.UUID != config.Default().Service.UUID {
		t.Errorf("Service.UUID = %q", shown.Service.UUID)
	}
}

func TestConfigShowRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("service:\n  max_len: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	app := newApp()
	app.Writer = io.Discard
	err := app.Run([]string{"navelo-gatts", "-c", path, "config", "show"})
	if err == nil || !strings.Contains(err.Error(), "max_len") {
		t.Errorf("config show error = %v, want max_len validation failure", err)
	}
}
