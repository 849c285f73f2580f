package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	t.Setenv("SKULL_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.txt"))
	os.Unsetenv("HTTP_ADDR")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("FINGER_WAIT_MS")
	os.Unsetenv("FORTUNES_JSON")

	c := Load()

	if c.Server.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr :8080, got %q", c.Server.HTTPAddr)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if c.Device.FingerWaitMs != 6000 || c.Device.CooldownMs != 12000 || c.Device.FingerDetectMs != 120 {
		t.Fatalf("unexpected device defaults %+v", c.Device)
	}
	if c.ConfigFile != "" {
		t.Fatalf("missing config file should not be recorded, got %q", c.ConfigFile)
	}
	if len(c.Fortune.Candidates) != 2 || c.Fortune.Candidates[1] != "/printer/fortunes.json" {
		t.Fatalf("unexpected fortune candidates %v", c.Fortune.Candidates)
	}
}

func TestLoadDeviceFile(t *testing.T) {
	os.Unsetenv("FINGER_WAIT_MS")
	path := filepath.Join(t.TempDir(), "config.txt")
	body := "# skull config\n" +
		"finger_wait_ms=4000\n" +
		"cooldown_ms=2000\n" +
		"fortunes_json=/printer/a.json, /printer/b.json\n" +
		"mouth_led_bright=999\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c := LoadFrom(path)

	if c.ConfigFile != path {
		t.Fatalf("expected config file %q recorded, got %q", path, c.ConfigFile)
	}
	if c.Device.FingerWaitMs != 4000 {
		t.Fatalf("expected finger wait from file, got %d", c.Device.FingerWaitMs)
	}
	if c.Device.CooldownMs != 12000 {
		t.Fatalf("expected out-of-range cooldown to fall back, got %d", c.Device.CooldownMs)
	}
	if c.Lights.MouthBright != 255 {
		t.Fatalf("expected brightness clamped to 255, got %d", c.Lights.MouthBright)
	}
	want := []string{"/printer/a.json", "/printer/b.json", "/printer/fortunes.json"}
	if len(c.Fortune.Candidates) != len(want) {
		t.Fatalf("unexpected candidates %v", c.Fortune.Candidates)
	}
	for i := range want {
		if c.Fortune.Candidates[i] != want[i] {
			t.Fatalf("unexpected candidates %v", c.Fortune.Candidates)
		}
	}
}

func TestEnvOverridesDeviceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	if err := os.WriteFile(path, []byte("finger_wait_ms=4000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FINGER_WAIT_MS", "7000")

	c := LoadFrom(path)
	if c.Device.FingerWaitMs != 7000 {
		t.Fatalf("expected env to win, got %d", c.Device.FingerWaitMs)
	}
}

func TestInvalidSnapBoundsFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	if err := os.WriteFile(path, []byte("snap_delay_min_ms=3000\nsnap_delay_max_ms=2000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c := LoadFrom(path)
	if c.Device.SnapDelayMinMs != 1000 || c.Device.SnapDelayMaxMs != 3000 {
		t.Fatalf("expected default snap bounds, got %d-%d", c.Device.SnapDelayMinMs, c.Device.SnapDelayMaxMs)
	}
}

func TestSnapshot(t *testing.T) {
	c := LoadFrom("")
	s := c.Snapshot()
	if s.FingerWaitMs != uint32(c.Device.FingerWaitMs) || s.CooldownMs != uint32(c.Device.CooldownMs) {
		t.Fatalf("snapshot durations mismatch: %+v", s)
	}
	if s.FingerStableMs != 120 || s.SnapDelayMinMs != 1000 || s.SnapDelayMaxMs != 3000 {
		t.Fatalf("unexpected snapshot timings %+v", s)
	}
	if s.WelcomeDir != "/audio/welcome" || s.FortuneDoneDir != "/audio/fortune_told" {
		t.Fatalf("unexpected snapshot dirs %+v", s)
	}
	s.FortuneTemplateCandidates[0] = "changed"
	if c.Fortune.Candidates[0] == "changed" {
		t.Fatalf("snapshot shares candidate slice with config")
	}
}

func TestNonStandardBaudFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	if err := os.WriteFile(path, []byte("printer_baud=14400\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if c := LoadFrom(path); c.Printer.Baud != 9600 {
		t.Fatalf("expected default baud, got %d", c.Printer.Baud)
	}
	if err := os.WriteFile(path, []byte("printer_baud=19200\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if c := LoadFrom(path); c.Printer.Baud != 19200 {
		t.Fatalf("expected 19200 kept, got %d", c.Printer.Baud)
	}
}
