//go:build linux

package printer

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBaudToSpeed(t *testing.T) {
	for baud, want := range map[int]uint32{1200: unix.B1200, 9600: unix.B9600, 115200: unix.B115200} {
		got, err := baudToSpeed(baud)
		if err != nil || got != want {
			t.Fatalf("baud %d: expected %#x, got %#x (%v)", baud, want, got, err)
		}
	}
	if _, err := baudToSpeed(14400); err == nil {
		t.Fatalf("expected 14400 to be rejected")
	}
}

func TestConfigureTTYSkipsPlainFiles(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "lp0"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	isTTY, err := configureTTY(f, 14400)
	if err != nil || isTTY {
		t.Fatalf("expected plain file left alone, got tty=%v err=%v", isTTY, err)
	}
}
