package config

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/usbkvm/mscimage/fat"
)

func TestTargetSpecific(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME is only consulted on Linux")
	}
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	if got, want := Usbkvm(), filepath.Join(tmp, "usbkvm"); got != want {
		t.Fatalf("Usbkvm() = %q, want %q", got, want)
	}

	dir := TargetSpecific("rp2040")
	if err := os.MkdirAll(string(dir), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := dir.ReadFile("volume-label.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ReadFile without any config: got %v, want %v", err, fs.ErrNotExist)
	}

	global := filepath.Join(Usbkvm(), "volume-label.txt")
	if err := os.WriteFile(global, []byte("GLOBAL\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := dir.ReadFile("volume-label.txt")
	if err != nil {
		t.Fatal(err)
	}
	if want := "GLOBAL"; got != want {
		t.Errorf("global fallback: got %q, want %q", got, want)
	}

	if err := os.WriteFile(filepath.Join(string(dir), "volume-label.txt"), []byte("  RP2040  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = dir.ReadFile("volume-label.txt")
	if err != nil {
		t.Fatal(err)
	}
	if want := "RP2040"; got != want {
		t.Errorf("target specific: got %q, want %q", got, want)
	}
}

func TestVolumeLabel(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME is only consulted on Linux")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir := TargetSpecific("rp2350")
	if err := os.MkdirAll(string(dir), 0755); err != nil {
		t.Fatal(err)
	}
	label, err := dir.VolumeLabel()
	if err != nil {
		t.Fatal(err)
	}
	if label != "" {
		t.Fatalf("VolumeLabel without any config: got %q, want \"\"", label)
	}

	fn := filepath.Join(string(dir), "volume-label.txt")
	if err := os.WriteFile(fn, []byte("KVM TEST\n"), 0644); err != nil {
		t.Fatal(err)
	}
	label, err = dir.VolumeLabel()
	if err != nil {
		t.Fatal(err)
	}
	if want := "KVM TEST"; label != want {
		t.Errorf("VolumeLabel: got %q, want %q", label, want)
	}

	for _, bad := range []string{"MUCH TOO LONG", "A/B", "a.b"} {
		if err := os.WriteFile(fn, []byte(bad), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := dir.VolumeLabel()
		if !errors.Is(err, fat.ErrNameEncoding) {
			t.Errorf("VolumeLabel(%q): got %v, want %v", bad, err, fat.ErrNameEncoding)
		}
		if err != nil && !strings.Contains(err.Error(), fn) {
			t.Errorf("VolumeLabel(%q): error %q does not name %s", bad, err, fn)
		}
	}
}

func TestSkip(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME is only consulted on Linux")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir := TargetSpecific("rp2040")
	patterns, err := dir.Skip()
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 0 {
		t.Fatalf("Skip without any config: got %q, want none", patterns)
	}

	if err := os.MkdirAll(Usbkvm(), 0755); err != nil {
		t.Fatal(err)
	}
	global := filepath.Join(Usbkvm(), "skip.txt")
	if err := os.WriteFile(global, []byte("# editor files\n*.swp\n\n  build  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	patterns, err = dir.Skip()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"*.swp", "build"}, patterns); diff != "" {
		t.Fatalf("Skip: diff (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(global, []byte("ok\n[unterminated\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := dir.Skip(); !errors.Is(err, path.ErrBadPattern) {
		t.Fatalf("Skip with a malformed pattern: got %v, want %v", err, path.ErrBadPattern)
	}
}
