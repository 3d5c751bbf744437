// Package config reads per-user defaults for the image tooling, such as the
// volume label, from the user's configuration directory.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/usbkvm/mscimage/fat"
)

func userConfigDir() string {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("https://golang.org/pkg/os/#UserConfigDir failed: %v", err)
	}
	return userConfigDir
}

// Typically ~/.config/usbkvm on Linux
// Typically ~/Library/Application\ Support/usbkvm on macOS/Darwin
func usbkvmConfigDir() string {
	return filepath.Join(userConfigDir(), "usbkvm")
}

func Usbkvm() string { return usbkvmConfigDir() }

// TargetDir holds the configuration for one device profile, e.g.
// ~/.config/usbkvm/targets/rp2040.
type TargetDir string

func TargetSpecific(slug string) TargetDir {
	return TargetDir(filepath.Join(usbkvmConfigDir(), "targets", slug))
}

// lookup returns the path of configBaseName in d, or in the global
// configuration directory if d does not contain it.
func (d TargetDir) lookup(configBaseName string) (string, error) {
	for _, fn := range []string{
		filepath.Join(string(d), configBaseName),
		filepath.Join(usbkvmConfigDir(), configBaseName),
	} {
		_, err := os.Stat(fn)
		if err == nil {
			return fn, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", configBaseName, fs.ErrNotExist)
}

// ReadFile returns the trimmed contents of configBaseName in the target
// directory, falling back to the global configuration directory.
func (d TargetDir) ReadFile(configBaseName string) (string, error) {
	fn, err := d.lookup(configBaseName)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(fn)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// VolumeLabel returns the label configured in volume-label.txt, or "" if
// there is none. A label which does not fit the boot sector is an error
// naming the file it came from.
func (d TargetDir) VolumeLabel() (string, error) {
	fn, err := d.lookup("volume-label.txt")
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(fn)
	if err != nil {
		return "", err
	}
	label := strings.TrimSpace(string(b))
	if err := fat.CheckVolumeLabel(label); err != nil {
		return "", fmt.Errorf("%s: %w", fn, err)
	}
	return label, nil
}

// Skip returns the glob patterns listed in skip.txt, one per line. Empty
// lines and lines starting with # are ignored.
func (d TargetDir) Skip() ([]string, error) {
	fn, err := d.lookup("skip.txt")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var patterns []string
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		pattern := strings.TrimSpace(scanner.Text())
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("%s:%d: %q: %w", fn, line, pattern, err)
		}
		patterns = append(patterns, pattern)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
