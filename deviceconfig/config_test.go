package deviceconfig

import (
	"bytes"
	"path"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/usbkvm/mscimage/fat"
	"github.com/usbkvm/mscimage/imagebuild"
)

func TestDeviceConfigsUsable(t *testing.T) {
	slugs := make(map[string]string)
	for dev, cfg := range DeviceConfigs {
		t.Run(dev, func(t *testing.T) {
			if prev, ok := slugs[cfg.Slug]; ok {
				t.Fatalf("slug %q used by %s and %s", cfg.Slug, prev, dev)
			}
			slugs[cfg.Slug] = dev

			if got, ok := GetDeviceConfigBySlug(cfg.Slug); !ok || got.Slug != cfg.Slug {
				t.Fatalf("GetDeviceConfigBySlug(%q) = %v, %v", cfg.Slug, got, ok)
			}

			// geometry and label are accepted by the FAT writer
			if _, err := fat.NewWriter(&bytes.Buffer{}, fat.Config{
				BlockSize:   cfg.BlockSize,
				BlockCount:  fat.MinBlockCount(cfg.BlockSize),
				VolumeLabel: cfg.VolumeLabel,
			}); err != nil {
				t.Fatal(err)
			}

			if cfg.FlashBudget == 0 {
				return
			}
			if cfg.FlashBudget < imagebuild.MinImageSize {
				t.Fatalf("flash budget of %d bytes is below the minimum image size", cfg.FlashBudget)
			}
			if cfg.FlashBudget%int64(cfg.BlockSize) != 0 {
				t.Fatalf("flash budget of %d bytes is not a multiple of the block size %d", cfg.FlashBudget, cfg.BlockSize)
			}
			if max := int64(fat.MaxBlockCount(cfg.BlockSize)) * int64(cfg.BlockSize); cfg.FlashBudget > max {
				t.Fatalf("flash budget of %d bytes exceeds the largest FAT12 image (%d bytes)", cfg.FlashBudget, max)
			}
		})
	}
}

func TestDeviceConfigSkip(t *testing.T) {
	cfg, ok := GetDeviceConfigBySlug("rp2040")
	if !ok {
		t.Fatal("rp2040 profile missing")
	}
	fs := afero.NewMemMapFs()
	for _, p := range []string{
		"/gui/usbkvm_sdl3",
		"/gui/README.txt",
		"/gui/requirements.txt",
		"/gui/__pycache__/kbrd.cpython-311.pyc",
		"/gui/other_guis/gui_pygame.py",
	} {
		if err := fs.MkdirAll(path.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fs, p, []byte(p), 0644); err != nil {
			t.Fatal(err)
		}
	}
	var got []string
	src := &imagebuild.FsSource{Fs: fs, Root: "/gui", Skip: cfg.Skip}
	if err := src.Walk(func(f imagebuild.File) error {
		got = append(got, f.Path)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	want := []string{"README.txt", "usbkvm_sdl3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("walked files: diff (-want +got):\n%s", diff)
	}

	img, err := imagebuild.Build(src, imagebuild.Config{
		BlockSize:   cfg.BlockSize,
		VolumeLabel: cfg.VolumeLabel,
		MaxBytes:    cfg.FlashBudget,
	})
	if err != nil {
		t.Fatal(err)
	}
	if size := int64(len(img.Data)); size > cfg.FlashBudget {
		t.Fatalf("image of %d bytes exceeds the flash budget of %d bytes", size, cfg.FlashBudget)
	}
}
