// mkmscimage packs a directory into a FAT12 disk image for the usbkvm
// firmware's USB mass storage device.
//
// Example:
//
//	mkmscimage --target=rp2040 zig-out/gui zig-out/uhost/folder.c
package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/usbkvm/mscimage/buildflag"
	"github.com/usbkvm/mscimage/config"
	"github.com/usbkvm/mscimage/deviceconfig"
	"github.com/usbkvm/mscimage/humanize"
	"github.com/usbkvm/mscimage/imagebuild"
	"github.com/usbkvm/mscimage/progress"
)

// plan is everything needed to build and write one image.
type plan struct {
	device deviceconfig.DeviceConfig
	source *imagebuild.FsSource
	build  imagebuild.Config
	output imagebuild.Output
}

func makePlan(fsys afero.Fs, srcDir, outPath string) (*plan, error) {
	device, ok := deviceconfig.GetDeviceConfigBySlug(buildflag.Target())
	if !ok {
		return nil, fmt.Errorf("unknown target %q, see mkmscimage targets", buildflag.Target())
	}

	userConfig := config.TargetSpecific(device.Slug)
	label := buildflag.VolumeLabel()
	if label == "" {
		l, err := userConfig.VolumeLabel()
		if err != nil {
			return nil, err
		}
		label = l
	}
	if label == "" {
		label = device.VolumeLabel
	}

	blockSize := buildflag.BlockSize()
	if blockSize == 0 {
		blockSize = device.BlockSize
	}

	format := buildflag.Format()
	if format == "" {
		format = imagebuild.FormatFor(outPath)
	}
	symbol := buildflag.Symbol()
	if symbol == "" {
		symbol = device.Symbol
	}

	userSkip, err := userConfig.Skip()
	if err != nil {
		return nil, err
	}
	source := &imagebuild.FsSource{
		Fs:   fsys,
		Root: srcDir,
		Skip: append(append(append([]string(nil), device.Skip...), userSkip...), buildflag.Skip()...),
	}
	if err := source.CheckSkip(); err != nil {
		return nil, err
	}

	return &plan{
		device: device,
		source: source,
		build: imagebuild.Config{
			BlockSize:   blockSize,
			BlockCount:  buildflag.BlockCount(),
			VolumeLabel: label,
			MaxBytes:    device.FlashBudget,
		},
		output: imagebuild.Output{
			Format:   format,
			Symbol:   symbol,
			ReadOnly: device.ReadOnly,
		},
	}, nil
}

// writeOutput writes to a temporary file next to outPath and renames it
// into place, so that readers never see a partial image.
func writeOutput(outPath string, img *imagebuild.Image, out imagebuild.Output) error {
	if outPath == "-" {
		return img.Encode(os.Stdout, out)
	}
	f, err := os.CreateTemp(filepath.Dir(outPath), ".mkmscimage-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name()) // fails after the rename
	if err := img.Encode(f, out); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), outPath)
}

func run(srcDir, outPath string) error {
	p, err := makePlan(afero.NewOsFs(), srcDir, outPath)
	if err != nil {
		return err
	}
	log.Printf("target %s, label %q, format %s", p.device.Slug, p.build.VolumeLabel, p.output.Format)
	img, err := build(p)
	if err != nil {
		return err
	}
	if err := writeOutput(outPath, img, p.output); err != nil {
		return err
	}
	log.Printf("wrote %s to %s (sha256 %x)",
		humanize.Blocks(img.BlockCount, img.BlockSize),
		outPath,
		sha256.Sum256(img.Data))
	return nil
}

// build runs imagebuild.Build while printing its progress to stderr.
func build(p *plan) (*imagebuild.Image, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter := &progress.Reporter{Out: os.Stderr}
	p.build.Progress = reporter
	done := make(chan struct{})
	go func() {
		defer close(done)
		reporter.Report(ctx)
	}()
	img, err := imagebuild.Build(p.source, p.build)
	cancel()
	<-done
	return img, err
}

func listTargets(w io.Writer) {
	names := make([]string, 0, len(deviceconfig.DeviceConfigs))
	for name := range deviceconfig.DeviceConfigs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cfg := deviceconfig.DeviceConfigs[name]
		budget := "unlimited"
		if cfg.FlashBudget > 0 {
			budget = humanize.Bytes(uint64(cfg.FlashBudget))
		}
		fmt.Fprintf(w, "%-12s %-16s block size %4d, budget %s\n", cfg.Slug, name, cfg.BlockSize, budget)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mkmscimage <source directory> <output file>",
		Short: "Pack a directory into a FAT12 disk image for the usbkvm firmware",
		Long: "Pack a directory into a FAT12 disk image, written as a raw image (.img), " +
			"a C array for the firmware build (.c) or a zstd-compressed image (.zst). " +
			"Use - as the output file to write to stdout.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return run(args[0], args[1])
		},
	}
	buildflag.RegisterPflags(root.Flags())

	root.AddCommand(&cobra.Command{
		Use:   "targets",
		Short: "List the device profiles",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			listTargets(cmd.OutOrStdout())
		},
	})
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
