// Package buildflag registers the flags shared by the image tools. Defaults
// can be set through USBKVM_* environment variables.
package buildflag

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/usbkvm/mscimage/imagebuild"
)

var (
	target = func() string {
		def := os.Getenv("USBKVM_TARGET")
		if def == "" {
			def = "rp2040"
		}
		return def
	}()

	volumeLabel = os.Getenv("USBKVM_VOLUME_LABEL")

	blockSize = envInt("USBKVM_BLOCK_SIZE")

	blockCount int

	format imagebuild.Format

	skip = func() []string {
		if def := os.Getenv("USBKVM_SKIP"); def != "" {
			return strings.Split(def, ",")
		}
		return nil
	}()

	symbol string
)

func envInt(name string) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return n
}

func RegisterPflags(fs *pflag.FlagSet) {
	fs.StringVarP(&target,
		"target",
		"t",
		target,
		`device profile, identified by slug (rp2040, rp2350, qemutesting)`)

	fs.StringVar(&volumeLabel,
		"volume_label",
		volumeLabel,
		`volume label (up to 11 characters); defaults to volume-label.txt in the config directory, then the device profile`)

	fs.IntVar(&blockSize,
		"block_size",
		blockSize,
		`block size in bytes; 0 uses the device profile`)

	fs.IntVar(&blockCount,
		"block_count",
		blockCount,
		`number of blocks; 0 estimates the size from the source tree`)

	fs.VarP(&format,
		"format",
		"f",
		`output format (raw, c, zst); defaults to the output file extension`)

	fs.StringSliceVar(&skip,
		"skip",
		skip,
		`glob patterns of files to leave out, in addition to the device profile's`)

	fs.StringVar(&symbol,
		"symbol",
		symbol,
		`name of the C array; empty uses the device profile`)
}

func Target() string { return target }

func SetTarget(t string) { target = t }

func VolumeLabel() string { return volumeLabel }

func BlockSize() int { return blockSize }

func BlockCount() int { return blockCount }

// Format returns the requested output format, or "" to infer it.
func Format() imagebuild.Format { return format }

func Skip() []string { return skip }

func Symbol() string { return symbol }
