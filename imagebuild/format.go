package imagebuild

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format selects how an Image is serialized.
type Format string

const (
	// Raw is the image as it would be stored on a block device.
	Raw Format = "raw"

	// CArray is C source declaring the image as a const uint8_t array.
	CArray Format = "c"

	// Zstd is the raw image compressed with Zstandard.
	Zstd Format = "zst"
)

var formats = []Format{Raw, CArray, Zstd}

// String implements pflag.Value.
func (f *Format) String() string { return string(*f) }

// Set implements pflag.Value.
func (f *Format) Set(s string) error {
	for _, known := range formats {
		if Format(s) == known {
			*f = known
			return nil
		}
	}
	return fmt.Errorf("unknown format %q, expected one of %v", s, formats)
}

// Type implements pflag.Value.
func (f *Format) Type() string { return "format" }

// FormatFor infers the format from the extension of an output file name,
// defaulting to Raw.
func FormatFor(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".c", ".h", ".inc":
		return CArray
	case ".zst", ".zstd":
		return Zstd
	}
	return Raw
}
