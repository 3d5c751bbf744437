package imagebuild

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/usbkvm/mscimage/carray"
)

// Image is a complete FAT12 disk image.
type Image struct {
	Data       []byte
	BlockCount int
	BlockSize  int
	VolumeID   uint32
}

// WriteTo writes the raw image to w.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	return bytes.NewReader(img.Data).WriteTo(w)
}

// Output configures Encode.
type Output struct {
	Format Format

	// Symbol and ReadOnly apply to CArray only, see carray.Options.
	Symbol   string
	ReadOnly bool
}

// Encode serializes the image to w in the requested format.
func (img *Image) Encode(w io.Writer, out Output) error {
	switch out.Format {
	case Raw, "":
		_, err := img.WriteTo(w)
		return err

	case CArray:
		cw, err := carray.NewWriter(w, carray.Options{
			BlockCount: img.BlockCount,
			BlockSize:  img.BlockSize,
			Symbol:     out.Symbol,
			ReadOnly:   out.ReadOnly,
		})
		if err != nil {
			return err
		}
		if _, err := img.WriteTo(cw); err != nil {
			return err
		}
		return cw.Close()

	case Zstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return err
		}
		if _, err := img.WriteTo(zw); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()

	default:
		return fmt.Errorf("unknown format %q", out.Format)
	}
}
