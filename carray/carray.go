// Package carray renders a disk image as C source, for embedding it into
// the firmware of a USB mass storage device.
package carray

import (
	"bufio"
	"fmt"
	"io"
)

// DefaultSymbol is the array name the firmware's MSC callbacks refer to.
const DefaultSymbol = "msc_disk"

// valuesPerLine is the number of byte literals on each line of output.
const valuesPerLine = 16

type Options struct {
	BlockCount int
	BlockSize  int

	// Symbol is the name of the array. Defaults to DefaultSymbol.
	Symbol string

	// ReadOnly emits CFG_EXAMPLE_MSC_READONLY, which makes the firmware
	// reject writes from the host.
	ReadOnly bool
}

const header = `enum
{
  DISK_BLOCK_NUM  = %d, // 8KB is the smallest size that windows allow to mount
  DISK_BLOCK_SIZE = %d
};
`

// Writer is an io.WriteCloser which formats the bytes written to it as the
// initializer of a const uint8_t array.
type Writer struct {
	w    *bufio.Writer
	opts Options
	n    int64
	err  error
}

// NewWriter writes the declarations for an image of opts.BlockCount blocks
// of opts.BlockSize bytes to w. Exactly that many bytes must be written
// before calling Close.
func NewWriter(w io.Writer, opts Options) (*Writer, error) {
	if opts.BlockCount <= 0 || opts.BlockSize <= 0 {
		return nil, fmt.Errorf("carray: invalid geometry %d×%d", opts.BlockCount, opts.BlockSize)
	}
	if opts.Symbol == "" {
		opts.Symbol = DefaultSymbol
	}
	cw := &Writer{
		w:    bufio.NewWriter(w),
		opts: opts,
	}
	fmt.Fprintf(cw.w, header, opts.BlockCount, opts.BlockSize)
	if opts.ReadOnly {
		fmt.Fprintf(cw.w, "#define CFG_EXAMPLE_MSC_READONLY\n")
	}
	fmt.Fprintf(cw.w, "\n\nconst uint8_t %s[DISK_BLOCK_NUM*DISK_BLOCK_SIZE] =\n{", opts.Symbol)
	return cw, nil
}

func (cw *Writer) size() int64 {
	return int64(cw.opts.BlockCount) * int64(cw.opts.BlockSize)
}

func (cw *Writer) Write(p []byte) (n int, err error) {
	if cw.err != nil {
		return 0, cw.err
	}
	if cw.n+int64(len(p)) > cw.size() {
		cw.err = fmt.Errorf("carray: %d bytes exceed the declared size of %d bytes", cw.n+int64(len(p)), cw.size())
		return 0, cw.err
	}
	for _, b := range p {
		if cw.n%valuesPerLine == 0 {
			cw.w.WriteByte('\n')
		}
		fmt.Fprintf(cw.w, "0x%02x, ", b)
		cw.n++
	}
	// bufio.Writer errors are sticky
	if _, err := cw.w.Write(nil); err != nil {
		cw.err = err
		return 0, err
	}
	return len(p), nil
}

// Close terminates the array and flushes all output.
func (cw *Writer) Close() error {
	if cw.err != nil {
		return cw.err
	}
	if cw.n != cw.size() {
		return fmt.Errorf("carray: %d bytes written, the array declares %d", cw.n, cw.size())
	}
	cw.w.WriteString("\n};\n")
	return cw.w.Flush()
}
