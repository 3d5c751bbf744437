package carray_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/usbkvm/mscimage/carray"
)

func TestWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cw, err := carray.NewWriter(&buf, carray.Options{
		BlockCount: 2,
		BlockSize:  20,
		ReadOnly:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i * 7)
	}
	// split writes must not affect the line breaks
	if _, err := cw.Write(data[:5]); err != nil {
		t.Fatal(err)
	}
	if _, err := cw.Write(data[5:]); err != nil {
		t.Fatal(err)
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}

	want := `enum
{
  DISK_BLOCK_NUM  = 2, // 8KB is the smallest size that windows allow to mount
  DISK_BLOCK_SIZE = 20
};
#define CFG_EXAMPLE_MSC_READONLY


const uint8_t msc_disk[DISK_BLOCK_NUM*DISK_BLOCK_SIZE] =
{
0x00, 0x07, 0x0e, 0x15, 0x1c, 0x23, 0x2a, 0x31, 0x38, 0x3f, 0x46, 0x4d, 0x54, 0x5b, 0x62, 0x69, 
0x70, 0x77, 0x7e, 0x85, 0x8c, 0x93, 0x9a, 0xa1, 0xa8, 0xaf, 0xb6, 0xbd, 0xc4, 0xcb, 0xd2, 0xd9, 
0xe0, 0xe7, 0xee, 0xf5, 0xfc, 0x03, 0x0a, 0x11, 
};
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("unexpected output: diff (-want +got):\n%s", diff)
	}
}

func TestWriterSymbol(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cw, err := carray.NewWriter(&buf, carray.Options{
		BlockCount: 1,
		BlockSize:  512,
		Symbol:     "gui_disk",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cw.Write(make([]byte, 512)); err != nil {
		t.Fatal(err)
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "const uint8_t gui_disk[") {
		t.Errorf("symbol gui_disk not declared:\n%s", out)
	}
	if strings.Contains(out, "READONLY") {
		t.Errorf("read-only define emitted for a writable disk")
	}
	if got, want := strings.Count(out, "0x00, "), 512; got != want {
		t.Errorf("got %d values, want %d", got, want)
	}
	if got, want := strings.Count(out, "\n0x"), 512/16; got != want {
		t.Errorf("got %d value lines, want %d", got, want)
	}
}

func TestWriterSize(t *testing.T) {
	t.Parallel()

	opts := carray.Options{BlockCount: 1, BlockSize: 512}

	cw, err := carray.NewWriter(&bytes.Buffer{}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cw.Write(make([]byte, 100)); err != nil {
		t.Fatal(err)
	}
	if err := cw.Close(); err == nil {
		t.Fatalf("Close after a short write unexpectedly succeeded")
	}

	cw, err = carray.NewWriter(&bytes.Buffer{}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cw.Write(make([]byte, 513)); err == nil {
		t.Fatalf("Write past the declared size unexpectedly succeeded")
	}

	if _, err := carray.NewWriter(&bytes.Buffer{}, carray.Options{}); err == nil {
		t.Fatalf("NewWriter without geometry unexpectedly succeeded")
	}
}
