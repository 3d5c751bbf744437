package fat_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/usbkvm/mscimage/fat"
	"github.com/usbkvm/mscimage/fat/fattest"
)

func FuzzSizes(f *testing.F) {
	f.Add([]byte{40, 0, 0, 0, 26, 4, 0, 0})
	f.Add([]byte{0, 0, 0, 0, 0, 2, 0, 0, 1, 2, 0, 0})
	f.Fuzz(func(t *testing.T, inp []byte) {
		if len(inp)%4 != 0 {
			return
		}
		nInp := len(inp) / 4
		if nInp > 15 {
			return // the root directory has room for 15 files
		}

		var buf bytes.Buffer
		fw, err := fat.NewWriter(&buf, fat.Config{
			BlockSize:  512,
			BlockCount: fat.MaxBlockCount(512),
		})
		if err != nil {
			t.Fatal(err)
		}

		want := make(map[string][]byte)
		for cnt := 0; cnt < nInp; cnt++ {
			fileSize := binary.LittleEndian.Uint32(inp[:4])
			inp = inp[4:]
			if fileSize > 256*1024 {
				return // larger than the image
			}

			name := fmt.Sprintf("%d.txt", cnt)
			content := bytes.Repeat([]byte{byte('a' + cnt)}, int(fileSize))
			err := fw.AddFile(name, content, time.Now())
			if errors.Is(err, fat.ErrExhaustedClusters) {
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			want[name] = content
		}

		if err := fw.Flush(); err != nil {
			t.Fatal(err)
		}

		img, err := fattest.Parse(buf.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		if err := img.Check(); err != nil {
			t.Fatal(err)
		}
		got, err := img.Files()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("Files: diff (-want +got):\n%s", diff)
		}
	})
}
