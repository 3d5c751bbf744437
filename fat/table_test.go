package fat

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/usbkvm/mscimage/fat/fattest"
)

// chain allocates n clusters and links them.
func chain(t *testing.T, tbl *Table, n int) []uint16 {
	t.Helper()
	var clusters []uint16
	for i := 0; i < n; i++ {
		c, err := tbl.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 {
			if err := tbl.SetNext(clusters[i-1], c); err != nil {
				t.Fatal(err)
			}
		}
		clusters = append(clusters, c)
	}
	if err := tbl.SetEnd(clusters[n-1]); err != nil {
		t.Fatal(err)
	}
	return clusters
}

func TestTableEncode(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		entries int
		chains  []int
		want    []byte
	}{
		{
			name:    "even",
			entries: 8,
			chains:  []int{3},
			want: []byte{
				0xF8, 0xFF, 0xFF,
				0x03, 0x40, 0x00,
				0xFF, 0x0F, 0x00,
				0x00, 0x00, 0x00,
			},
		},

		{
			name:    "odd",
			entries: 5,
			chains:  []int{1, 2},
			want: []byte{
				0xF8, 0xFF, 0xFF,
				0xFF, 0x4F, 0x00,
				0xFF, 0x0F,
			},
		},

		{
			name:    "reserved only",
			entries: 4,
			want: []byte{
				0xF8, 0xFF, 0xFF,
				0x00, 0x00, 0x00,
			},
		},
	} {
		tt := tt // copy
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tbl := NewTable(tt.entries, tt.entries-firstCluster)
			for _, n := range tt.chains {
				chain(t, tbl, n)
			}
			got, err := tbl.Encode()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Encode: unexpected bytes: diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTableRoundTrip(t *testing.T) {
	t.Parallel()

	for _, blockSize := range []int{512, 1024, 2048, 4096} {
		cfg := Config{BlockSize: blockSize}
		entries := cfg.fatEntries()
		tbl := NewTable(entries, entries-firstCluster)
		rnd := rand.New(rand.NewSource(int64(blockSize)))
		for {
			n := 1 + rnd.Intn(20)
			if tbl.hint+n > tbl.limit {
				break
			}
			chain(t, tbl, n)
		}
		want := append([]uint16(nil), tbl.entries...)
		b, err := tbl.Encode()
		if err != nil {
			t.Fatal(err)
		}
		if got, want := len(b), (3*entries+1)/2; got != want {
			t.Errorf("block size %d: encoded FAT is %d bytes, want %d", blockSize, got, want)
		}
		if got, want := len(b), blockSize; got > want {
			t.Errorf("block size %d: encoded FAT (%d bytes) exceeds its block", blockSize, got)
		}
		got := fattest.DecodeFAT(b, entries)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("block size %d: round trip: diff (-want +got):\n%s", blockSize, diff)
		}
	}
}

func TestTableAllocate(t *testing.T) {
	t.Parallel()

	tbl := NewTable(10, 3)
	var got []uint16
	for i := 0; i < 3; i++ {
		c, err := tbl.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, c)
	}
	if diff := cmp.Diff([]uint16{2, 3, 4}, got); diff != "" {
		t.Fatalf("Allocate: diff (-want +got):\n%s", diff)
	}
	if _, err := tbl.Allocate(); !errors.Is(err, ErrExhaustedClusters) {
		t.Fatalf("Allocate on a full table: got %v, want %v", err, ErrExhaustedClusters)
	}
}

func TestTableInvariants(t *testing.T) {
	t.Parallel()

	tbl := NewTable(16, 14)
	a, _ := tbl.Allocate()
	b, _ := tbl.Allocate()
	c, _ := tbl.Allocate()

	if err := tbl.SetNext(a, 9); !errors.Is(err, ErrInvariant) {
		t.Errorf("SetNext to an unallocated cluster: got %v, want %v", err, ErrInvariant)
	}
	if err := tbl.SetNext(a, a); !errors.Is(err, ErrInvariant) {
		t.Errorf("SetNext to itself: got %v, want %v", err, ErrInvariant)
	}
	if err := tbl.SetEnd(0); !errors.Is(err, ErrInvariant) {
		t.Errorf("SetEnd on a reserved entry: got %v, want %v", err, ErrInvariant)
	}
	if err := tbl.SetNext(a, c); err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetNext(b, c); !errors.Is(err, ErrInvariant) {
		t.Errorf("SetNext to a referenced cluster: got %v, want %v", err, ErrInvariant)
	}
	if err := tbl.SetEnd(a); !errors.Is(err, ErrInvariant) {
		t.Errorf("SetEnd on a linked cluster: got %v, want %v", err, ErrInvariant)
	}
	if _, err := tbl.Encode(); !errors.Is(err, ErrInvariant) {
		t.Errorf("Encode with unlinked clusters: got %v, want %v", err, ErrInvariant)
	}

	if err := tbl.SetEnd(b); err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetEnd(c); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Encode(); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Allocate(); !errors.Is(err, ErrInvariant) {
		t.Errorf("Allocate after Encode: got %v, want %v", err, ErrInvariant)
	}
}
