// Package fattest provides a strict, minimal FAT12 reader for verifying
// images in tests. It is deliberately independent of package fat.
package fattest

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"
	"time"
	"unicode/utf16"
)

const (
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrLongName  = 0x0F
	entrySize     = 32
)

// Image is a parsed FAT12 image.
type Image struct {
	BlockSize   int
	BlockCount  int
	RootEntries int
	Media       uint8
	VolumeID    uint32
	// BootLabel is the volume label from the boot sector, Label the one
	// from the root directory.
	BootLabel string
	Label     string
	FAT       []uint16

	data     []byte
	rootOff  int
	dataOff  int
	clusters int
}

// Entry is a file or directory found in the image.
type Entry struct {
	// Path is slash separated and relative to the root directory.
	Path        string
	Short       string
	Attr        uint8
	Cluster     uint16
	Size        uint32
	ModTime     time.Time
	LongEntries int
}

func (e Entry) IsDir() bool { return e.Attr&attrDirectory != 0 }

// Checksum computes the long name checksum of an 11 byte short name.
func Checksum(short []byte) uint8 {
	var sum uint8
	for _, c := range short[:11] {
		sum = bits.RotateLeft8(sum, -1) + c
	}
	return sum
}

// DecodeFAT unpacks n 12 bit entries from b.
func DecodeFAT(b []byte, n int) []uint16 {
	entries := make([]uint16, n)
	for i := range entries {
		off := i * 3 / 2
		v := uint16(b[off])
		if off+1 < len(b) {
			v |= uint16(b[off+1]) << 8
		}
		if i%2 == 0 {
			entries[i] = v & 0x0FFF
		} else {
			entries[i] = v >> 4
		}
	}
	return entries
}

// UnmarshalTimeDate converts a DOS time and date to a time.Time in UTC.
func UnmarshalTimeDate(t, d uint16) time.Time {
	return time.Date(
		1980+int(d>>9),
		time.Month(d>>5&0x0F),
		int(d&0x1F),
		int(t>>11),
		int(t>>5&0x3F),
		int(t&0x1F)*2,
		0,
		time.UTC)
}

// Parse validates the boot sector of data and decodes its FAT.
func Parse(data []byte) (*Image, error) {
	if len(data) < 512 {
		return nil, fmt.Errorf("image too short: %d bytes", len(data))
	}
	if data[510] != 0x55 || data[511] != 0xAA {
		return nil, fmt.Errorf("missing boot sector signature: % x", data[510:512])
	}
	le := binary.LittleEndian
	img := &Image{
		data:        data,
		BlockSize:   int(le.Uint16(data[11:13])),
		RootEntries: int(le.Uint16(data[17:19])),
		BlockCount:  int(le.Uint16(data[19:21])),
		Media:       data[21],
		VolumeID:    le.Uint32(data[39:43]),
		BootLabel:   strings.TrimRight(string(data[43:54]), " "),
	}
	if img.BlockCount == 0 {
		img.BlockCount = int(le.Uint32(data[32:36]))
	}
	if img.BlockSize < 512 || img.BlockSize&(img.BlockSize-1) != 0 {
		return nil, fmt.Errorf("invalid block size %d", img.BlockSize)
	}
	if spc := data[13]; spc != 1 {
		return nil, fmt.Errorf("unsupported: %d blocks per cluster", spc)
	}
	if got, want := len(data), img.BlockCount*img.BlockSize; got != want {
		return nil, fmt.Errorf("image is %d bytes, boot sector says %d", got, want)
	}
	reserved := int(le.Uint16(data[14:16]))
	numFATs := int(data[16])
	fatBlocks := int(le.Uint16(data[22:24]))
	if reserved == 0 || numFATs == 0 || fatBlocks == 0 {
		return nil, fmt.Errorf("invalid BPB: reserved=%d fats=%d fat blocks=%d", reserved, numFATs, fatBlocks)
	}
	rootBlocks := (img.RootEntries*entrySize + img.BlockSize - 1) / img.BlockSize
	fatOff := reserved * img.BlockSize
	img.rootOff = fatOff + numFATs*fatBlocks*img.BlockSize
	img.dataOff = img.rootOff + rootBlocks*img.BlockSize
	img.clusters = img.BlockCount - reserved - numFATs*fatBlocks - rootBlocks
	if img.clusters <= 0 || img.clusters >= 4085 {
		return nil, fmt.Errorf("%d clusters: not a FAT12 file system", img.clusters)
	}
	fatBytes := fatBlocks * img.BlockSize
	n := fatBytes * 2 / 3
	if n < img.clusters+2 {
		return nil, fmt.Errorf("FAT has room for %d entries, %d clusters need %d", n, img.clusters, img.clusters+2)
	}
	img.FAT = DecodeFAT(data[fatOff:fatOff+fatBytes], n)
	if img.FAT[0] != 0xF00|uint16(img.Media) {
		return nil, fmt.Errorf("FAT[0] = %#03x does not match media descriptor %#02x", img.FAT[0], img.Media)
	}
	img.Label = img.rootLabel()
	return img, nil
}

// rootLabel returns the name of the volume label entry in the root
// directory, if any.
func (img *Image) rootLabel() string {
	for i := 0; i < img.RootEntries; i++ {
		off := img.rootOff + i*entrySize
		if off+entrySize > img.dataOff {
			break
		}
		e := img.data[off : off+entrySize]
		if e[0] == 0x00 {
			break
		}
		if e[0] == 0xE5 || e[11] == attrLongName || e[11]&attrVolumeID == 0 {
			continue
		}
		return strings.TrimRight(string(e[0:11]), " ")
	}
	return ""
}

// Chain follows the cluster chain starting at first.
func (img *Image) Chain(first uint16) ([]uint16, error) {
	var chain []uint16
	for c := first; ; {
		if c < 2 || int(c) >= img.clusters+2 {
			return nil, fmt.Errorf("chain from %d: cluster %d out of range", first, c)
		}
		if len(chain) > img.clusters {
			return nil, fmt.Errorf("chain from %d: cycle", first)
		}
		chain = append(chain, c)
		next := img.FAT[c]
		if next >= 0xFF8 {
			return chain, nil
		}
		if next == 0 || next == 1 {
			return nil, fmt.Errorf("chain from %d: cluster %d points to %#03x", first, c, next)
		}
		c = next
	}
}

func (img *Image) cluster(c uint16) []byte {
	off := img.dataOff + (int(c)-2)*img.BlockSize
	return img.data[off : off+img.BlockSize]
}

func (img *Image) chainData(first uint16) ([]byte, error) {
	chain, err := img.Chain(first)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(chain)*img.BlockSize)
	for _, c := range chain {
		buf = append(buf, img.cluster(c)...)
	}
	return buf, nil
}

// ReadFile returns the contents of the file described by e.
func (img *Image) ReadFile(e Entry) ([]byte, error) {
	if e.Size == 0 {
		if e.Cluster != 0 {
			return nil, fmt.Errorf("%s: empty file with start cluster %d", e.Path, e.Cluster)
		}
		return []byte{}, nil
	}
	chain, err := img.Chain(e.Cluster)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", e.Path, err)
	}
	if got, want := len(chain), (int(e.Size)+img.BlockSize-1)/img.BlockSize; got != want {
		return nil, fmt.Errorf("%s: chain has %d clusters, size %d needs %d", e.Path, got, e.Size, want)
	}
	b, err := img.chainData(e.Cluster)
	if err != nil {
		return nil, err
	}
	return b[:e.Size], nil
}

// Entries returns all files and directories, depth first in on-disk order.
func (img *Image) Entries() ([]Entry, error) {
	root := img.data[img.rootOff : img.rootOff+img.RootEntries*entrySize]
	return img.walk("", root, 0, 0, true)
}

// Files returns the contents of all files keyed by path.
func (img *Image) Files() (map[string][]byte, error) {
	entries, err := img.Entries()
	if err != nil {
		return nil, err
	}
	files := make(map[string][]byte)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, err := img.ReadFile(e)
		if err != nil {
			return nil, err
		}
		files[e.Path] = b
	}
	return files, nil
}

// Check verifies that every cluster marked in use in the FAT belongs to
// exactly one file or directory.
func (img *Image) Check() error {
	entries, err := img.Entries()
	if err != nil {
		return err
	}
	owner := make(map[uint16]string)
	for _, e := range entries {
		if e.Cluster == 0 {
			continue
		}
		chain, err := img.Chain(e.Cluster)
		if err != nil {
			return fmt.Errorf("%s: %v", e.Path, err)
		}
		for _, c := range chain {
			if prev, ok := owner[c]; ok {
				return fmt.Errorf("cluster %d is shared by %s and %s", c, prev, e.Path)
			}
			owner[c] = e.Path
		}
	}
	for c := 2; c < img.clusters+2; c++ {
		if _, ok := owner[uint16(c)]; img.FAT[c] != 0 && !ok {
			return fmt.Errorf("cluster %d is marked %#03x but not referenced", c, img.FAT[c])
		}
	}
	return nil
}

func shortName(b []byte) string {
	base := strings.TrimRight(string(b[0:8]), " ")
	ext := strings.TrimRight(string(b[8:11]), " ")
	if b[12]&0x08 != 0 {
		base = strings.ToLower(base)
	}
	if b[12]&0x10 != 0 {
		ext = strings.ToLower(ext)
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

var longNameOffsets = []int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

func longNameUnits(e []byte) ([]uint16, error) {
	var units []uint16
	terminated := false
	for _, off := range longNameOffsets {
		u := binary.LittleEndian.Uint16(e[off:])
		switch {
		case terminated:
			if u != 0xFFFF {
				return nil, fmt.Errorf("long name padding %#04x, want 0xffff", u)
			}
		case u == 0:
			terminated = true
		default:
			units = append(units, u)
		}
	}
	return units, nil
}

func (img *Image) walk(prefix string, data []byte, self, parent uint16, root bool) ([]Entry, error) {
	var (
		result   []Entry
		parts    [][]uint16
		want     int
		checksum uint8
	)
	reset := func() { parts, want = nil, 0 }
	for i := 0; i+entrySize <= len(data); i += entrySize {
		e := data[i : i+entrySize]
		if e[0] == 0 {
			break
		}
		if e[0] == 0xE5 {
			if parts != nil {
				return nil, fmt.Errorf("%s: deleted entry inside long name sequence", prefix)
			}
			continue
		}
		attr := e[11]
		if attr == attrLongName {
			ord := int(e[0])
			seq := ord &^ 0x40
			if ord&0x40 != 0 {
				parts = make([][]uint16, seq)
				want = seq
				checksum = e[13]
			}
			if seq == 0 || seq != want || e[13] != checksum {
				return nil, fmt.Errorf("%s: broken long name sequence at slot %d (ordinal %#02x)", prefix, i/entrySize, ord)
			}
			units, err := longNameUnits(e)
			if err != nil {
				return nil, fmt.Errorf("%s: slot %d: %v", prefix, i/entrySize, err)
			}
			if seq < len(parts) && len(units) != 13 {
				return nil, fmt.Errorf("%s: slot %d: non-final long name part is %d units", prefix, i/entrySize, len(units))
			}
			parts[seq-1] = units
			want--
			continue
		}
		if attr&attrVolumeID != 0 {
			if !root || parts != nil {
				return nil, fmt.Errorf("%s: unexpected volume label entry", prefix)
			}
			img.Label = strings.TrimRight(string(e[0:11]), " ")
			continue
		}
		name := shortName(e)
		ent := Entry{
			Short:   name,
			Attr:    attr,
			Cluster: binary.LittleEndian.Uint16(e[26:28]),
			Size:    binary.LittleEndian.Uint32(e[28:32]),
			ModTime: UnmarshalTimeDate(binary.LittleEndian.Uint16(e[22:24]), binary.LittleEndian.Uint16(e[24:26])),
		}
		if parts != nil {
			if want != 0 {
				return nil, fmt.Errorf("%s: long name for %s is incomplete", prefix, name)
			}
			if sum := Checksum(e[0:11]); sum != checksum {
				return nil, fmt.Errorf("%s: long name checksum %#02x does not match %s (%#02x)", prefix, checksum, name, sum)
			}
			var units []uint16
			for _, p := range parts {
				units = append(units, p...)
			}
			name = string(utf16.Decode(units))
			ent.LongEntries = len(parts)
		}
		reset()

		if !root && (name == "." || name == "..") {
			wantCluster := self
			if name == ".." {
				wantCluster = parent
			}
			if ent.Cluster != wantCluster {
				return nil, fmt.Errorf("%s: %q points to cluster %d, want %d", prefix, name, ent.Cluster, wantCluster)
			}
			continue
		}
		ent.Path = name
		if prefix != "" {
			ent.Path = prefix + "/" + name
		}
		result = append(result, ent)
		if !ent.IsDir() {
			continue
		}
		if ent.Size != 0 {
			return nil, fmt.Errorf("%s: directory with size %d", ent.Path, ent.Size)
		}
		sub, err := img.chainData(ent.Cluster)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", ent.Path, err)
		}
		children, err := img.walk(ent.Path, sub, ent.Cluster, self, false)
		if err != nil {
			return nil, err
		}
		result = append(result, children...)
	}
	if parts != nil {
		return nil, fmt.Errorf("%s: dangling long name entries", prefix)
	}
	return result, nil
}
