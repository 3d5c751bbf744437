// Package imagebuild turns a file tree into a FAT12 disk image sized to fit
// its contents.
package imagebuild

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/usbkvm/mscimage/fat"
	"github.com/usbkvm/mscimage/humanize"
	"github.com/usbkvm/mscimage/progress"
	"golang.org/x/crypto/blake2b"
)

// MinImageSize is the smallest image Windows agrees to mount.
const MinImageSize = 8 * 1024

type Config struct {
	// BlockSize defaults to 512 bytes.
	BlockSize int

	// BlockCount overrides the estimate derived from the source when
	// non-zero.
	BlockCount int

	// DirEntries is passed on to fat.Config.
	DirEntries int

	VolumeLabel string

	// VolumeID is derived from the source contents when zero, so that
	// rebuilding an unchanged tree results in an identical image.
	VolumeID uint32

	// MaxBytes limits the size of the image, e.g. to the flash space the
	// firmware reserves for it. Zero means no limit.
	MaxBytes int64

	// Progress, if non-nil, counts the content stored by the write pass.
	Progress *progress.Reporter
}

func (c Config) blockSize() int {
	if c.BlockSize == 0 {
		return 512
	}
	return c.BlockSize
}

func (c Config) dirEntries() int {
	if c.DirEntries == 0 {
		return fat.DefaultDirEntries
	}
	return c.DirEntries
}

// inventory is the result of the first pass over a source.
type inventory struct {
	files   []File
	regular int
	dirs    map[string]bool
	newest  time.Time
	content int64
}

func takeInventory(src Source) (*inventory, error) {
	inv := &inventory{dirs: make(map[string]bool)}
	err := src.Walk(func(f File) error {
		inv.files = append(inv.files, f)
		for dir := path.Dir(f.Path); dir != "."; dir = path.Dir(dir) {
			inv.dirs[dir] = true
		}
		if f.Dir {
			inv.dirs[f.Path] = true
			return nil
		}
		inv.regular++
		inv.content += f.Size
		if f.ModTime.After(inv.newest) {
			inv.newest = f.ModTime
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// estimate returns a block count which holds all files of inv: the metadata
// area plus a spare block, one and a half times the blocks of each file plus
// one, and the blocks of every directory. The result is at least
// MinImageSize bytes.
func (inv *inventory) estimate(blockSize, dirEntries int) int {
	bs := int64(blockSize)
	blocks := int64(fat.MinBlockCount(blockSize))
	for _, f := range inv.files {
		if f.Dir {
			continue
		}
		blocks += ceilDiv(ceilDiv(f.Size, bs)*3, 2) + 1
	}
	blocks += int64(len(inv.dirs)) * ceilDiv(int64(dirEntries)*32, bs)
	if min := ceilDiv(MinImageSize, bs); blocks < min {
		blocks = min
	}
	if max := int64(fat.MaxBlockCount(blockSize)); blocks > max {
		log.Printf("estimate of %d blocks exceeds the FAT12 limit, using %d blocks", blocks, max)
		blocks = max
	}
	return int(blocks)
}

// volumeID hashes the name, size and modification time of every file.
func (inv *inventory) volumeID() uint32 {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // only fails for keys longer than 64 bytes
	}
	var b [16]byte
	for _, f := range inv.files {
		io.WriteString(h, f.Path)
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(b[0:8], uint64(f.Size))
		binary.LittleEndian.PutUint64(b[8:16], uint64(f.ModTime.Unix()))
		h.Write(b[:])
	}
	return binary.LittleEndian.Uint32(h.Sum(nil))
}

// Build walks src twice: first to size the image and derive its volume ID,
// then to write every file. Nothing is returned unless the whole tree was
// stored.
func Build(src Source, cfg Config) (*Image, error) {
	inv, err := takeInventory(src)
	if err != nil {
		return nil, fmt.Errorf("sizing image: %w", err)
	}

	blockSize := cfg.blockSize()
	blockCount := cfg.BlockCount
	if blockCount == 0 {
		blockCount = inv.estimate(blockSize, cfg.dirEntries())
	}
	if cfg.MaxBytes > 0 && int64(blockCount)*int64(blockSize) > cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %s needed, %s available",
			ErrTooLarge,
			humanize.Blocks(blockCount, blockSize),
			humanize.Bytes(uint64(cfg.MaxBytes)))
	}
	volumeID := cfg.VolumeID
	if volumeID == 0 {
		volumeID = inv.volumeID()
	}
	log.Printf("building %s image for %d files (%s) in %d directories, volume ID %04X-%04X",
		humanize.Blocks(blockCount, blockSize),
		inv.regular,
		humanize.Bytes(uint64(inv.content)),
		len(inv.dirs),
		volumeID>>16, volumeID&0xFFFF)

	var buf bytes.Buffer
	buf.Grow(blockCount * blockSize)
	fw, err := fat.NewWriter(&buf, fat.Config{
		BlockSize:   blockSize,
		BlockCount:  blockCount,
		DirEntries:  cfg.DirEntries,
		VolumeLabel: cfg.VolumeLabel,
		VolumeID:    volumeID,
		ModTime:     inv.newest,
	})
	if err != nil {
		return nil, err
	}

	if p := cfg.Progress; p != nil {
		p.Start(uint64(inv.content))
	}

	idx := 0
	err = src.Walk(func(f File) error {
		if idx >= len(inv.files) {
			return fmt.Errorf("%w: unexpected %s", ErrSourceChanged, f.Path)
		}
		want := inv.files[idx]
		idx++
		if f.Path != want.Path || f.Dir != want.Dir {
			return fmt.Errorf("%w: got %s, want %s", ErrSourceChanged, f.Path, want.Path)
		}
		if f.Size != want.Size {
			return fmt.Errorf("%w: %s is %d bytes, was %d bytes", ErrSourceChanged, f.Path, f.Size, want.Size)
		}
		if f.Dir {
			// directories carry the time of the newest file, like the
			// ones created implicitly
			return fw.Mkdir(f.Path, inv.newest)
		}
		return writeFile(fw, f, cfg.Progress)
	})
	if err != nil {
		return nil, fmt.Errorf("writing image: %w", err)
	}
	if idx != len(inv.files) {
		return nil, fmt.Errorf("%w: %d of %d files visited", ErrSourceChanged, idx, len(inv.files))
	}
	if err := fw.Flush(); err != nil {
		return nil, err
	}

	if got, want := buf.Len(), blockCount*blockSize; got != want {
		return nil, fmt.Errorf("%w: image is %d bytes, want %d", fat.ErrInvariant, got, want)
	}
	return &Image{
		Data:       buf.Bytes(),
		BlockCount: blockCount,
		BlockSize:  blockSize,
		VolumeID:   volumeID,
	}, nil
}

func writeFile(fw *fat.Writer, f File, p *progress.Reporter) error {
	w, err := fw.File(f.Path, f.ModTime)
	if err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	var r io.Reader = rc
	if p != nil {
		p.SetFile(f.Path)
		r = io.TeeReader(rc, p)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		return fmt.Errorf("%s: %w", f.Path, err)
	}
	if n != f.Size {
		return fmt.Errorf("%w: %s is %d bytes, was %d bytes", ErrSourceChanged, f.Path, n, f.Size)
	}
	return nil
}
