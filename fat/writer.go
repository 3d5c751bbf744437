package fat

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// maxFileSize is the largest size a directory entry can record.
const maxFileSize = 0xFFFFFFFF

type Writer struct {
	w   io.Writer
	cfg Config

	// blocks holds the entire image. Nothing is written to w before Flush.
	blocks *BlockStore

	// fat is the File Allocation Table holding one entry for each cluster
	// in the data area.
	fat *Table

	root *directory

	pending *fatUpdatingWriter

	// err is the first error which left the image inconsistent. Once set,
	// all further calls return it.
	err     error
	flushed bool
}

// NewWriter returns a Writer which will write a FAT12 file system image of
// cfg.BlockCount blocks to w once Flush is called.
//
// The whole image is kept in memory, so the geometry must be known up front:
// files which do not fit result in ErrExhaustedClusters.
func NewWriter(w io.Writer, cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	fw := &Writer{
		w:      w,
		cfg:    cfg,
		blocks: NewBlockStore(cfg.BlockCount, cfg.BlockSize),
		fat:    NewTable(cfg.fatEntries(), cfg.dataBlocks()),
	}
	if err := writeBootSector(fw.blocks.Block(0), cfg); err != nil {
		return nil, err
	}

	rootStart := reservedBlocks + fatCopies*blocksPerFAT
	rootBlocks := make([]int, cfg.rootBlocks())
	for i := range rootBlocks {
		rootBlocks[i] = rootStart + i
	}
	fw.root = newDirectory("", nil, 0, rootBlocks, rootEntries)

	label, err := volumeLabel(cfg.VolumeLabel)
	if err != nil {
		return nil, err
	}
	labelEntry := dirEntry{
		name:    label,
		attr:    attrVolumeID,
		modTime: cfg.ModTime,
	}
	if err := fw.addEntry(fw.root, [][dirEntrySize]byte{labelEntry.bytes()}); err != nil {
		return nil, err
	}
	return fw, nil
}

// BlockCount returns the number of blocks in the image.
func (fw *Writer) BlockCount() int { return fw.cfg.BlockCount }

// BlockSize returns the size of a block in bytes.
func (fw *Writer) BlockSize() int { return fw.cfg.BlockSize }

func (fw *Writer) usable() error {
	if fw.flushed {
		return fmt.Errorf("%w: Writer used after Flush", ErrInvariant)
	}
	return fw.err
}

func (fw *Writer) fail(err error) error {
	if fw.err == nil {
		fw.err = err
	}
	return err
}

func (fw *Writer) closePending() error {
	if fw.pending == nil {
		return nil
	}
	p := fw.pending
	fw.pending = nil
	if err := p.Close(); err != nil {
		return fw.fail(err)
	}
	return nil
}

// Mkdir creates an empty directory with the given full path,
// e.g. Mkdir("usr/share/lib"). Missing parents are created as well.
func (fw *Writer) Mkdir(dirPath string, modTime time.Time) error {
	if err := fw.usable(); err != nil {
		return err
	}
	if err := fw.closePending(); err != nil {
		return err
	}
	if _, err := fw.dir(dirPath, modTime); err != nil {
		return fw.fail(err)
	}
	return nil
}

// fatUpdatingWriter stores file contents block by block, allocating and
// linking a new cluster whenever the current one is full.
type fatUpdatingWriter struct {
	fw      *Writer
	dir     *directory
	name    string
	modTime time.Time

	first, last uint16 // 0 until the first byte is written
	block       []byte
	off         int
	count       int64
}

func (fuw *fatUpdatingWriter) Write(p []byte) (n int, err error) {
	if fuw.fw.pending != fuw {
		return 0, fmt.Errorf("%w: write to %q after it was closed", ErrInvariant, fuw.name)
	}
	for len(p) > 0 {
		if fuw.block == nil || fuw.off == len(fuw.block) {
			if err := fuw.grow(); err != nil {
				return n, fuw.fw.fail(err)
			}
		}
		c := copy(fuw.block[fuw.off:], p)
		fuw.off += c
		fuw.count += int64(c)
		n += c
		p = p[c:]
	}
	if fuw.count > maxFileSize {
		return n, fuw.fw.fail(fmt.Errorf("%w: %q exceeds %d bytes", ErrInvariant, fuw.name, int64(maxFileSize)))
	}
	return n, nil
}

func (fuw *fatUpdatingWriter) grow() error {
	fw := fuw.fw // for convenience
	c, err := fw.fat.Allocate()
	if err != nil {
		return fmt.Errorf("storing %q: %w", fuw.name, err)
	}
	if fuw.first == 0 {
		fuw.first = c
	} else if err := fw.fat.SetNext(fuw.last, c); err != nil {
		return err
	}
	fuw.last = c
	fuw.block = fw.blocks.Block(fw.cfg.clusterBlock(c))
	fuw.off = 0
	return nil
}

// Close terminates the cluster chain and records the directory entry.
// Blocks are zero-padded by construction.
func (fuw *fatUpdatingWriter) Close() error {
	fw := fuw.fw
	if fuw.first != 0 {
		if err := fw.fat.SetEnd(fuw.last); err != nil {
			return err
		}
	}
	return fw.writeNamed(fuw.dir, fuw.name, attrArchive, fuw.first, uint32(fuw.count), fuw.modTime)
}

// File creates a file with the specified path and modTime. The
// returned io.Writer stays valid until the next call to File, AddFile,
// Mkdir or Flush, which record the file in its directory.
func (fw *Writer) File(filePath string, modTime time.Time) (io.Writer, error) {
	if err := fw.usable(); err != nil {
		return nil, err
	}
	if err := fw.closePending(); err != nil {
		return nil, err
	}
	dirPath, name := path.Split(strings.Trim(filePath, "/"))
	if err := checkLongName(name); err != nil {
		return nil, fw.fail(err)
	}
	dir, err := fw.dir(dirPath, fw.cfg.ModTime)
	if err != nil {
		return nil, fw.fail(err)
	}
	if err := dir.reserve(name, nil); err != nil {
		return nil, fw.fail(err)
	}
	fw.pending = &fatUpdatingWriter{
		fw:      fw,
		dir:     dir,
		name:    name,
		modTime: modTime,
	}
	return fw.pending, nil
}

// AddFile stores content as a file with the specified path and modTime.
func (fw *Writer) AddFile(filePath string, content []byte, modTime time.Time) error {
	w, err := fw.File(filePath, modTime)
	if err != nil {
		return err
	}
	if _, err := w.Write(content); err != nil {
		return err
	}
	return fw.closePending()
}

// Flush encodes the FAT and writes the image. The Writer must not be used
// after calling Flush.
func (fw *Writer) Flush() error {
	if err := fw.usable(); err != nil {
		return err
	}
	if err := fw.closePending(); err != nil {
		return err
	}
	b, err := fw.fat.Encode()
	if err != nil {
		return fw.fail(err)
	}
	copy(fw.blocks.Block(reservedBlocks), b)
	fw.flushed = true
	_, err = fw.blocks.WriteTo(fw.w)
	return err
}
