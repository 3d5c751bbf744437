package fat

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// deletedEntry marks a free slot which readers must skip rather than treat
// as the end of the directory.
const deletedEntry = 0xE5

type dirEntry struct {
	name    ShortName
	lower   uint8
	attr    uint8
	modTime time.Time
	cluster uint16
	size    uint32
}

var (
	minDOSTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDOSTime = time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC)
)

func (e *dirEntry) dosTime() time.Time {
	t := e.modTime.UTC()
	if t.Before(minDOSTime) {
		return minDOSTime
	}
	if t.After(maxDOSTime) {
		return maxDOSTime
	}
	return t
}

func (e *dirEntry) Time() uint16 {
	t := e.dosTime()
	return uint16(t.Hour())<<11 |
		uint16(t.Minute())<<5 |
		uint16(t.Second()/2)
}

func (e *dirEntry) Date() uint16 {
	t := e.dosTime()
	return uint16(t.Year()-1980)<<9 |
		uint16(t.Month())<<5 |
		uint16(t.Day())
}

func (e *dirEntry) bytes() [dirEntrySize]byte {
	var b [dirEntrySize]byte
	copy(b[0:11], e.name[:])
	b[11] = e.attr
	b[12] = e.lower
	tm, date := e.Time(), e.Date()
	binary.LittleEndian.PutUint16(b[14:16], tm)   // creation time
	binary.LittleEndian.PutUint16(b[16:18], date) // creation date
	binary.LittleEndian.PutUint16(b[18:20], date) // last access date
	binary.LittleEndian.PutUint16(b[22:24], tm)   // modification time
	binary.LittleEndian.PutUint16(b[24:26], date) // modification date
	binary.LittleEndian.PutUint16(b[26:28], e.cluster)
	binary.LittleEndian.PutUint32(b[28:32], e.size)
	return b
}

type directory struct {
	name   string
	parent *directory

	// cluster is the first cluster of the directory, 0 for the root.
	cluster uint16

	// blocks are the physical blocks holding the entries, capacity the
	// number of usable 32 byte slots within them.
	blocks   []int
	capacity int

	// byName maps upper-cased long names to subdirectories, or to nil for
	// files.
	byName map[string]*directory
	shorts map[ShortName]bool
}

func newDirectory(name string, parent *directory, cluster uint16, blocks []int, capacity int) *directory {
	return &directory{
		name:     name,
		parent:   parent,
		cluster:  cluster,
		blocks:   blocks,
		capacity: capacity,
		byName:   make(map[string]*directory),
		shorts:   make(map[ShortName]bool),
	}
}

func (d *directory) taken(s ShortName) bool { return d.shorts[s] }

func (d *directory) path() string {
	if d.parent == nil {
		return "/"
	}
	return strings.TrimSuffix(d.parent.path(), "/") + "/" + d.name
}

// reserve claims name in d, so that it cannot be used twice.
func (d *directory) reserve(name string, sub *directory) error {
	key := strings.ToUpper(name)
	if _, ok := d.byName[key]; ok {
		return fmt.Errorf("%w: %q already exists in %s", ErrNameEncoding, name, d.path())
	}
	d.byName[key] = sub
	return nil
}

// dir returns the directory at path, creating missing directories on the
// way with modification time modTime.
func (fw *Writer) dir(path string, modTime time.Time) (*directory, error) {
	cur := fw.root
	for _, component := range strings.Split(path, "/") {
		if component == "" || component == "." {
			continue
		}
		next, ok := cur.byName[strings.ToUpper(component)]
		if !ok {
			var err error
			next, err = fw.mkdir(cur, component, modTime)
			if err != nil {
				return nil, err
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: path %q invalid: component %q identifies a file", ErrInvariant, path, component)
		}
		cur = next
	}
	return cur, nil
}

// mkdir allocates the clusters of a new subdirectory of parent, writes its
// . and .. entries and registers it in parent.
func (fw *Writer) mkdir(parent *directory, name string, modTime time.Time) (*directory, error) {
	chain, err := fw.allocChain(fw.cfg.dirBlocks())
	if err != nil {
		return nil, err
	}
	blocks := make([]int, len(chain))
	for i, c := range chain {
		blocks[i] = fw.cfg.clusterBlock(c)
	}
	d := newDirectory(name, parent, chain[0], blocks, len(blocks)*fw.cfg.BlockSize/dirEntrySize)
	if err := parent.reserve(name, d); err != nil {
		return nil, err
	}
	if err := fw.writeNamed(parent, name, attrDirectory, d.cluster, 0, modTime); err != nil {
		return nil, err
	}
	dot := dirEntry{
		name:    dotName,
		attr:    attrDirectory,
		modTime: modTime,
		cluster: d.cluster,
	}
	dotdot := dirEntry{
		name:    dotDotName,
		attr:    attrDirectory,
		modTime: modTime,
		cluster: parent.cluster,
	}
	if err := fw.addEntry(d, [][dirEntrySize]byte{dot.bytes(), dotdot.bytes()}); err != nil {
		return nil, err
	}
	return d, nil
}

// allocChain allocates n clusters linked into one chain.
func (fw *Writer) allocChain(n int) ([]uint16, error) {
	chain := make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		c, err := fw.fat.Allocate()
		if err != nil {
			return nil, err
		}
		if i > 0 {
			if err := fw.fat.SetNext(chain[i-1], c); err != nil {
				return nil, err
			}
		}
		chain = append(chain, c)
	}
	if err := fw.fat.SetEnd(chain[n-1]); err != nil {
		return nil, err
	}
	return chain, nil
}

// writeNamed encodes name and adds its long name entries and short entry
// to d.
func (fw *Writer) writeNamed(d *directory, name string, attr uint8, cluster uint16, size uint32, modTime time.Time) error {
	enc, err := encodeName(name, d.taken)
	if err != nil {
		return err
	}
	e := dirEntry{
		name:    enc.short,
		lower:   enc.lower,
		attr:    attr,
		modTime: modTime,
		cluster: cluster,
		size:    size,
	}
	if err := fw.addEntry(d, enc.entries(e.bytes())); err != nil {
		return err
	}
	d.shorts[enc.short] = true
	return nil
}

// addEntry stores group in the first run of free slots of d which holds it
// entirely within one block. Free slots at the end of a block which is
// skipped are marked deleted, so that readers continue with the next block.
func (fw *Writer) addEntry(d *directory, group [][dirEntrySize]byte) error {
	perBlock := fw.cfg.BlockSize / dirEntrySize
	for slot := 0; slot < d.capacity; {
		b := fw.blocks.Block(d.blocks[slot/perBlock])
		off := slot % perBlock * dirEntrySize
		if b[off] != 0 {
			slot++
			continue
		}
		end := (slot/perBlock + 1) * perBlock
		if end > d.capacity {
			end = d.capacity
		}
		if slot+len(group) <= end {
			for i, e := range group {
				copy(b[off+i*dirEntrySize:], e[:])
			}
			return nil
		}
		if end == d.capacity {
			break
		}
		for ; slot < end; slot++ {
			b[slot%perBlock*dirEntrySize] = deletedEntry
		}
	}
	return fmt.Errorf("%w: no room for %d more entries in %s (capacity %d)", ErrDirectoryOverflow, len(group), d.path(), d.capacity)
}
