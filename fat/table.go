package fat

import "fmt"

const (
	freeCluster = uint16(0)

	// placeholder reserves an allocated entry until its chain is linked.
	placeholder = uint16(1)

	// endOfChain marks the end of a cluster chain in the FAT.
	endOfChain = uint16(0xFFF)
)

// Table is a File Allocation Table of 12 bit entries. Entry i describes
// cluster i: 0 (free), 1 (allocated, not yet linked), a pointer to the next
// cluster of the chain, or endOfChain.
//
// Chains are built front to back: SetNext only accepts a next cluster which
// is still unlinked and not referenced by any other entry, which rules out
// cycles and shared tails.
type Table struct {
	entries    []uint16
	referenced []bool

	// limit is the first entry index past the data area.
	limit int

	// hint is the lowest index which may still be free.
	hint int

	sealed bool
}

// NewTable returns a table with room for entries 12 bit values, of which
// only those describing the first clusters data clusters can be allocated.
func NewTable(entries, clusters int) *Table {
	t := &Table{
		entries:    make([]uint16, entries),
		referenced: make([]bool, entries),
		limit:      firstCluster + clusters,
		hint:       firstCluster,
	}
	if t.limit > entries {
		t.limit = entries
	}
	t.entries[0] = 0xF00 | uint16(hardDisk) // 0xFF8
	t.entries[1] = endOfChain
	return t
}

// Allocate returns the lowest free cluster and marks it as allocated.
func (t *Table) Allocate() (uint16, error) {
	if t.sealed {
		return 0, fmt.Errorf("%w: allocate after encoding the FAT", ErrInvariant)
	}
	for i := t.hint; i < t.limit; i++ {
		if t.entries[i] == freeCluster {
			t.entries[i] = placeholder
			t.hint = i + 1
			return uint16(i), nil
		}
	}
	t.hint = t.limit
	return 0, fmt.Errorf("%w: all %d clusters are in use", ErrExhaustedClusters, t.limit-firstCluster)
}

func (t *Table) unlinked(idx uint16) error {
	if t.sealed {
		return fmt.Errorf("%w: modification after encoding the FAT", ErrInvariant)
	}
	if int(idx) < firstCluster || int(idx) >= t.limit {
		return fmt.Errorf("%w: cluster %d out of range [%d, %d)", ErrInvariant, idx, firstCluster, t.limit)
	}
	if t.entries[idx] != placeholder {
		return fmt.Errorf("%w: cluster %d is not allocated or already linked (entry %#03x)", ErrInvariant, idx, t.entries[idx])
	}
	return nil
}

// SetNext links cluster idx to cluster next. Both must have been returned
// by Allocate and not been linked yet.
func (t *Table) SetNext(idx, next uint16) error {
	if err := t.unlinked(idx); err != nil {
		return err
	}
	if err := t.unlinked(next); err != nil {
		return err
	}
	if idx == next || t.referenced[next] {
		return fmt.Errorf("%w: cluster %d is already part of a chain", ErrInvariant, next)
	}
	t.entries[idx] = next
	t.referenced[next] = true
	return nil
}

// SetEnd marks cluster idx as the last cluster of its chain.
func (t *Table) SetEnd(idx uint16) error {
	if err := t.unlinked(idx); err != nil {
		return err
	}
	t.entries[idx] = endOfChain
	return nil
}

// Encode packs the table into its on-disk representation: two entries xuv
// and yzw become the three bytes uv, wx, yz; a trailing odd entry xuv
// becomes uv, 0x. After Encode, the table can no longer be modified.
func (t *Table) Encode() ([]byte, error) {
	for i, e := range t.entries {
		if e == placeholder {
			return nil, fmt.Errorf("%w: cluster %d was allocated but never linked", ErrInvariant, i)
		}
	}
	n := len(t.entries)
	out := make([]byte, (3*n+1)/2)
	for i := 0; i+1 < n; i += 2 {
		a, b := t.entries[i], t.entries[i+1]
		off := i / 2 * 3
		out[off] = byte(a)
		out[off+1] = byte(a>>8)&0x0F | byte(b&0x0F)<<4
		out[off+2] = byte(b >> 4)
	}
	if n%2 == 1 {
		a := t.entries[n-1]
		off := (n - 1) / 2 * 3
		out[off] = byte(a)
		out[off+1] = byte(a>>8) & 0x0F
	}
	t.sealed = true
	return out, nil
}
