package fat

import (
	"fmt"
	"strings"
	"time"
)

const (
	reservedBlocks = 1
	fatCopies      = 1
	blocksPerFAT   = 1

	// rootEntries is the fixed capacity of the root directory.
	rootEntries = 16

	dirEntrySize = 32

	// firstCluster is the first FAT entry describing the data area: the first
	// two entries have special meaning (copy of the media descriptor and end
	// of chain marker).
	firstCluster = 2

	// hardDisk is the media descriptor for fixed (non-removable) media.
	hardDisk = uint8(0xF8)

	// DefaultDirEntries is the number of entry slots allocated for each
	// subdirectory unless Config.DirEntries says otherwise.
	DefaultDirEntries = 16

	// DefaultVolumeLabel is used when Config.VolumeLabel is empty.
	DefaultVolumeLabel = "NO NAME"
)

// Config describes the geometry and volume metadata of an image. Once passed
// to NewWriter, it must not be modified.
type Config struct {
	// BlockSize is the size of a block (and cluster) in bytes: one of 512,
	// 1024, 2048 or 4096.
	BlockSize int

	// BlockCount is the total number of blocks in the image, including the
	// boot sector, the FAT and the root directory.
	BlockCount int

	// DirEntries is the number of 32 byte entry slots allocated for each
	// subdirectory, rounded up to whole blocks. Defaults to
	// DefaultDirEntries.
	DirEntries int

	// VolumeLabel is stored in the boot sector and in the root directory:
	// up to 11 ASCII characters, upper-cased.
	VolumeLabel string

	// VolumeID is the serial number stored in the boot sector.
	VolumeID uint32

	// ModTime is used for the volume label entry and for directories which
	// are created implicitly.
	ModTime time.Time
}

func (c Config) withDefaults() Config {
	if c.DirEntries == 0 {
		c.DirEntries = DefaultDirEntries
	}
	if c.VolumeLabel == "" {
		c.VolumeLabel = DefaultVolumeLabel
	}
	return c
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func (c Config) rootBlocks() int {
	return ceilDiv(rootEntries*dirEntrySize, c.BlockSize)
}

// dataStart returns the index of the block holding cluster 2.
func (c Config) dataStart() int {
	return reservedBlocks + fatCopies*blocksPerFAT + c.rootBlocks()
}

func (c Config) dataBlocks() int {
	return c.BlockCount - c.dataStart()
}

// fatEntries returns how many 12 bit entries fit into the FAT.
func (c Config) fatEntries() int {
	return blocksPerFAT * c.BlockSize * 2 / 3
}

func (c Config) dirBlocks() int {
	return ceilDiv(c.DirEntries*dirEntrySize, c.BlockSize)
}

func (c Config) clusterBlock(cluster uint16) int {
	return c.dataStart() + int(cluster) - firstCluster
}

// MaxBlockCount returns the largest BlockCount whose data area can still be
// addressed by a single FAT block of the given block size.
func MaxBlockCount(blockSize int) int {
	c := Config{BlockSize: blockSize}
	n := c.dataStart() + c.fatEntries() - firstCluster
	if n > 0xFFFF {
		n = 0xFFFF
	}
	return n
}

// MinBlockCount returns the smallest valid BlockCount: the metadata area
// plus a single data block.
func MinBlockCount(blockSize int) int {
	return Config{BlockSize: blockSize}.dataStart() + 1
}

func (c Config) validate() error {
	switch c.BlockSize {
	case 512, 1024, 2048, 4096:
	default:
		return fmt.Errorf("%w: block size %d is not one of 512, 1024, 2048, 4096", ErrGeometry, c.BlockSize)
	}
	if min := MinBlockCount(c.BlockSize); c.BlockCount < min {
		return fmt.Errorf("%w: %d blocks of %d bytes, need at least %d", ErrGeometry, c.BlockCount, c.BlockSize, min)
	}
	if max := MaxBlockCount(c.BlockSize); c.BlockCount > max {
		return fmt.Errorf("%w: %d blocks of %d bytes, a single FAT block addresses at most %d", ErrGeometry, c.BlockCount, c.BlockSize, max)
	}
	if c.DirEntries < 2 {
		return fmt.Errorf("%w: directories need room for at least the . and .. entries, got %d", ErrGeometry, c.DirEntries)
	}
	if _, err := volumeLabel(c.VolumeLabel); err != nil {
		return err
	}
	return nil
}

// volumeLabel returns label upper-cased and padded with spaces.
// CheckVolumeLabel returns an error wrapping ErrNameEncoding if label cannot
// be stored as a volume label.
func CheckVolumeLabel(label string) error {
	_, err := volumeLabel(label)
	return err
}

func volumeLabel(label string) (ShortName, error) {
	var result ShortName
	if len(label) > len(result) {
		return result, fmt.Errorf("%w: volume label %q is longer than %d bytes", ErrNameEncoding, label, len(result))
	}
	for _, r := range label {
		if r < 0x20 || r > 0x7E || strings.ContainsRune(`"*+,./:;<=>?[\]|`, r) {
			return result, fmt.Errorf("%w: %q in volume label %q", ErrNameEncoding, r, label)
		}
	}
	copy(result[:], strings.Repeat(" ", len(result)))
	copy(result[:], strings.ToUpper(label))
	return result, nil
}
