package fat

import (
	"bytes"
	"encoding/binary"
)

// writeBootSector writes the boot sector including the BIOS Parameter Block
// to b, which must be at least 512 bytes long.
func writeBootSector(b []byte, cfg Config) error {
	label, err := volumeLabel(cfg.VolumeLabel)
	if err != nil {
		return err
	}
	var (
		jumpCode            = [3]byte{0xEB, 0x3C, 0x90}
		OEM                 = [8]byte{'u', 's', 'b', 'k', 'v', 'm', ' ', ' '}
		fileSystemType      = [8]byte{'F', 'A', 'T', '1', '2', ' ', ' ', ' '}
		bootCode            = [448]byte{}
		bootSectorSignature = [2]byte{0x55, 0xAA}
	)
	buf := bytes.NewBuffer(make([]byte, 0, 512))
	for _, v := range []interface{}{
		jumpCode,               // jump code: intel 80x86 jump instruction
		OEM,                    // OEM
		uint16(cfg.BlockSize),  // in bytes
		uint8(1),               // blocks per cluster
		uint16(reservedBlocks), // reserved blocks: just the boot sector
		uint8(fatCopies),       // one copy of the FAT
		uint16(rootEntries),    // root directory entries
		uint16(cfg.BlockCount), // total number of blocks
		hardDisk,               // media descriptor
		uint16(blocksPerFAT),   // number of blocks per FAT
		uint16(32),             // (only for bootcode) number of sectors per track
		uint16(4),              // (only for bootcode) number of heads
		uint32(0),              // no hidden sectors
		uint32(0),              // 0 = the uint16 total above is authoritative
		uint8(0x80),            // (only for bootcode) drive number
		uint8(0),               // (only for bootcode) current head
		uint8(0x29),            // magic value: extended boot signature
		cfg.VolumeID,           // volume serial number
		[11]byte(label),        // volume label
		fileSystemType,         // informational only
		bootCode,               // no boot code: the disk is not bootable
		bootSectorSignature,    // at offset 510
	} {
		// buf.Write never fails
		binary.Write(buf, binary.LittleEndian, v)
	}
	copy(b, buf.Bytes())
	return nil
}
