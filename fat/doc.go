// Package fat implements writing FAT12 file system images entirely in
// memory, which is useful when generating the read-only mass storage disk a
// microcontroller firmware exposes over USB.
//
// The resulting images use one block per cluster, a single FAT occupying
// exactly one block and a root directory of 16 entries. Because one FAT
// block can only address a limited number of clusters, images are small
// (MaxBlockCount reports the limit per block size).
//
// Names which do not fit 8.3 get VFAT long name entries next to a generated
// short name with a numeric tail (e.g. THISIS~1.TXT).
package fat
