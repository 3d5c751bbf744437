package fat

import "errors"

var (
	// ErrExhaustedClusters is returned when a cluster is needed but the FAT
	// has no free entry left. Callers should provision more blocks.
	ErrExhaustedClusters = errors.New("no free clusters left")

	// ErrNameEncoding is returned for names which cannot be represented in a
	// directory, e.g. invalid characters or short name collisions.
	ErrNameEncoding = errors.New("name cannot be encoded")

	// ErrDirectoryOverflow is returned when a directory has no room left for
	// an entry group. Directories never grow past their initial allocation.
	ErrDirectoryOverflow = errors.New("directory is full")

	// ErrInvariant is returned when the image would become inconsistent, or
	// when a Writer is used after Flush.
	ErrInvariant = errors.New("invariant violated")

	// ErrGeometry is returned by NewWriter for unusable configurations.
	ErrGeometry = errors.New("invalid geometry")
)
