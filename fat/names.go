package fat

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	attrReadOnly  = uint8(0x01)
	attrHidden    = uint8(0x02)
	attrSystem    = uint8(0x04)
	attrVolumeID  = uint8(0x08)
	attrDirectory = uint8(0x10)
	attrArchive   = uint8(0x20)
	attrLongName  = attrReadOnly | attrHidden | attrSystem | attrVolumeID

	// lastLongEntry is set in the ordinal of the last (first written) long
	// name entry of a name.
	lastLongEntry = 0x40

	longNameChunk = 13
	maxLongName   = 255

	// Windows NT stores the case of all-lower-case 8.3 names in byte 12
	// instead of emitting long name entries.
	lowerBase = uint8(0x08)
	lowerExt  = uint8(0x10)

	maxNumericTail = 999999
)

// byte offsets of the 13 UTF-16 code units within a long name entry
var longNameOffsets = [longNameChunk]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

// ShortName is an 8.3 name as stored in a directory entry: 8 bytes of base
// name followed by 3 bytes of extension, both padded with spaces.
type ShortName [11]byte

func makeShortName(base, ext string) ShortName {
	var s ShortName
	copy(s[:], "           ")
	copy(s[:8], base)
	copy(s[8:], ext)
	return s
}

var (
	dotName    = makeShortName(".", "")
	dotDotName = makeShortName("..", "")
)

// String returns s in its usual BASE.EXT notation.
func (s ShortName) String() string {
	base := strings.TrimRight(string(s[:8]), " ")
	ext := strings.TrimRight(string(s[8:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// Checksum returns the checksum of s which every long name entry belonging
// to s carries.
func Checksum(s ShortName) uint8 {
	var sum uint8
	for _, c := range s {
		sum = (sum&1)<<7 + sum>>1 + c
	}
	return sum
}

type encodedName struct {
	short ShortName
	// lower holds the NT case flags for byte 12 of the short entry.
	lower uint8
	// long holds the long name entries in on-disk order.
	long [][dirEntrySize]byte
}

// entries returns the long name entries followed by the short entry.
func (n encodedName) entries(short [dirEntrySize]byte) [][dirEntrySize]byte {
	return append(append([][dirEntrySize]byte(nil), n.long...), short)
}

func splitExt(name string) (base, ext string) {
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		return name[:idx], name[idx+1:]
	}
	return name, ""
}

func validShortChar(r rune) bool {
	if r >= 'A' && r <= 'Z' {
		return true
	}
	if r >= '0' && r <= '9' {
		return true
	}
	return strings.ContainsRune("_^$~!#%&-{}()@'`", r)
}

// shortPart reports whether s consists of characters valid in a short name
// once upper-cased, whether it mixes lower and upper case, and the case flag
// to set if it is all lower-case.
func shortPart(s string, flag uint8) (caseFlag uint8, mixed, ok bool) {
	var lower, upper bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case !validShortChar(r):
			return 0, false, false
		}
	}
	if lower && upper {
		return 0, true, true
	}
	if lower {
		return flag, false, true
	}
	return 0, false, true
}

// cleanShort upper-cases s, drops spaces and periods and replaces characters
// which are not allowed in short names.
func cleanShort(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r == ' ' || r == '.' {
			continue
		}
		if !validShortChar(r) {
			r = '_'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func checkLongName(name string) error {
	switch name {
	case "", ".", "..":
		return fmt.Errorf("%w: %q is not a valid file name", ErrNameEncoding, name)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrNameEncoding, name)
	}
	if strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") {
		return fmt.Errorf("%w: %q ends in a period or space", ErrNameEncoding, name)
	}
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(`"*/:<>?\|`, r) {
			return fmt.Errorf("%w: %q in %q", ErrNameEncoding, r, name)
		}
	}
	if n := len(utf16.Encode([]rune(name))); n > maxLongName {
		return fmt.Errorf("%w: %q is %d UTF-16 code units long, at most %d are allowed", ErrNameEncoding, name, n, maxLongName)
	}
	return nil
}

// numericTail generates the first short name of the form BASE~N.EXT which
// taken does not report as used.
func numericTail(base, ext string, taken func(ShortName) bool) (ShortName, error) {
	stem := cleanShort(base)
	if stem == "" {
		stem = "_"
	}
	ext = cleanShort(ext)
	if len(ext) > 3 {
		ext = ext[:3]
	}
	for i := 1; i <= maxNumericTail; i++ {
		tail := "~" + strconv.Itoa(i)
		n := 8 - len(tail)
		if n > 6 {
			n = 6
		}
		if len(stem) < n {
			n = len(stem)
		}
		s := makeShortName(stem[:n]+tail, ext)
		if !taken(s) {
			return s, nil
		}
	}
	return ShortName{}, fmt.Errorf("%w: all numeric tails for %s.%s are in use", ErrNameEncoding, stem, ext)
}

// longEntries splits name into VFAT long name entries of 13 UTF-16 code
// units each, returned in on-disk order (last chunk first).
func longEntries(name string, checksum uint8) [][dirEntrySize]byte {
	units := utf16.Encode([]rune(name))
	n := (len(units) + longNameChunk - 1) / longNameChunk
	entries := make([][dirEntrySize]byte, n)
	for i := 0; i < n; i++ {
		var chunk [longNameChunk]uint16
		for j := range chunk {
			chunk[j] = 0xFFFF
		}
		part := units[i*longNameChunk : min((i+1)*longNameChunk, len(units))]
		copy(chunk[:], part)
		if len(part) < longNameChunk {
			chunk[len(part)] = 0 // terminator, followed by 0xFFFF padding
		}

		e := &entries[n-1-i]
		e[0] = byte(i + 1)
		if i == n-1 {
			e[0] |= lastLongEntry
		}
		e[11] = attrLongName
		e[13] = checksum
		for j, u := range chunk {
			binary.LittleEndian.PutUint16(e[longNameOffsets[j]:], u)
		}
	}
	return entries
}

// encodeName returns the short name and long name entries for name. taken
// reports whether a short name is already used in the target directory.
func encodeName(name string, taken func(ShortName) bool) (encodedName, error) {
	if err := checkLongName(name); err != nil {
		return encodedName{}, err
	}
	base, ext := splitExt(name)
	if len(base) <= 8 && len(ext) <= 3 {
		baseFlag, baseMixed, baseOK := shortPart(base, lowerBase)
		extFlag, extMixed, extOK := shortPart(ext, lowerExt)
		if baseOK && extOK {
			s := makeShortName(strings.ToUpper(base), strings.ToUpper(ext))
			if taken(s) {
				return encodedName{}, fmt.Errorf("%w: %q collides with existing short name %s", ErrNameEncoding, name, s)
			}
			if baseMixed || extMixed {
				// the short name only loses the case, which the long
				// name entries preserve
				return encodedName{short: s, long: longEntries(name, Checksum(s))}, nil
			}
			return encodedName{short: s, lower: baseFlag | extFlag}, nil
		}
	}
	s, err := numericTail(base, ext, taken)
	if err != nil {
		return encodedName{}, err
	}
	return encodedName{
		short: s,
		long:  longEntries(name, Checksum(s)),
	}, nil
}
