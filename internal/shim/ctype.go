package shim

import "github.com/bywater/sandlibc/internal/trace"

// Character classification fixed to the "C" locale: ASCII ranges only,
// immutable for the process lifetime. The 256-entry table maps each byte to
// a bitset of classes; the EOF sentinel (-1) matches nothing.

const (
	classUpper byte = 0x01
	classLower byte = 0x02
	classDigit byte = 0x04
	classSpace byte = 0x08
	classPunct byte = 0x10
	classCntrl byte = 0x20
	classBlank byte = 0x40
	classHex   byte = 0x80
)

var ctypeTable [256]byte

func init() {
	for i := 0; i < 256; i++ {
		c := byte(i)
		var flags byte
		switch {
		case c >= 'A' && c <= 'Z':
			flags = classUpper
			if c <= 'F' {
				flags |= classHex
			}
		case c >= 'a' && c <= 'z':
			flags = classLower
			if c <= 'f' {
				flags |= classHex
			}
		case c >= '0' && c <= '9':
			flags = classDigit | classHex
		case c == ' ':
			flags = classSpace | classBlank
		case c == '\t':
			flags = classSpace | classBlank
		case c == '\n' || c == '\r' || c == '\f' || c == '\v':
			flags = classSpace
		case c < 0x20 || c == 0x7F:
			flags = classCntrl
		case c >= 0x21 && c <= 0x2F, c >= 0x3A && c <= 0x40,
			c >= 0x5B && c <= 0x60, c >= 0x7B && c <= 0x7E:
			flags = classPunct
		}
		ctypeTable[i] = flags
	}

	for name, fn := range map[string]func(int32) int32{
		"isalpha":  IsAlpha,
		"isdigit":  IsDigit,
		"isalnum":  IsAlnum,
		"isspace":  IsSpace,
		"isupper":  IsUpper,
		"islower":  IsLower,
		"isxdigit": IsXdigit,
		"ispunct":  IsPunct,
		"iscntrl":  IsCntrl,
		"isprint":  IsPrint,
		"isgraph":  IsGraph,
		"isblank":  IsBlank,
		"toupper":  ToUpper,
		"tolower":  ToLower,
	} {
		pred := fn
		register(Symbol{Name: name, Category: trace.Ctype, Params: 1, Results: 1,
			Invoke: func(s *Shim, a []uint64) (uint64, error) {
				return uint64(uint32(pred(int32(a[0])))), nil
			}})
	}

	for name, fn := range map[string]func(uint32) int32{
		"iswspace": IswSpace,
		"iswdigit": IswDigit,
		"iswalpha": IswAlpha,
		"iswalnum": IswAlnum,
	} {
		pred := fn
		register(Symbol{Name: name, Category: trace.Ctype, Params: 1, Results: 1,
			Invoke: func(s *Shim, a []uint64) (uint64, error) {
				return uint64(uint32(pred(uint32(a[0])))), nil
			}})
	}
}

// classOf returns the class bitset for a byte value, or 0 for EOF and any
// value outside 0..255.
func classOf(c int32) byte {
	if c < 0 || c > 255 {
		return 0
	}
	return ctypeTable[c]
}

func boolToC(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// IsAlpha reports whether c is an ASCII letter.
func IsAlpha(c int32) int32 { return boolToC(classOf(c)&(classUpper|classLower) != 0) }

// IsDigit reports whether c is an ASCII decimal digit.
func IsDigit(c int32) int32 { return boolToC(classOf(c)&classDigit != 0) }

// IsAlnum reports whether c is an ASCII letter or digit.
func IsAlnum(c int32) int32 {
	return boolToC(classOf(c)&(classUpper|classLower|classDigit) != 0)
}

// IsSpace reports whether c is C whitespace: space, tab, newline, carriage
// return, vertical tab, or form feed.
func IsSpace(c int32) int32 { return boolToC(classOf(c)&classSpace != 0) }

// IsUpper reports whether c is an ASCII uppercase letter.
func IsUpper(c int32) int32 { return boolToC(classOf(c)&classUpper != 0) }

// IsLower reports whether c is an ASCII lowercase letter.
func IsLower(c int32) int32 { return boolToC(classOf(c)&classLower != 0) }

// IsXdigit reports whether c is a hexadecimal digit.
func IsXdigit(c int32) int32 { return boolToC(classOf(c)&classHex != 0) }

// IsPunct reports whether c is ASCII punctuation.
func IsPunct(c int32) int32 { return boolToC(classOf(c)&classPunct != 0) }

// IsCntrl reports whether c is an ASCII control character.
func IsCntrl(c int32) int32 { return boolToC(classOf(c)&classCntrl != 0) }

// IsPrint reports whether c is printable, including space.
func IsPrint(c int32) int32 {
	cl := classOf(c)
	return boolToC(cl&(classUpper|classLower|classDigit|classPunct) != 0 || c == ' ')
}

// IsGraph reports whether c is printable and not space.
func IsGraph(c int32) int32 {
	cl := classOf(c)
	return boolToC(cl&(classUpper|classLower|classDigit|classPunct) != 0)
}

// IsBlank reports whether c is space or tab.
func IsBlank(c int32) int32 { return boolToC(classOf(c)&classBlank != 0) }

// ToUpper maps ASCII lowercase to uppercase and returns every other value
// unchanged, EOF included.
func ToUpper(c int32) int32 {
	if classOf(c)&classLower != 0 {
		return c - 'a' + 'A'
	}
	return c
}

// ToLower maps ASCII uppercase to lowercase and returns every other value
// unchanged, EOF included.
func ToLower(c int32) int32 {
	if classOf(c)&classUpper != 0 {
		return c - 'A' + 'a'
	}
	return c
}

// Wide-character predicates apply the ASCII rule to low codepoints and
// classify everything above as non-matching; the guest never needs full
// Unicode classification.

// IswSpace is the wide-character counterpart of IsSpace.
func IswSpace(wc uint32) int32 {
	if wc > 0x7F {
		return 0
	}
	return IsSpace(int32(wc))
}

// IswDigit is the wide-character counterpart of IsDigit.
func IswDigit(wc uint32) int32 {
	if wc > 0x7F {
		return 0
	}
	return IsDigit(int32(wc))
}

// IswAlpha is the wide-character counterpart of IsAlpha.
func IswAlpha(wc uint32) int32 {
	if wc > 0x7F {
		return 0
	}
	return IsAlpha(int32(wc))
}

// IswAlnum is the wide-character counterpart of IsAlnum.
func IswAlnum(wc uint32) int32 {
	if wc > 0x7F {
		return 0
	}
	return IsAlnum(int32(wc))
}
