package presence

import "unicode/utf16"

// Palette is the fixed set of participant colors.
// Assignment is deterministic per display name so the same name renders the
// same color across reconnects and across clients. Collisions between
// distinct names are acceptable.
var Palette = [5]string{
	"#E06C75",
	"#61AFEF",
	"#98C379",
	"#C678DD",
	"#E5C07B",
}

// ColorFor maps a display name to a palette color.
// It computes a 32-bit rolling hash (h = h*31 + unit, wrapping) over the
// name's UTF-16 code units and takes its absolute value modulo the palette
// size. UTF-16 units keep the assignment identical to charCode-based clients,
// including for names with surrogate pairs.
func ColorFor(name string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(name)) {
		h = h*31 + int32(u)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return Palette[abs%int64(len(Palette))]
}
