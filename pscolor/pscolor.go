/*
Package pscolor converts between the 16-bit colour words used by the
PlayStation GPU and standard colours.

A colour word is packed as SBBBBBGGGGGRRRRR where the top bit is the
semi-transparency flag. The flag is independent of the colour and is never
folded into the alpha channel returned by ToColor; use AlphaBit and
SetAlphaBit to read and write it.
*/
package pscolor

import "image/color"

const (
	alphaMask = 0x8000
	colorMask = 0x7fff
)

func expand(c uint16) uint8 {
	return uint8(c<<3 | c>>2)
}

// ToColor returns the colour for the device word w. A word with all fifteen
// colour bits clear is fully transparent, anything else is opaque.
func ToColor(w uint16) color.NRGBA {
	c := color.NRGBA{
		R: expand(w & 0x1f),
		G: expand(w >> 5 & 0x1f),
		B: expand(w >> 10 & 0x1f),
		A: 0xff,
	}
	if w&colorMask == 0 {
		c.A = 0
	}
	return c
}

// FromColor packs c into a device word with the alpha flag clear.
func FromColor(c color.Color) uint16 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return uint16(n.R>>3) | uint16(n.G>>3)<<5 | uint16(n.B>>3)<<10
}

// AlphaBit reports whether the semi-transparency flag is set in w.
func AlphaBit(w uint16) bool {
	return w&alphaMask != 0
}

// SetAlphaBit returns w with the semi-transparency flag set to on.
func SetAlphaBit(w uint16, on bool) uint16 {
	if on {
		return w | alphaMask
	}
	return w &^ alphaMask
}
