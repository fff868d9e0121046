package gcode

import (
	"errors"
	"strings"
)

// A Block is a single command line of words, e.g. G90 G0 X35.5.
type Block []Word

func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

func (b Block) SetArg(w byte, val float64) {
	for i, g := range b {
		if g.W == w {
			b[i].Arg = val
			return
		}
	}
}

func (b Block) Clone() Block {
	c := make(Block, len(b))
	copy(c, b)
	return c
}

func (b Block) Validate() error {
	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word: " + g.String())
		}
	}
	return nil
}

func (b Block) String() string {
	var sb strings.Builder
	for _, g := range b {
		sb.WriteString(g.String())
	}
	return sb.String()
}

// Line renders the block as a space-separated command line with
// a trailing newline, ready to be written to the controller.
func (b Block) Line() string {
	parts := make([]string, len(b))
	for i, g := range b {
		parts[i] = g.String()
	}
	return strings.Join(parts, " ") + "\n"
}
