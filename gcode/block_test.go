package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWord_String(t *testing.T) {
	assert.Equal(t, "X35.5", Word{W: 'X', Arg: 35.5}.String())
	assert.Equal(t, "G0", Word{W: 'G', Arg: 0}.String())
	assert.Equal(t, "Y15", Word{W: 'Y', Arg: 15.0}.String())
	assert.Equal(t, "X0.001", Word{W: 'X', Arg: 0.001}.String())
}

func TestBlock_Line(t *testing.T) {
	b := Block{{W: 'G', Arg: 90}, {W: 'G', Arg: 0}, {W: 'X', Arg: 63}}
	assert.Equal(t, "G90 G0 X63\n", b.Line())
	assert.Equal(t, "G90G0X63", b.String())
}

func TestBlock_Arg(t *testing.T) {
	b := Block{{W: 'G', Arg: 0}, {W: 'Y', Arg: 48.5}}

	ok, v := b.Arg('Y')
	assert.True(t, ok)
	assert.Equal(t, 48.5, v)

	ok, _ = b.Arg('X')
	assert.False(t, ok)

	b.SetArg('Y', 12)
	_, v = b.Arg('Y')
	assert.Equal(t, 12.0, v)
}

func TestBlock_Validate(t *testing.T) {
	assert.NoError(t, Block{{W: 'G', Arg: 0}}.Validate())
	assert.Error(t, Block{{W: '?', Arg: 0}}.Validate())
}
