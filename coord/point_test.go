package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoint_AddSub(t *testing.T) {
	p := Point{X: 15, Y: 25}

	assert.Equal(t, Point{X: 20, Y: 20}, p.Add(Point{X: 5, Y: -5}))
	assert.Equal(t, Point{X: 10, Y: 30}, p.Sub(Point{X: 5, Y: -5}))
	assert.Equal(t, Point{X: 30, Y: 50}, p.Mul(2))
}

func TestSpace(t *testing.T) {
	// five lines over a 23..17 span, 1.5cm apart
	assert.Equal(t, []float64{23, 21.5, 20, 18.5, 17}, Space(23, 17, 5))

	// a single mark must not divide by zero
	assert.Equal(t, []float64{23}, Space(23, 17, 1))

	// two marks land on both ends
	assert.Equal(t, []float64{23, 17}, Space(23, 17, 2))
}
