package coord

import (
	"math"
)

// Point is a position on the desk surface, in centimeters.
type Point struct{ X, Y float64 }

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	return p
}

func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	return p
}

// Distance will return the distance to p from (x,y).
func (p Point) Distance(x, y float64) float64 {
	return math.Sqrt(math.Pow(x-p.X, 2) + math.Pow(y-p.Y, 2))
}

// Space will return n evenly spaced values from first to last,
// inclusive of both ends. With n == 1 only first is returned, so
// callers never divide by zero for a single mark.
func Space(first, last float64, n int) []float64 {
	res := make([]float64, n)
	if n == 1 {
		res[0] = first
		return res
	}
	step := (first - last) / float64(n-1)
	for i := range res {
		res[i] = first - step*float64(i)
	}
	return res
}
