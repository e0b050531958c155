// Package tile defines the unit of tile storage: a fixed-size pixel block
// addressed by grid coordinate and zoom level.
package tile

import "fmt"

// Coord addresses a tile. Z is the zoom level: 0 is full resolution and each
// higher level halves the resolution of the one below it.
type Coord struct {
	X int
	Y int
	Z int
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

func (c Coord) Valid() bool {
	return c.Z >= 0
}

// Children returns the four tiles at Z-1 covering c, in row-major order.
func (c Coord) Children() [4]Coord {
	x, y, z := c.X*2, c.Y*2, c.Z-1
	return [4]Coord{
		{X: x, Y: y, Z: z},
		{X: x + 1, Y: y, Z: z},
		{X: x, Y: y + 1, Z: z},
		{X: x + 1, Y: y + 1, Z: z},
	}
}

// Parent returns the tile at Z+1 that c is one quadrant of.
func (c Coord) Parent() Coord {
	return Coord{X: c.X >> 1, Y: c.Y >> 1, Z: c.Z + 1}
}
