package diagram

// Grid places elements that were created without explicit coordinates.
// Slots are handed out in row-major order from a monotonic counter; a slot
// whose box would overlap an existing element is skipped.
type Grid struct {
	Origin  Point
	Columns int
	Spacing float64

	next int
}

// NewGrid creates the default auto-layout grid
func NewGrid() *Grid {
	return &Grid{
		Origin:  Point{X: 300, Y: 200},
		Columns: 6,
		Spacing: 150,
	}
}

// Next returns the top-left corner of the next free slot for a shape of the
// given size.
func (g *Grid) Next(size Size, occupied []Rect) Point {
	columns := g.Columns
	if columns <= 0 {
		columns = 1
	}

	for {
		col, row := g.next%columns, g.next/columns
		g.next++

		p := Point{
			X: g.Origin.X + float64(col)*g.Spacing,
			Y: g.Origin.Y + float64(row)*g.Spacing,
		}
		if !overlapsAny(Rect{p, size}, occupied) {
			return p
		}
	}
}

func overlapsAny(r Rect, occupied []Rect) bool {
	for _, o := range occupied {
		if r.Intersects(o) {
			return true
		}
	}
	return false
}
