package domain

// Tile is a square window of an export grid processed as one unit of work.
type Tile struct {
	Index int
	Col   int
	Row   int
	Grid  Grid
}

// Tiles partitions g into tiles of at most size×size pixels, row-major.
// Edge tiles are truncated to the grid.
func Tiles(g Grid, size int) []Tile {
	if size <= 0 {
		size = max(g.Width, g.Height)
	}
	var tiles []Tile
	for row := 0; row < g.Height; row += size {
		for col := 0; col < g.Width; col += size {
			w := min(size, g.Width-col)
			h := min(size, g.Height-row)
			tiles = append(tiles, Tile{
				Index: len(tiles),
				Col:   col,
				Row:   row,
				Grid:  g.Sub(col, row, w, h),
			})
		}
	}
	return tiles
}
