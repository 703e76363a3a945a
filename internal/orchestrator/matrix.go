package orchestrator

import "fmt"

// MatrixMode selects the projection used to position grid cells.
type MatrixMode string

const (
	MatrixIsometric MatrixMode = "isometric"
	MatrixCartesian MatrixMode = "cartesian"
)

// Tile is one non-empty cell of a layout placed on screen.
type Tile struct {
	Row  int     `json:"row"`
	Col  int     `json:"col"`
	Cell string  `json:"cell"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Matrix is a positioned tile map built from a cell layout.
type Matrix struct {
	Mode      MatrixMode `json:"mode"`
	Rows      int        `json:"rows"`
	Cols      int        `json:"cols"`
	CellWidth float64    `json:"cell_width"`
	Layout    [][]string `json:"-"`
	Tiles     []Tile     `json:"tiles"`
}

// At returns the tile at row/col, or nil when the cell is empty or out of range.
func (m *Matrix) At(row, col int) *Tile {
	for i := range m.Tiles {
		if m.Tiles[i].Row == row && m.Tiles[i].Col == col {
			return &m.Tiles[i]
		}
	}
	return nil
}

// GridBuilder turns a cell layout into a positioned matrix.
type GridBuilder interface {
	Build(mode MatrixMode, layout [][]string, centerX, centerY, cellWidth float64) (*Matrix, error)
}

// ProjectionBuilder is the default GridBuilder. Cells are positioned around
// the centre cell of the layout so the grid origin is the matrix centre.
type ProjectionBuilder struct{}

// Build implements GridBuilder. Empty cells ("") produce no tile and ragged
// rows are allowed.
func (ProjectionBuilder) Build(mode MatrixMode, layout [][]string, centerX, centerY, cellWidth float64) (*Matrix, error) {
	if mode != MatrixIsometric && mode != MatrixCartesian {
		return nil, fmt.Errorf("unknown matrix mode: %s", mode)
	}
	if cellWidth <= 0 {
		return nil, fmt.Errorf("cell width must be positive, got %v", cellWidth)
	}

	rows := len(layout)
	cols := 0
	for _, row := range layout {
		if len(row) > cols {
			cols = len(row)
		}
	}

	m := &Matrix{
		Mode:      mode,
		Rows:      rows,
		Cols:      cols,
		CellWidth: cellWidth,
		Layout:    make([][]string, rows),
	}

	r0 := float64(rows-1) / 2
	c0 := float64(cols-1) / 2

	for r, row := range layout {
		m.Layout[r] = append([]string(nil), row...)
		for c, cell := range row {
			if cell == "" {
				continue
			}
			dr := float64(r) - r0
			dc := float64(c) - c0

			x := centerX + dc*cellWidth
			y := centerY + dr*cellWidth
			if mode == MatrixIsometric {
				x = centerX + (dc-dr)*cellWidth/2
				y = centerY + (dc+dr)*cellWidth/4
			}

			m.Tiles = append(m.Tiles, Tile{Row: r, Col: c, Cell: cell, X: x, Y: y})
		}
	}

	return m, nil
}
