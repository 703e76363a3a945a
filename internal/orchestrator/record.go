package orchestrator

import (
	"encoding/json"
	"fmt"
)

// Point is a 2D coordinate in level space.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Polygon is a movable piece: its outline, the offsets it can be placed at,
// and its fill colour.
type Polygon struct {
	Points    []Point `json:"pontos" yaml:"points"`
	Positions []Point `json:"posicao" yaml:"positions"`
	Color     string  `json:"cor" yaml:"color"`
}

// LevelRecord is a level as delivered by the playground item service.
// It is untrusted: any slice may be missing (nil).
type LevelRecord struct {
	Polygons           []Polygon  `json:"poligonos" yaml:"polygons"`
	DestinationPolygon []Point    `json:"poligonoDestino" yaml:"destination_polygon"`
	DestinationPoints  []Point    `json:"pontosDestino" yaml:"destination_points"`
	Terrain            [][]string `json:"mapa" yaml:"terrain"`
	Obstacles          [][]string `json:"obstaculos" yaml:"obstacles"`

	SkipMessage    *string `json:"mensagemAoPularFase,omitempty" yaml:"skip_message,omitempty"`
	ExitMessage    *string `json:"mensagemAoSairDoJogo,omitempty" yaml:"exit_message,omitempty"`
	RestartMessage *string `json:"mensagemAoReiniciarFase,omitempty" yaml:"restart_message,omitempty"`
}

// ParseLevelRecord decodes a playground item payload.
func ParseLevelRecord(data []byte) (*LevelRecord, error) {
	var rec LevelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("invalid level record JSON: %w", err)
	}
	return &rec, nil
}

func copyPoints(src []Point) []Point {
	if src == nil {
		return nil
	}
	out := make([]Point, len(src))
	copy(out, src)
	return out
}

func copyPolygons(src []Polygon) []Polygon {
	out := make([]Polygon, len(src))
	for i, p := range src {
		out[i] = Polygon{
			Points:    copyPoints(p.Points),
			Positions: copyPoints(p.Positions),
			Color:     p.Color,
		}
	}
	return out
}
