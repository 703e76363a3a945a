package orchestrator

import (
	"fmt"

	"github.com/paulaanasilva/mazephases/internal/events"
)

// Convert accepts a playground record as a single-phase descriptor.
// No geometry is touched until the descriptor is materialized.
func Convert(rec *LevelRecord) *Descriptor {
	return &Descriptor{
		Name:   "playground",
		Source: SourcePlayground,
		record: rec,
	}
}

// Materializer builds phases from descriptors. It is owned by whatever
// activates phases (the game session), which calls Materialize once per
// descriptor right before the phase becomes active.
type Materializer struct {
	Builder   GridBuilder
	CenterX   float64
	CenterY   float64
	CellWidth float64
}

// NewMaterializer returns a Materializer using the default projection builder.
func NewMaterializer(centerX, centerY, cellWidth float64) *Materializer {
	return &Materializer{
		Builder:   ProjectionBuilder{},
		CenterX:   centerX,
		CenterY:   centerY,
		CellWidth: cellWidth,
	}
}

// Materialize copies the descriptor's geometry into a new Phase and builds
// its obstacle and ground matrices in isometric mode. A missing array in the
// record fails with an *IntegrityError.
func (m *Materializer) Materialize(d *Descriptor) (*Phase, error) {
	if d == nil {
		return nil, fmt.Errorf("materialize: nil descriptor")
	}
	if !d.materialized.CompareAndSwap(false, true) {
		return nil, ErrAlreadyMaterialized
	}

	phase, err := m.build(d)
	if err != nil {
		events.Emit("error", "phase.invalid", err.Error(), map[string]interface{}{
			"name":   d.Name,
			"source": string(d.Source),
			"index":  d.Index,
		})
		return nil, err
	}

	events.Emit("info", "phase.materialized", "", map[string]interface{}{
		"name":     d.Name,
		"source":   string(d.Source),
		"index":    d.Index,
		"polygons": len(phase.Polygons),
	})
	return phase, nil
}

func (m *Materializer) build(d *Descriptor) (*Phase, error) {
	rec := d.record
	if err := checkRecord(rec); err != nil {
		return nil, err
	}

	phase := &Phase{
		Name:               d.Name,
		Source:             d.Source,
		Index:              d.Index,
		Polygons:           copyPolygons(rec.Polygons),
		DestinationPolygon: copyPoints(rec.DestinationPolygon),
		DestinationPoints:  copyPoints(rec.DestinationPoints),
	}

	var err error
	phase.Obstacles, err = m.Builder.Build(MatrixIsometric, rec.Obstacles, m.CenterX, m.CenterY, m.CellWidth)
	if err != nil {
		return nil, fmt.Errorf("build obstacles: %w", err)
	}
	phase.Ground, err = m.Builder.Build(MatrixIsometric, rec.Terrain, m.CenterX, m.CenterY, m.CellWidth)
	if err != nil {
		return nil, fmt.Errorf("build ground: %w", err)
	}

	phase.SkipMessage = messageOr(rec.SkipMessage, DefaultSkipMessage)
	phase.ExitMessage = messageOr(rec.ExitMessage, DefaultExitMessage)
	phase.RestartMessage = messageOr(rec.RestartMessage, DefaultRestartMessage)

	return phase, nil
}

func checkRecord(rec *LevelRecord) error {
	switch {
	case rec == nil:
		return &IntegrityError{Field: "record"}
	case rec.Polygons == nil:
		return &IntegrityError{Field: "poligonos"}
	case rec.DestinationPolygon == nil:
		return &IntegrityError{Field: "poligonoDestino"}
	case rec.DestinationPoints == nil:
		return &IntegrityError{Field: "pontosDestino"}
	case rec.Obstacles == nil:
		return &IntegrityError{Field: "obstaculos"}
	case rec.Terrain == nil:
		return &IntegrityError{Field: "mapa"}
	}
	for i, p := range rec.Polygons {
		if p.Points == nil {
			return &IntegrityError{Field: fmt.Sprintf("poligonos[%d].pontos", i)}
		}
		if p.Positions == nil {
			return &IntegrityError{Field: fmt.Sprintf("poligonos[%d].posicao", i)}
		}
	}
	return nil
}
