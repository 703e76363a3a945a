package orchestrator

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleRecord() *LevelRecord {
	return &LevelRecord{
		Polygons: []Polygon{{
			Points:    []Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}},
			Positions: []Point{{X: 3, Y: 4}},
			Color:     "#ff0000",
		}},
		DestinationPolygon: []Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}},
		DestinationPoints:  []Point{{X: 7, Y: 7}},
		Terrain:            [][]string{{"tile", "tile"}, {"tile", "tile"}},
		Obstacles:          [][]string{{"", "coin"}, {"block", ""}},
	}
}

func TestConvertDefersGeometry(t *testing.T) {
	rec := sampleRecord()
	d := Convert(rec)

	if d.Source != SourcePlayground || d.Name != "playground" || d.Index != 0 {
		t.Errorf("unexpected descriptor: %+v", d)
	}
	if d.Materialized() {
		t.Error("fresh descriptor must not be materialized")
	}
}

func TestMaterializeCopiesGeometry(t *testing.T) {
	rec := sampleRecord()
	phase, err := NewMaterializer(0, 0, 50).Materialize(Convert(rec))
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}

	if diff := cmp.Diff(rec.Polygons, phase.Polygons); diff != "" {
		t.Errorf("polygons mismatch (-record +phase):\n%s", diff)
	}
	if diff := cmp.Diff(rec.DestinationPolygon, phase.DestinationPolygon); diff != "" {
		t.Errorf("destination polygon mismatch (-record +phase):\n%s", diff)
	}
	if diff := cmp.Diff(rec.DestinationPoints, phase.DestinationPoints); diff != "" {
		t.Errorf("destination points mismatch (-record +phase):\n%s", diff)
	}
	if diff := cmp.Diff(rec.Terrain, phase.Ground.Layout); diff != "" {
		t.Errorf("ground layout mismatch (-record +phase):\n%s", diff)
	}
	if diff := cmp.Diff(rec.Obstacles, phase.Obstacles.Layout); diff != "" {
		t.Errorf("obstacle layout mismatch (-record +phase):\n%s", diff)
	}
	if phase.Ground.Mode != MatrixIsometric || phase.Obstacles.Mode != MatrixIsometric {
		t.Error("matrices must be built in isometric mode")
	}
}

func TestMaterializeDoesNotAliasRecord(t *testing.T) {
	rec := sampleRecord()
	phase, err := NewMaterializer(0, 0, 50).Materialize(Convert(rec))
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}

	rec.Polygons[0].Points[0].X = 99
	rec.Polygons[0].Positions[0].Y = 99
	rec.DestinationPolygon[0].X = 99
	rec.DestinationPoints[0].Y = 99
	rec.Terrain[0][0] = "lava"
	rec.Obstacles[0][1] = "block"

	if phase.Polygons[0].Points[0].X != 0 || phase.Polygons[0].Positions[0].Y != 4 {
		t.Error("phase polygons alias the record")
	}
	if phase.DestinationPolygon[0].X != 0 || phase.DestinationPoints[0].Y != 7 {
		t.Error("phase destination geometry aliases the record")
	}
	if phase.Ground.Layout[0][0] != "tile" || phase.Obstacles.Layout[0][1] != "coin" {
		t.Error("phase matrices alias the record")
	}
}

func TestMaterializeMessages(t *testing.T) {
	custom := "Sair?"
	empty := ""

	tests := []struct {
		name string
		msg  *string
		want string
	}{
		{"absent", nil, DefaultExitMessage},
		{"empty", &empty, DefaultExitMessage},
		{"custom", &custom, "Sair?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sampleRecord()
			rec.ExitMessage = tt.msg
			phase, err := NewMaterializer(0, 0, 50).Materialize(Convert(rec))
			if err != nil {
				t.Fatalf("materialize failed: %v", err)
			}
			if phase.ExitMessage != tt.want {
				t.Errorf("expected %q, got %q", tt.want, phase.ExitMessage)
			}
			if phase.SkipMessage != DefaultSkipMessage || phase.RestartMessage != DefaultRestartMessage {
				t.Error("unset messages must use defaults")
			}
		})
	}
}

func TestMaterializeMissingArrays(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*LevelRecord)
	}{
		{"poligonos", func(r *LevelRecord) { r.Polygons = nil }},
		{"poligonoDestino", func(r *LevelRecord) { r.DestinationPolygon = nil }},
		{"pontosDestino", func(r *LevelRecord) { r.DestinationPoints = nil }},
		{"obstaculos", func(r *LevelRecord) { r.Obstacles = nil }},
		{"mapa", func(r *LevelRecord) { r.Terrain = nil }},
		{"poligonos[0].pontos", func(r *LevelRecord) { r.Polygons[0].Points = nil }},
		{"poligonos[0].posicao", func(r *LevelRecord) { r.Polygons[0].Positions = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			rec := sampleRecord()
			tt.mutate(rec)

			_, err := NewMaterializer(0, 0, 50).Materialize(Convert(rec))
			var ie *IntegrityError
			if !errors.As(err, &ie) {
				t.Fatalf("expected IntegrityError, got %v", err)
			}
			if ie.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ie.Field)
			}
			if !errors.Is(err, ErrMalformedRecord) {
				t.Error("integrity errors must match ErrMalformedRecord")
			}
		})
	}
}

func TestMaterializeEmptyArraysAreValid(t *testing.T) {
	rec := &LevelRecord{
		Polygons:           []Polygon{},
		DestinationPolygon: []Point{},
		DestinationPoints:  []Point{},
		Terrain:            [][]string{},
		Obstacles:          [][]string{},
	}
	phase, err := NewMaterializer(0, 0, 50).Materialize(Convert(rec))
	if err != nil {
		t.Fatalf("empty arrays should materialize: %v", err)
	}
	if len(phase.Polygons) != 0 || phase.Ground.Rows != 0 {
		t.Errorf("expected empty phase, got %+v", phase)
	}
}

func TestMaterializeNilRecord(t *testing.T) {
	_, err := NewMaterializer(0, 0, 50).Materialize(Convert(nil))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestMaterializeOnce(t *testing.T) {
	m := NewMaterializer(0, 0, 50)
	d := Convert(sampleRecord())

	if _, err := m.Materialize(d); err != nil {
		t.Fatalf("first materialize failed: %v", err)
	}
	if _, err := m.Materialize(d); !errors.Is(err, ErrAlreadyMaterialized) {
		t.Errorf("expected ErrAlreadyMaterialized, got %v", err)
	}
}

func TestMaterializeOnceConcurrent(t *testing.T) {
	m := NewMaterializer(0, 0, 50)
	d := Convert(sampleRecord())

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Materialize(d); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 1 {
		t.Errorf("expected exactly one successful materialize, got %d", ok)
	}
}

func TestParseLevelRecord(t *testing.T) {
	data := []byte(`{
		"poligonos": [{"pontos": [{"x": 0, "y": 0}], "posicao": [{"x": 1, "y": 2}], "cor": "#fff"}],
		"poligonoDestino": [{"x": 0, "y": 0}],
		"pontosDestino": [],
		"mapa": [["tile"]],
		"obstaculos": [[""]],
		"mensagemAoSairDoJogo": "Tchau"
	}`)

	rec, err := ParseLevelRecord(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rec.Polygons) != 1 || rec.Polygons[0].Color != "#fff" {
		t.Errorf("unexpected polygons: %+v", rec.Polygons)
	}
	if rec.DestinationPoints == nil {
		t.Error("empty array must decode as non-nil")
	}
	if rec.ExitMessage == nil || *rec.ExitMessage != "Tchau" {
		t.Errorf("unexpected exit message: %v", rec.ExitMessage)
	}
	if rec.SkipMessage != nil {
		t.Error("absent message must stay nil")
	}

	if _, err := ParseLevelRecord([]byte("{")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
