package orchestrator

import "sync/atomic"

// Messages shown when a record does not carry its own.
const (
	DefaultSkipMessage    = "Tem certeza que deseja pular essa fase?"
	DefaultExitMessage    = "Tem certeza que deseja sair do jogo?"
	DefaultRestartMessage = "Tem certeza que deseja reiniciar essa fase?"
)

// Source names where a phase sequence came from.
type Source string

const (
	SourceNone       Source = ""
	SourcePlayground Source = "playground"
	SourceHardcoded  Source = "hardcoded"
)

// Descriptor is a phase that has been accepted into a sequence but not yet
// built. It owns the record it was converted from.
type Descriptor struct {
	Name   string
	Source Source
	Index  int

	record       *LevelRecord
	materialized atomic.Bool
}

// Materialized reports whether the descriptor has already been consumed.
func (d *Descriptor) Materialized() bool {
	return d.materialized.Load()
}

// Phase is a fully positioned level ready for activation.
type Phase struct {
	Name   string `json:"name"`
	Source Source `json:"source"`
	Index  int    `json:"index"`

	Polygons           []Polygon `json:"polygons"`
	DestinationPolygon []Point   `json:"destination_polygon"`
	DestinationPoints  []Point   `json:"destination_points"`
	Ground             *Matrix   `json:"ground"`
	Obstacles          *Matrix   `json:"obstacles"`

	SkipMessage    string `json:"skip_message"`
	ExitMessage    string `json:"exit_message"`
	RestartMessage string `json:"restart_message"`
}

func messageOr(msg *string, def string) string {
	if msg == nil || *msg == "" {
		return def
	}
	return *msg
}
