package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/paulaanasilva/mazephases/internal/config"
	"github.com/paulaanasilva/mazephases/internal/orchestrator"
	"github.com/paulaanasilva/mazephases/internal/playground"
)

// loadCmd runs one load and prints what the game would play.
var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Resolve the phase sequence once and print it as YAML",
	Long: `Runs a single load with the configured run switches and prints the
outcome followed by a summary of every phase. Content authors use it to
check that a playground item materializes.

No game client is redirected: the test-application strategy has no
navigator here and falls back.`,
	RunE: runLoad,
}

type loadReport struct {
	LoadID   string         `yaml:"load_id"`
	Strategy string         `yaml:"strategy"`
	Source   string         `yaml:"source"`
	Fallback bool           `yaml:"fallback"`
	Error    string         `yaml:"error,omitempty"`
	Phases   []phaseSummary `yaml:"phases"`
}

type phaseSummary struct {
	Index       int    `yaml:"index"`
	Name        string `yaml:"name"`
	Polygons    int    `yaml:"polygons"`
	Ground      string `yaml:"ground,omitempty"`
	Obstacles   int    `yaml:"obstacles"`
	SkipMessage string `yaml:"skip_message"`
	Invalid     string `yaml:"invalid,omitempty"`
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	loader, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Playground.Timeout()*2)
	defer cancel()

	out := loader.Load(ctx, cfg.Run)
	report := loadReport{
		LoadID:   out.LoadID,
		Strategy: out.Strategy.String(),
		Source:   string(out.Source),
		Fallback: out.Fallback(),
	}
	if out.Err != nil {
		report.Error = out.Err.Error()
	}

	m := orchestrator.NewMaterializer(cfg.Grid.CenterX, cfg.Grid.CenterY, cfg.Grid.CellWidth)
	for {
		d, err := loader.NextPhase()
		if errors.Is(err, orchestrator.ErrNoMorePhases) {
			break
		}
		if err != nil {
			return err
		}
		report.Phases = append(report.Phases, summarize(m, d))
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return enc.Close()
}

func summarize(m *orchestrator.Materializer, d *orchestrator.Descriptor) phaseSummary {
	s := phaseSummary{Index: d.Index, Name: d.Name}
	phase, err := m.Materialize(d)
	if err != nil {
		s.Invalid = err.Error()
		return s
	}
	s.Polygons = len(phase.Polygons)
	s.Ground = fmt.Sprintf("%dx%d", phase.Ground.Rows, phase.Ground.Cols)
	s.Obstacles = len(phase.Obstacles.Tiles)
	s.SkipMessage = phase.SkipMessage
	return s
}

// newLoader builds a loader over the embedded phases and the playground.
func newLoader(cfg *config.Config, logger *zap.Logger) (*orchestrator.Loader, error) {
	hardcoded, err := orchestrator.NewEmbeddedPhases()
	if err != nil {
		return nil, err
	}
	loader := orchestrator.NewLoader(hardcoded, logger)
	loader.SetItemServices(playground.NewFactory(cfg.Playground, logger))
	return loader, nil
}
