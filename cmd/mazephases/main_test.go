package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const itemJSON = `{
	"poligonos": [{"pontos": [{"x":0,"y":0},{"x":1,"y":0},{"x":0,"y":1}], "posicao": [{"x":2,"y":2}], "cor": "#00ff00"}],
	"poligonoDestino": [{"x":0,"y":0},{"x":1,"y":0},{"x":0,"y":1}],
	"pontosDestino": [{"x":5,"y":5}],
	"mapa": [["tile","tile"],["tile","tile"]],
	"obstaculos": [["","rock"],["",""]],
	"mensagemAoPularFase": "Pular?"
}`

// newLoadCommand returns a load command with fresh flags so tests do not
// leak Changed state into each other.
func newLoadCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	logger = zap.NewNop()
	configPath = ""
	t.Setenv("MAZEPHASES_PLAYGROUND_TOKEN", "")
	t.Setenv("MAZEPHASES_PLAYGROUND_TOKEN_FILE", "")

	cmd := &cobra.Command{Use: "load", RunE: runLoad}
	addRunFlags(cmd)
	cmd.SetContext(context.Background())

	var out bytes.Buffer
	cmd.SetOut(&out)
	return cmd, &out
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mazephases.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func decodeReport(t *testing.T, out *bytes.Buffer) loadReport {
	t.Helper()
	var r loadReport
	if err := yaml.Unmarshal(out.Bytes(), &r); err != nil {
		t.Fatalf("report is not YAML: %v\n%s", err, out.String())
	}
	return r
}

func TestLoadDefaultsToHardcodedPhases(t *testing.T) {
	cmd, out := newLoadCommand(t)

	if err := runLoad(cmd, nil); err != nil {
		t.Fatalf("runLoad: %v", err)
	}

	r := decodeReport(t, out)
	if r.Strategy != "none" || r.Source != "hardcoded" || !r.Fallback {
		t.Errorf("unexpected outcome: %+v", r)
	}
	if len(r.Phases) != 3 {
		t.Fatalf("expected 3 phases, got %d", len(r.Phases))
	}
	if r.Phases[0].Name != "primeiros-passos" || r.Phases[0].Ground != "3x3" {
		t.Errorf("unexpected first phase: %+v", r.Phases[0])
	}
	if r.Phases[2].SkipMessage != "Quer mesmo pular o labirinto?" {
		t.Errorf("unexpected skip message: %q", r.Phases[2].SkipMessage)
	}
}

func TestLoadAutomaticTestingFlag(t *testing.T) {
	cmd, out := newLoadCommand(t)
	if err := cmd.Flags().Set("automatic-testing", "true"); err != nil {
		t.Fatal(err)
	}

	if err := runLoad(cmd, nil); err != nil {
		t.Fatalf("runLoad: %v", err)
	}

	r := decodeReport(t, out)
	if len(r.Phases) != 1 || r.Phases[0].Name != "teste-automatico" {
		t.Errorf("expected the testing set, got %+v", r.Phases)
	}
}

func TestLoadPlaygroundItem(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, itemJSON)
	}))
	defer srv.Close()

	cmd, out := newLoadCommand(t)
	configPath = writeConfig(t, fmt.Sprintf("version: 1\nplayground:\n  base_url: %s\n  item_id: \"7\"\n", srv.URL))
	defer func() { configPath = "" }()
	if err := cmd.Flags().Set("playground", "true"); err != nil {
		t.Fatal(err)
	}

	if err := runLoad(cmd, nil); err != nil {
		t.Fatalf("runLoad: %v", err)
	}

	if gotPath != "/items/7/instantiate" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	r := decodeReport(t, out)
	if r.Source != "playground" || r.Fallback {
		t.Fatalf("unexpected outcome: %+v", r)
	}
	if len(r.Phases) != 1 {
		t.Fatalf("expected one phase, got %d", len(r.Phases))
	}
	p := r.Phases[0]
	if p.Polygons != 1 || p.Ground != "2x2" || p.Obstacles != 1 || p.SkipMessage != "Pular?" {
		t.Errorf("unexpected summary: %+v", p)
	}
}

func TestLoadPlaygroundFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cmd, out := newLoadCommand(t)
	configPath = writeConfig(t, fmt.Sprintf("version: 1\nplayground:\n  base_url: %s\n  item_id: \"7\"\n", srv.URL))
	defer func() { configPath = "" }()
	if err := cmd.Flags().Set("playground", "true"); err != nil {
		t.Fatal(err)
	}

	if err := runLoad(cmd, nil); err != nil {
		t.Fatalf("load must not fail on a broken item service: %v", err)
	}

	r := decodeReport(t, out)
	if !r.Fallback || r.Error == "" || len(r.Phases) != 3 {
		t.Errorf("expected a reported fallback, got %+v", r)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	cmd, _ := newLoadCommand(t)
	configPath = writeConfig(t, "version: 1\nrun:\n  playground_test: true\n  item_id: \"1\"\n")
	defer func() { configPath = "" }()

	if err := cmd.Flags().Set("item-id", "99"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("playground", "false"); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Run.ItemID != "99" || cfg.Run.PlaygroundTest {
		t.Errorf("flags not applied: %+v", cfg.Run)
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	cmd, _ := newLoadCommand(t)
	configPath = writeConfig(t, "version: 2\n")
	defer func() { configPath = "" }()

	if _, err := loadConfig(cmd); err == nil {
		t.Error("expected an error for an unsupported version")
	}
}
