package orchestrator

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed hardcoded.yaml
var hardcodedYAML []byte

// HardcodedBuilder produces the built-in phase set. Build must not fail.
type HardcodedBuilder interface {
	Build(testing bool) []*Descriptor
}

type hardcodedPhase struct {
	Name        string `yaml:"name"`
	LevelRecord `yaml:",inline"`
}

type hardcodedSet struct {
	Phases  []hardcodedPhase `yaml:"phases"`
	Testing []hardcodedPhase `yaml:"testing"`
}

// EmbeddedPhases is the HardcodedBuilder backed by hardcoded.yaml.
type EmbeddedPhases struct {
	set hardcodedSet
}

// NewEmbeddedPhases parses the embedded phase set. An error here means the
// binary was built with a broken hardcoded.yaml.
func NewEmbeddedPhases() (*EmbeddedPhases, error) {
	return parseHardcoded(hardcodedYAML)
}

func parseHardcoded(data []byte) (*EmbeddedPhases, error) {
	var set hardcodedSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse hardcoded phases: %w", err)
	}
	if len(set.Phases) == 0 {
		return nil, fmt.Errorf("hardcoded phases: empty campaign")
	}
	if len(set.Testing) == 0 {
		return nil, fmt.Errorf("hardcoded phases: empty testing set")
	}
	return &EmbeddedPhases{set: set}, nil
}

// Build returns fresh descriptors for the campaign, or for the automatic
// testing set when testing is true.
func (e *EmbeddedPhases) Build(testing bool) []*Descriptor {
	src := e.set.Phases
	if testing {
		src = e.set.Testing
	}

	out := make([]*Descriptor, len(src))
	for i := range src {
		out[i] = &Descriptor{
			Name:   src[i].Name,
			Source: SourceHardcoded,
			Index:  i,
			record: &src[i].LevelRecord,
		}
	}
	return out
}
