package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is the YAML form of one process.
//
// A process lists its steps either grouped in phases or, as a shorthand, as a
// flat steps list that compiles to a single implicit phase:
//
//	id: recruiting
//	name: Recruiting
//	synonyms: [staffing]
//	deprecated_ids: [hiring-v1]
//	phases:
//	  - id: sourcing
//	    name: Sourcing
//	    steps:
//	      - id: intake
//	        name: Intake Call
//	        short_name: intake
//	      - Client Profile Feedback
//	step_aliases:
//	  intake: [kickoff, kick off call]
//	overrides:
//	  - alias: feedback
//	    step: client profile feedback
//	    override: true
type Definition struct {
	ID            string               `yaml:"id"`
	Name          string               `yaml:"name"`
	Synonyms      []string             `yaml:"synonyms"`
	DeprecatedIDs []string             `yaml:"deprecated_ids"`
	Phases        []PhaseDefinition    `yaml:"phases"`
	Steps         []StepDefinition     `yaml:"steps"`
	StepAliases   map[string][]string  `yaml:"step_aliases"`
	Overrides     []OverrideDefinition `yaml:"overrides"`

	// Source is the file the definition was read from. Set by the loader.
	Source string `yaml:"-"`
}

// PhaseDefinition is the YAML form of a phase.
type PhaseDefinition struct {
	ID    string           `yaml:"id"`
	Name  string           `yaml:"name"`
	Steps []StepDefinition `yaml:"steps"`
}

// StepDefinition is the YAML form of a step. A bare scalar is accepted and
// used as both id and name.
type StepDefinition struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	ShortName string `yaml:"short_name"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StepDefinition) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s.ID = node.Value
		s.Name = node.Value
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			switch key := node.Content[i].Value; key {
			case "id", "name", "short_name":
			default:
				return fmt.Errorf("line %d: field %s not found in step", node.Content[i].Line, key)
			}
		}
		type plain StepDefinition
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*s = StepDefinition(p)
		return nil
	default:
		return fmt.Errorf("line %d: step must be a string or a mapping", node.Line)
	}
}

// OverrideDefinition adds or remaps a step alias after seeding. Remapping an
// alias that already points at another step requires Override.
type OverrideDefinition struct {
	Alias    string `yaml:"alias"`
	Step     string `yaml:"step"`
	Override bool   `yaml:"override"`
}

// processesFile is the raw shape of a non-authoritative catalog file.
type processesFile struct {
	Processes []Definition `yaml:"processes"`
}

// RoleDefinition is the YAML form of the role table. Every alias key must be
// one of the canonical roles.
//
//	canonical: [Backend Engineer, Data Scientist, Other, Unknown]
//	aliases:
//	  Backend Engineer: [backend dev, server engineer]
type RoleDefinition struct {
	Canonical []string            `yaml:"canonical"`
	Aliases   map[string][]string `yaml:"aliases"`
}

// rolesFile accepts the role table either at the top level or under a
// "roles" key.
type rolesFile struct {
	Roles     *RoleDefinition     `yaml:"roles"`
	Canonical []string            `yaml:"canonical"`
	Aliases   map[string][]string `yaml:"aliases"`
}
