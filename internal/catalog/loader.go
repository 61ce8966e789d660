package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Sources names the YAML files a unified catalog is built from.
type Sources struct {
	// AuthoritativePath is the authoritative process definition. Required.
	AuthoritativePath string

	// ProcessPaths are non-authoritative catalog files, merged in order.
	ProcessPaths []string

	// RolesPath is the role table. Optional; without it no role resolves.
	RolesPath string
}

// Options tunes catalog compilation.
type Options struct {
	// ReservedSynonyms replaces [DefaultReservedSynonyms] when non-empty.
	ReservedSynonyms []string
}

// Load reads every source, compiles the authoritative process and merges the
// rest into a [Unified] catalog.
func Load(src Sources, opts Options) (*Unified, error) {
	if src.AuthoritativePath == "" {
		return nil, configErrorf("", "", "authoritative process path is required")
	}

	def, err := ReadDefinitionFromFile(src.AuthoritativePath)
	if err != nil {
		return nil, err
	}

	reserved := opts.ReservedSynonyms
	if len(reserved) == 0 {
		reserved = DefaultReservedSynonyms
	}
	auth, err := Compile(def, CompileOptions{Authoritative: true, ReservedSynonyms: reserved})
	if err != nil {
		return nil, err
	}

	var others []*Definition
	for _, path := range src.ProcessPaths {
		defs, err := ReadProcessesFromFile(path)
		if err != nil {
			return nil, err
		}
		others = append(others, defs...)
	}

	var roles *RoleTable
	if src.RolesPath != "" {
		roles, err = ReadRolesFromFile(src.RolesPath)
		if err != nil {
			return nil, err
		}
	}

	return Merge(auth, others, roles)
}

// ReadDefinitionFromFile reads a single process definition.
func ReadDefinitionFromFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read process definition: %w", err)
	}
	return ReadDefinitionFromBytes(data, path)
}

// ReadDefinitionFromBytes parses a single process definition. source is used
// in error messages and recorded on the definition.
func ReadDefinitionFromBytes(data []byte, source string) (*Definition, error) {
	var def Definition
	if err := decodeStrict(data, &def); err != nil {
		return nil, configErrorf(source, "", "invalid process definition: %v", err)
	}
	def.Source = source
	return &def, nil
}

// ReadProcessesFromFile reads a non-authoritative catalog file.
//
// The expected format is:
//
//	processes:
//	  - id: onboarding
//	    name: Onboarding
//	    steps: [Paperwork, Equipment, First Day]
func ReadProcessesFromFile(path string) ([]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read process catalog: %w", err)
	}
	return ReadProcessesFromBytes(data, path)
}

// ReadProcessesFromBytes parses a non-authoritative catalog.
func ReadProcessesFromBytes(data []byte, source string) ([]*Definition, error) {
	var raw processesFile
	if err := decodeStrict(data, &raw); err != nil {
		return nil, configErrorf(source, "", "invalid process catalog: %v", err)
	}

	defs := make([]*Definition, len(raw.Processes))
	for i := range raw.Processes {
		def := raw.Processes[i]
		if def.ID == "" {
			return nil, configErrorf(source, "", "process at index %d has no id", i)
		}
		def.Source = source
		defs[i] = &def
	}
	return defs, nil
}

// ReadRolesFromFile reads the role table.
func ReadRolesFromFile(path string) (*RoleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles catalog: %w", err)
	}
	return ReadRolesFromBytes(data, path)
}

// ReadRolesFromBytes parses the role table, either at the top level or under
// a "roles" key.
func ReadRolesFromBytes(data []byte, source string) (*RoleTable, error) {
	var raw rolesFile
	if err := decodeStrict(data, &raw); err != nil {
		return nil, configErrorf(source, "", "invalid roles catalog: %v", err)
	}

	def := RoleDefinition{Canonical: raw.Canonical, Aliases: raw.Aliases}
	if raw.Roles != nil {
		if len(raw.Canonical) > 0 || len(raw.Aliases) > 0 {
			return nil, configErrorf(source, "", "roles defined both at the top level and under roles")
		}
		def = *raw.Roles
	}
	return NewRoleTable(def, source)
}

// decodeStrict decodes one YAML document and rejects unknown fields. An empty
// document is an error.
func decodeStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("document is empty")
		}
		return err
	}
	return nil
}
