package catalog

import (
	"sort"

	"procwatch/internal/normalize"
)

// DefaultReservedSynonyms are the labels that always resolve to the
// authoritative process unless configuration replaces them.
var DefaultReservedSynonyms = []string{"recruiting", "recruitment", "hiring", "talent acquisition"}

// CompileOptions controls how a definition is compiled.
type CompileOptions struct {
	// Authoritative marks the process as the authoritative one. Only the
	// authoritative process registers reserved synonyms and deprecated ids.
	Authoritative bool

	// ReservedSynonyms are registered as process aliases of the authoritative
	// process. Ignored for other processes.
	ReservedSynonyms []string
}

// Compiled is the output of [Compile] for one process.
type Compiled struct {
	Process *Process

	// StepAliases maps normalized alias -> step id.
	StepAliases map[string]string

	// StepAliasList holds the same aliases in registration order.
	StepAliasList []Alias

	// ProcessAliases are the normalized process labels in registration order.
	ProcessAliases []Alias

	// ReservedSynonyms and DeprecatedIDs are normalized. Both are empty for a
	// non-authoritative process.
	ReservedSynonyms []string
	DeprecatedIDs    []string

	Conflicts []Conflict
}

// Compile validates a definition and turns it into a [Process] with its
// seeded alias maps.
//
// Step aliases are seeded from every step's id, name and short name in step
// order; when two steps produce the same key the earlier step keeps it and a
// conflict is recorded. The definition's step_aliases are added next, then
// its overrides. Both fail with a [ConfigError] when they name an unknown
// step or move an alias to a different step without the override flag.
func Compile(def *Definition, opts CompileOptions) (*Compiled, error) {
	src := def.Source
	id := normalize.Collapse(def.ID)
	if id == "" {
		return nil, configErrorf(src, "", "process id is required")
	}

	phases, err := compilePhases(def, id)
	if err != nil {
		return nil, err
	}

	name := normalize.Collapse(def.Name)
	if name == "" {
		name = id
	}

	c := &Compiled{
		Process:     newProcess(id, name, opts.Authoritative, phases, src),
		StepAliases: make(map[string]string),
	}

	for _, s := range c.Process.Steps {
		c.seedStepAlias(s.ID, SourceID, s.ID)
		c.seedStepAlias(s.Name, SourceName, s.ID)
		c.seedStepAlias(s.ShortName, SourceShortName, s.ID)
	}

	stepKeys := make([]string, 0, len(def.StepAliases))
	for k := range def.StepAliases {
		stepKeys = append(stepKeys, k)
	}
	sort.Strings(stepKeys)
	for _, ref := range stepKeys {
		for _, alias := range def.StepAliases[ref] {
			if err := c.overrideStepAlias(src, OverrideDefinition{Alias: alias, Step: ref}, SourceSynonym); err != nil {
				return nil, err
			}
		}
	}

	for _, o := range def.Overrides {
		if err := c.overrideStepAlias(src, o, SourceOverride); err != nil {
			return nil, err
		}
	}

	if opts.Authoritative {
		for _, r := range opts.ReservedSynonyms {
			if key := normalize.Normalize(r); key != "" {
				c.ReservedSynonyms = appendUnique(c.ReservedSynonyms, key)
				c.addProcessAlias(key, SourceReserved)
			}
		}
	}
	for _, syn := range def.Synonyms {
		c.addProcessAlias(normalize.Normalize(syn), SourceSynonym)
	}
	c.addProcessAlias(normalize.Normalize(name), SourceName)
	c.addProcessAlias(normalize.Normalize(id), SourceID)
	if opts.Authoritative {
		for _, dep := range def.DeprecatedIDs {
			if key := normalize.Normalize(dep); key != "" {
				c.DeprecatedIDs = appendUnique(c.DeprecatedIDs, key)
				c.addProcessAlias(key, SourceID)
			}
		}
	}

	return c, nil
}

func compilePhases(def *Definition, processID string) ([]Phase, error) {
	src := def.Source
	if len(def.Phases) > 0 && len(def.Steps) > 0 {
		return nil, configErrorf(src, processID, "define either phases or steps, not both")
	}

	phaseDefs := def.Phases
	if len(phaseDefs) == 0 {
		if len(def.Steps) == 0 {
			return nil, configErrorf(src, processID, "process has no steps")
		}
		phaseDefs = []PhaseDefinition{{ID: processID, Name: def.Name, Steps: def.Steps}}
	}

	seenPhases := make(map[string]bool)
	seenSteps := make(map[string]string)
	order := 0
	phases := make([]Phase, 0, len(phaseDefs))

	for i, pd := range phaseDefs {
		phaseID := normalize.Collapse(pd.ID)
		if phaseID == "" {
			return nil, configErrorf(src, processID, "phase %d has no id", i+1)
		}
		if seenPhases[normalize.Normalize(phaseID)] {
			return nil, configErrorf(src, processID, "duplicate phase id %q", phaseID)
		}
		seenPhases[normalize.Normalize(phaseID)] = true
		if len(pd.Steps) == 0 {
			return nil, configErrorf(src, processID, "phase %q has no steps", phaseID)
		}

		phaseName := normalize.Collapse(pd.Name)
		if phaseName == "" {
			phaseName = phaseID
		}
		ph := Phase{ID: phaseID, Name: phaseName, Order: i + 1}

		for _, sd := range pd.Steps {
			stepID := normalize.Collapse(sd.ID)
			if stepID == "" {
				return nil, configErrorf(src, processID, "step without id in phase %q", phaseID)
			}
			key := normalize.Normalize(stepID)
			if prev, ok := seenSteps[key]; ok {
				return nil, configErrorf(src, processID, "duplicate step id %q (collides with %q)", stepID, prev)
			}
			seenSteps[key] = stepID

			stepName := normalize.Collapse(sd.Name)
			if stepName == "" {
				stepName = stepID
			}
			order++
			ph.Steps = append(ph.Steps, Step{
				ID:        stepID,
				Name:      stepName,
				ShortName: normalize.Collapse(sd.ShortName),
				PhaseID:   phaseID,
				Order:     order,
			})
		}
		phases = append(phases, ph)
	}
	return phases, nil
}

// seedStepAlias registers text as an alias of stepID unless an earlier step
// already owns the key.
func (c *Compiled) seedStepAlias(text, source, stepID string) {
	key := normalize.Normalize(text)
	if key == "" {
		return
	}
	if owner, ok := c.StepAliases[key]; ok {
		if owner != stepID {
			c.Conflicts = append(c.Conflicts, Conflict{
				Kind:     ConflictStepAliasSeed,
				Scope:    c.Process.ID,
				Key:      key,
				Kept:     owner,
				Rejected: stepID,
				Source:   source,
			})
		}
		return
	}
	c.setStepAlias(key, stepID, source)
}

func (c *Compiled) overrideStepAlias(src string, o OverrideDefinition, source string) error {
	pid := c.Process.ID
	stepID, ok := c.Process.StepByNormalizedID(normalize.Normalize(o.Step))
	if !ok {
		return configErrorf(src, pid, "alias %q targets unknown step %q", o.Alias, o.Step)
	}
	key := normalize.Normalize(o.Alias)
	if key == "" {
		return configErrorf(src, pid, "empty alias for step %q", stepID)
	}

	owner, exists := c.StepAliases[key]
	switch {
	case !exists:
		c.setStepAlias(key, stepID, source)
	case owner == stepID:
	case !o.Override:
		return configErrorf(src, pid, "alias %q already maps to step %q; set override: true to remap it to %q", key, owner, stepID)
	default:
		c.Conflicts = append(c.Conflicts, Conflict{
			Kind:     ConflictOverrideRemap,
			Scope:    pid,
			Key:      key,
			Kept:     stepID,
			Rejected: owner,
			Source:   source,
		})
		c.setStepAlias(key, stepID, source)
	}
	return nil
}

func (c *Compiled) setStepAlias(key, stepID, source string) {
	if _, exists := c.StepAliases[key]; exists {
		for i := range c.StepAliasList {
			if c.StepAliasList[i].Key == key {
				c.StepAliasList[i].TargetID = stepID
				c.StepAliasList[i].Source = source
			}
		}
	} else {
		c.StepAliasList = append(c.StepAliasList, Alias{Key: key, TargetKind: TargetStep, TargetID: stepID, Source: source})
	}
	c.StepAliases[key] = stepID
}

func (c *Compiled) addProcessAlias(key, source string) {
	if key == "" {
		return
	}
	for _, a := range c.ProcessAliases {
		if a.Key == key {
			return
		}
	}
	c.ProcessAliases = append(c.ProcessAliases, Alias{Key: key, TargetKind: TargetProcess, TargetID: c.Process.ID, Source: source})
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
