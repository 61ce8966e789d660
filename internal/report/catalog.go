package report

import (
	"sort"

	"procwatch/internal/catalog"
)

// StepDump is one step of the catalog dump with the aliases resolving to it.
type StepDump struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Order   int      `json:"order"`
	Aliases []string `json:"aliases"`
}

// PhaseDump is one phase of the catalog dump.
type PhaseDump struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Steps []StepDump `json:"steps"`
}

// ProcessDump is the full alias view of one process.
type ProcessDump struct {
	ID     string      `json:"id"`
	Phases []PhaseDump `json:"phases"`
}

// CatalogDump is the compiled catalog written for debugging.
type CatalogDump struct {
	catalog.Summary

	LegacyProcessIDs map[string]string `json:"legacy_process_ids"`
	Detail           []ProcessDump     `json:"detail"`
}

// BuildCatalogDump renders the unified catalog.
func BuildCatalogDump(u *catalog.Unified) CatalogDump {
	if u == nil {
		return CatalogDump{LegacyProcessIDs: map[string]string{}, Detail: []ProcessDump{}}
	}

	dump := CatalogDump{
		Summary:          u.Summary(),
		LegacyProcessIDs: make(map[string]string, len(u.LegacyProcessIDs)),
		Detail:           make([]ProcessDump, 0, len(u.Processes)),
	}
	for k, v := range u.LegacyProcessIDs {
		dump.LegacyProcessIDs[k] = v
	}

	for _, p := range u.Processes {
		byStep := make(map[string][]string)
		for _, a := range u.StepAliasList(p.ID) {
			byStep[a.TargetID] = append(byStep[a.TargetID], a.Key)
		}

		pd := ProcessDump{ID: p.ID, Phases: make([]PhaseDump, 0, len(p.Phases))}
		for _, ph := range p.Phases {
			phd := PhaseDump{ID: ph.ID, Name: ph.Name, Steps: make([]StepDump, 0, len(ph.Steps))}
			for _, s := range ph.Steps {
				aliases := append([]string{}, byStep[s.ID]...)
				sort.Strings(aliases)
				phd.Steps = append(phd.Steps, StepDump{ID: s.ID, Name: s.Name, Order: s.Order, Aliases: aliases})
			}
			pd.Phases = append(pd.Phases, phd)
		}
		dump.Detail = append(dump.Detail, pd)
	}
	return dump
}
