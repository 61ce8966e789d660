package catalog

import (
	"procwatch/internal/normalize"
)

// Skip reasons.
const (
	SkipAuthoritativeID = "redefines authoritative process id"
	SkipReservedSynonym = "id is a reserved synonym of the authoritative process"
	SkipDeprecatedID    = "id is a deprecated id of the authoritative process"
)

// Merge builds the unified catalog from the compiled authoritative process
// and the other process definitions, in source order.
//
// The authoritative process can never be redefined: a definition whose
// normalized id is the authoritative id, a reserved synonym or a deprecated
// id is skipped and recorded. Two remaining definitions with the same id are
// a [ConfigError] naming both sources. When two processes register the same
// process alias the earlier one keeps it.
func Merge(auth *Compiled, others []*Definition, roles *RoleTable) (*Unified, error) {
	ap := auth.Process
	u := &Unified{
		AuthoritativeID:  ap.ID,
		StepAliases:      make(map[string]map[string]string),
		ProcessAliases:   make(map[string]string),
		ReservedSynonyms: append([]string{}, auth.ReservedSynonyms...),
		LegacyProcessIDs: make(map[string]string),
		Roles:            roles,
		aliases:          make(map[string][]Alias),
		processIndex:     make(map[string]int),
	}
	if u.Roles == nil {
		u.Roles = &RoleTable{aliases: make(map[string]string)}
	}

	for _, key := range auth.ReservedSynonyms {
		u.LegacyProcessIDs[key] = ap.ID
	}
	for _, key := range auth.DeprecatedIDs {
		u.LegacyProcessIDs[key] = ap.ID
	}

	authKey := normalize.Normalize(ap.ID)
	reserved := make(map[string]bool)
	for _, key := range auth.ReservedSynonyms {
		reserved[key] = true
	}
	deprecated := make(map[string]bool)
	for _, key := range auth.DeprecatedIDs {
		deprecated[key] = true
	}

	u.add(auth)
	sources := map[string]string{authKey: ap.Source}

	for _, def := range others {
		key := normalize.Normalize(def.ID)
		var reason string
		switch {
		case key == authKey:
			reason = SkipAuthoritativeID
		case reserved[key]:
			reason = SkipReservedSynonym
		case deprecated[key]:
			reason = SkipDeprecatedID
		}
		if reason != "" {
			u.Skipped = append(u.Skipped, Skip{ProcessID: def.ID, Source: def.Source, Reason: reason})
			continue
		}

		if prev, ok := sources[key]; ok {
			return nil, configErrorf(def.Source, def.ID, "duplicate process id, already defined in %s", prev)
		}

		c, err := Compile(def, CompileOptions{})
		if err != nil {
			return nil, err
		}
		sources[key] = def.Source
		u.add(c)
	}

	return u, nil
}

func (u *Unified) add(c *Compiled) {
	p := c.Process
	u.processIndex[p.ID] = len(u.Processes)
	u.Processes = append(u.Processes, p)
	u.StepAliases[p.ID] = c.StepAliases
	u.aliases[p.ID] = c.StepAliasList
	u.Conflicts = append(u.Conflicts, c.Conflicts...)

	for _, a := range c.ProcessAliases {
		if owner, ok := u.ProcessAliases[a.Key]; ok {
			u.Conflicts = append(u.Conflicts, Conflict{
				Kind:     ConflictProcessAlias,
				Scope:    "process",
				Key:      a.Key,
				Kept:     owner,
				Rejected: p.ID,
				Source:   p.Source,
			})
			continue
		}
		u.ProcessAliases[a.Key] = p.ID
		u.processAliases = append(u.processAliases, a)
	}
}
