package catalog

import (
	"sort"

	"procwatch/internal/normalize"
)

// RoleTable is the exact-only role vocabulary. A raw role resolves when its
// normal form equals a canonical role or one of its aliases; there is no
// fuzzy tier for roles.
type RoleTable struct {
	canonical []string
	aliases   map[string]string
	list      []Alias
}

// NewRoleTable builds a role table from its definition. An alias listed under
// a role that is not canonical, or a key claimed by two different roles, is a
// [ConfigError].
func NewRoleTable(def RoleDefinition, source string) (*RoleTable, error) {
	rt := &RoleTable{aliases: make(map[string]string)}

	canonical := make(map[string]bool, len(def.Canonical))
	for _, role := range def.Canonical {
		role = normalize.Collapse(role)
		if role == "" {
			return nil, configErrorf(source, "", "empty canonical role")
		}
		if err := rt.add(normalize.Normalize(role), role, SourceName, source); err != nil {
			return nil, err
		}
		canonical[role] = true
		rt.canonical = append(rt.canonical, role)
	}

	roles := make([]string, 0, len(def.Aliases))
	for role := range def.Aliases {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		target := normalize.Collapse(role)
		if !canonical[target] {
			return nil, configErrorf(source, role, "alias key is not a canonical role")
		}
		for _, alias := range def.Aliases[role] {
			key := normalize.Normalize(alias)
			if key == "" {
				continue
			}
			if err := rt.add(key, target, SourceSynonym, source); err != nil {
				return nil, err
			}
		}
	}
	return rt, nil
}

func (rt *RoleTable) add(key, role, aliasSource, source string) error {
	if owner, ok := rt.aliases[key]; ok {
		if owner == role {
			return nil
		}
		return configErrorf(source, role, "role alias %q already maps to %q", key, owner)
	}
	rt.aliases[key] = role
	rt.list = append(rt.list, Alias{Key: key, TargetKind: TargetRole, TargetID: role, Source: aliasSource})
	return nil
}

// Lookup resolves a raw role label to its canonical role.
func (rt *RoleTable) Lookup(raw string) (string, bool) {
	if rt == nil {
		return "", false
	}
	role, ok := rt.aliases[normalize.Normalize(raw)]
	return role, ok
}

// Canonical returns the canonical roles in definition order.
func (rt *RoleTable) Canonical() []string {
	if rt == nil {
		return nil
	}
	return append([]string(nil), rt.canonical...)
}

// Aliases returns every registered role key in registration order.
func (rt *RoleTable) Aliases() []Alias {
	if rt == nil {
		return nil
	}
	return append([]Alias(nil), rt.list...)
}

// Len is the number of registered keys, canonical names included.
func (rt *RoleTable) Len() int {
	if rt == nil {
		return 0
	}
	return len(rt.aliases)
}
