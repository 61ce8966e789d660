package canonical

import (
	"sort"
	"unicode/utf8"

	"procwatch/internal/normalize"
)

// MatchType is the tier that produced a step match.
type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchAlias MatchType = "alias"
	MatchFuzzy MatchType = "fuzzy"
	MatchNone  MatchType = "none"
)

// StepMatch is the result of [Canonicalizer.MatchStep].
type StepMatch struct {
	StepID       string
	Type         MatchType
	Score        float64
	MatchedAlias string

	// Ambiguous lists the step ids that matched in the fuzzy tier when more
	// than one did. Type is MatchNone in that case.
	Ambiguous []string
}

// MatchStep resolves free text to a step of the given process.
//
// Tiers run in order and the first hit wins:
//  1. exact: the normalized text equals a step id's normal form, score 1.0
//  2. alias: the normalized text is a step alias key, score Rules.AliasScore
//  3. fuzzy: a step id or alias contains the text or is contained by it.
//     Exactly one step may match; its score is the best length ratio among
//     its matching labels. Zero or several matching steps yield MatchNone.
func (c *Canonicalizer) MatchStep(processID, text string) StepMatch {
	none := StepMatch{Type: MatchNone}

	p, ok := c.catalog.Process(processID)
	if !ok {
		return none
	}
	key := normalize.Normalize(text)
	if key == "" {
		return none
	}

	if id, ok := p.StepByNormalizedID(key); ok {
		return StepMatch{StepID: id, Type: MatchExact, Score: 1.0, MatchedAlias: key}
	}

	if id, ok := c.catalog.StepAliases[processID][key]; ok {
		return StepMatch{StepID: id, Type: MatchAlias, Score: c.rules.AliasScore, MatchedAlias: key}
	}

	if !c.rules.StepFuzzy {
		return none
	}

	var hits []StepMatch
	for _, sc := range c.candidates[processID] {
		best := StepMatch{StepID: sc.stepID, Type: MatchFuzzy}
		for _, label := range sc.keys {
			if !normalize.Contains(label, key, c.rules.MinFuzzyLength) {
				continue
			}
			if r := normalize.LengthRatio(label, key); r > best.Score {
				best.Score = r
				best.MatchedAlias = label
			}
		}
		if best.MatchedAlias != "" {
			hits = append(hits, best)
		}
	}

	switch len(hits) {
	case 0:
		return none
	case 1:
		return hits[0]
	default:
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.StepID
		}
		sort.Strings(ids)
		return StepMatch{Type: MatchNone, Ambiguous: ids}
	}
}

// ResolveProcess maps raw process text to a process id.
//
// A reserved synonym of the authoritative process, matched either exactly or
// as a whole-word phrase anywhere in the text, forces the authoritative id
// regardless of other signals. Otherwise an exact alias wins, then, when
// enabled, a whole-word alias containment that points at exactly one process.
func (c *Canonicalizer) ResolveProcess(raw string) (string, bool) {
	u := c.catalog
	key := normalize.Normalize(raw)
	if key == "" {
		return "", false
	}

	if u.IsReserved(key) {
		return u.AuthoritativeID, true
	}
	if pid, ok := u.ProcessAliases[key]; ok {
		return pid, true
	}

	for _, syn := range u.ReservedSynonyms {
		if normalize.ContainsPhrase(key, syn) {
			return u.AuthoritativeID, true
		}
	}

	if !c.rules.ProcessFuzzy {
		return "", false
	}

	found := ""
	for _, a := range u.ProcessAliasList() {
		if utf8.RuneCountInString(a.Key) < c.rules.MinFuzzyLength {
			continue
		}
		if !normalize.ContainsPhrase(key, a.Key) {
			continue
		}
		if found != "" && found != a.TargetID {
			return "", false
		}
		found = a.TargetID
	}
	return found, found != ""
}
