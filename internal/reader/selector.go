// Package reader implements the Output Reader state machine (§4.5): track
// selection, seeking, prepareNext, real-time pacing, and lookahead gating.
package reader

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mistcore/mist-core/internal/bus"
	"github.com/mistcore/mist-core/internal/config"
)

// iso639TwoToThree maps the common 2-letter language codes to their
// 3-letter form, mirroring Encodings::ISO639::twoToThree for the subset of
// languages actually seen tagged on tracks in practice.
var iso639TwoToThree = map[string]string{
	"en": "eng", "nl": "nld", "de": "deu", "fr": "fra", "es": "spa",
	"it": "ita", "pt": "por", "ru": "rus", "ja": "jpn", "zh": "zho",
	"ko": "kor", "ar": "ara", "sv": "swe", "pl": "pol", "tr": "tur",
}

// UARule blacklists or whitelists a codec from the default selection based
// on a case-insensitive substring match against the client's user agent.
type UARule struct {
	Codec     string
	Blacklist []string
	Whitelist []string
}

func (r UARule) excludes(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if len(r.Whitelist) > 0 {
		for _, w := range r.Whitelist {
			if strings.Contains(ua, strings.ToLower(w)) {
				return false
			}
		}
		return true
	}
	for _, b := range r.Blacklist {
		if strings.Contains(ua, strings.ToLower(b)) {
			return true
		}
	}
	return false
}

// SelectTrack resolves one comma-separated trackVal against tracks of the
// given kind, returning the matched track IDs in ascending order (§4.5
// "Select tracks"). An empty, "0", or "none" trackVal selects nothing.
func SelectTrack(tracks []bus.Track, kind bus.TrackKind, trackVal string) []uint32 {
	trackVal = strings.TrimSpace(trackVal)
	if trackVal == "" || trackVal == "0" || trackVal == "none" {
		return nil
	}

	var out []uint32
	seen := map[uint32]bool{}
	add := func(id uint32) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, item := range strings.Split(trackVal, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if id, err := strconv.ParseUint(item, 10, 32); err == nil {
			for _, t := range tracks {
				if t.ID == uint32(id) && t.Kind == kind {
					add(t.ID)
				}
			}
			continue
		}

		lower := strings.ToLower(item)
		if lower == "all" || lower == "*" {
			for _, t := range tracks {
				if t.Kind == kind {
					add(t.ID)
				}
			}
			continue
		}

		lang := lower
		if len(lang) == 2 {
			if three, ok := iso639TwoToThree[lang]; ok {
				lang = three
			}
		}
		for _, t := range tracks {
			if t.Kind != kind {
				continue
			}
			if strings.ToLower(t.Language) == lang || lang == strings.ToLower(t.Codec) {
				add(t.ID)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// parseSlotSpec splits a raw codecs-template spec into its match value and
// the two optional leading-character flags from the original's
// capa["codecs"] combination matrix: '@' matches by track kind instead of
// codec name, '+' selects every matching track for this slot instead of
// just one.
func parseSlotSpec(spec string) (value string, byType, multi bool) {
	for len(spec) > 0 {
		switch spec[0] {
		case '@':
			byType = true
			spec = spec[1:]
		case '+':
			multi = true
			spec = spec[1:]
		default:
			return spec, byType, multi
		}
	}
	return spec, byType, multi
}

func specMatches(t bus.Track, value string, byType bool) bool {
	if value == "*" {
		return true
	}
	if byType {
		return strings.EqualFold(t.Kind.String(), value)
	}
	return strings.EqualFold(t.Codec, value)
}

func slotIsMulti(slot config.TemplateSlot) bool {
	for _, spec := range slot.Specs {
		if _, _, multi := parseSlotSpec(spec); multi {
			return true
		}
	}
	return false
}

// slotCandidates returns the tracks matching any of slot's alternatives
// and not excluded for userAgent, newest (highest id) first — the
// original prefers the newest track of a live stream when filling a slot.
func slotCandidates(tracks []bus.Track, slot config.TemplateSlot, userAgent string, ruleByCodec map[string]UARule) []bus.Track {
	var out []bus.Track
	seen := map[uint32]bool{}
	for _, spec := range slot.Specs {
		value, byType, _ := parseSlotSpec(spec)
		for _, t := range tracks {
			if seen[t.ID] || !specMatches(t, value, byType) {
				continue
			}
			if rule, ok := ruleByCodec[strings.ToLower(t.Codec)]; ok && rule.excludes(userAgent) {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// scoreTemplate counts how many of template's slots have at least one
// eligible candidate track, and how many tracks filling it would select
// in total (every match for a '+' slot, one otherwise) — the comparison
// Output::selectDefaultTracks's selCounter makes across capa["codecs"]
// combinations, generalized to compare templates against each other
// instead of against an already-fixed selection.
func scoreTemplate(template []config.TemplateSlot, tracks []bus.Track, userAgent string, ruleByCodec map[string]UARule) (matchedSlots, selectable int) {
	for _, slot := range template {
		cands := slotCandidates(tracks, slot, userAgent, ruleByCodec)
		if len(cands) == 0 {
			continue
		}
		matchedSlots++
		if slotIsMulti(slot) {
			selectable += len(cands)
		} else {
			selectable++
		}
	}
	return matchedSlots, selectable
}

// fillTemplate selects tracks for template's slots: every candidate for a
// '+' slot, the single newest candidate otherwise.
func fillTemplate(template []config.TemplateSlot, tracks []bus.Track, userAgent string, ruleByCodec map[string]UARule) []uint32 {
	seen := map[uint32]bool{}
	var out []uint32
	add := func(id uint32) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, slot := range template {
		cands := slotCandidates(tracks, slot, userAgent, ruleByCodec)
		if len(cands) == 0 {
			continue
		}
		if slotIsMulti(slot) {
			for _, t := range cands {
				add(t.ID)
			}
		} else {
			add(cands[0].ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SelectDefault picks tracks for a client that named no explicit
// selection (§4.5 "Select tracks" default rule): of the candidate
// codec-combination templates, choose whichever covers the most slots
// against tracks (ties keep the earliest-listed template, then the one
// selecting more tracks), then fill every slot of the winner. Mirrors
// Output::selectDefaultTracks's two-pass "score every capa['codecs']
// combination, then fill the best one" structure.
//
// With no templates — a descriptor that carries no "codecs" matrix —
// falls back to one representative track per kind (the newest, UA-
// permitting one), since there is then no combination to maximize over.
func SelectDefault(tracks []bus.Track, userAgent string, rules []UARule, templates [][]config.TemplateSlot) []uint32 {
	ruleByCodec := map[string]UARule{}
	for _, r := range rules {
		ruleByCodec[strings.ToLower(r.Codec)] = r
	}

	if len(templates) > 0 {
		bestIdx, bestMatched, bestSelectable := -1, -1, -1
		for i, tmpl := range templates {
			matched, selectable := scoreTemplate(tmpl, tracks, userAgent, ruleByCodec)
			if matched == 0 {
				continue
			}
			if matched > bestMatched || (matched == bestMatched && selectable > bestSelectable) {
				bestIdx, bestMatched, bestSelectable = i, matched, selectable
			}
		}
		if bestIdx >= 0 {
			return fillTemplate(templates[bestIdx], tracks, userAgent, ruleByCodec)
		}
	}

	byKind := map[bus.TrackKind][]bus.Track{}
	for _, t := range tracks {
		byKind[t.Kind] = append(byKind[t.Kind], t)
	}

	var out []uint32
	for _, group := range byKind {
		sort.Slice(group, func(i, j int) bool { return group[i].ID > group[j].ID })
		for _, t := range group {
			if rule, ok := ruleByCodec[strings.ToLower(t.Codec)]; ok && rule.excludes(userAgent) {
				continue
			}
			out = append(out, t.ID)
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
