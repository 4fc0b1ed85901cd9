package symptoms

import (
	"sort"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Phrases maps each canonical symptom tag to the phrases that indicate it.
var Phrases = map[string][]string{
	"fever":               {"fever", "high temperature", "chills", "hot body"},
	"cough":               {"cough", "coughing", "dry cough", "productive cough"},
	"headache":            {"headache", "migraine", "head pain"},
	"fatigue":             {"fatigue", "tired", "weakness", "exhausted"},
	"shortness_of_breath": {"shortness of breath", "breathless", "difficulty breathing", "dyspnea"},
	"chest_pain":          {"chest pain", "pressure in chest", "tight chest"},
	"sore_throat":         {"sore throat", "throat pain", "scratchy throat"},
	"nausea":              {"nausea", "vomiting", "queasy"},
	"diarrhea":            {"diarrhea", "loose stool", "watery stool"},
	"dizziness":           {"dizzy", "dizziness", "lightheaded"},
}

// Tags returns the canonical tags in sorted order.
func Tags() []string {
	tags := make([]string, 0, len(Phrases))
	for tag := range Phrases {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// KeywordMatcher finds phrases on word boundaries in one pass over the text.
type KeywordMatcher struct {
	machine *goahocorasick.Machine
	tagOf   map[string]string
}

func NewKeywordMatcher(phrases map[string][]string) (*KeywordMatcher, error) {
	tagOf := make(map[string]string)
	for tag, list := range phrases {
		for _, phrase := range list {
			tagOf[string(lowerRunes([]rune(phrase)))] = tag
		}
	}

	keys := make([]string, 0, len(tagOf))
	for key := range tagOf {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	patterns := make([][]rune, len(keys))
	for i, key := range keys {
		patterns[i] = []rune(key)
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &KeywordMatcher{machine: m, tagOf: tagOf}, nil
}

// Match returns the set of tags whose phrases occur in text as whole words,
// ignoring case.
func (k *KeywordMatcher) Match(text string) map[string]struct{} {
	found := make(map[string]struct{})
	runes := lowerRunes([]rune(text))
	if len(runes) == 0 {
		return found
	}

	for _, hit := range k.machine.MultiPatternSearch(runes, false) {
		start, end := hit.Pos, hit.Pos+len(hit.Word)
		if start < 0 || end > len(runes) {
			continue
		}
		if start > 0 && isWordRune(runes[start-1]) {
			continue
		}
		if end < len(runes) && isWordRune(runes[end]) {
			continue
		}
		if tag, ok := k.tagOf[string(hit.Word)]; ok {
			found[tag] = struct{}{}
		}
	}
	return found
}

func lowerRunes(in []rune) []rune {
	out := make([]rune, len(in))
	for i, r := range in {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
