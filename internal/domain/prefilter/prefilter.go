// Package prefilter ranks playbook categories for a chunk of contract text
// by weighted keyword and synonym hits.
package prefilter

import (
	"sort"
	"strings"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
)

const (
	// DefaultCategory is used for rules without a category.
	DefaultCategory = "GENERAL"
	// MaxCategories caps the ranked output.
	MaxCategories = 20

	keywordWeight = 2
	synonymWeight = 3
)

// CategoryScore is the accumulated score of one category.
type CategoryScore struct {
	Category string `json:"category"`
	Score    int    `json:"score"`
}

// Scores returns every category with a positive score, highest first. Ties
// keep the order in which categories were first seen in rules.
//
// Matching is plain substring containment, so "fee" also hits "coffee";
// padding a keyword with spaces (" fee ") narrows it to whole words. Blank
// entries never match.
func Scores(text string, rules []entities.Rule) []CategoryScore {
	lower := strings.ToLower(text)

	totals := make(map[string]int)
	var order []string
	for _, rule := range rules {
		cat := rule.Category
		if cat == "" {
			cat = DefaultCategory
		}

		score := 0
		for _, kw := range rule.SignalKeywords {
			if strings.TrimSpace(kw) != "" && strings.Contains(lower, strings.ToLower(kw)) {
				score += keywordWeight
			}
		}
		for _, syn := range rule.Synonyms {
			if strings.TrimSpace(syn) != "" && strings.Contains(lower, strings.ToLower(syn)) {
				score += synonymWeight
			}
		}
		if score == 0 {
			continue
		}

		if _, ok := totals[cat]; !ok {
			order = append(order, cat)
		}
		totals[cat] += score
	}

	out := make([]CategoryScore, 0, len(order))
	for _, cat := range order {
		out = append(out, CategoryScore{Category: cat, Score: totals[cat]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Rank returns at most MaxCategories category names, best first.
func Rank(text string, rules []entities.Rule) []string {
	scores := Scores(text, rules)
	if len(scores) > MaxCategories {
		scores = scores[:MaxCategories]
	}
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.Category
	}
	return out
}

// SelectRules returns the rules belonging to the first limit categories, in
// category rank order. limit <= 0 means all given categories.
func SelectRules(categories []string, rules []entities.Rule, limit int) []entities.Rule {
	if limit > 0 && len(categories) > limit {
		categories = categories[:limit]
	}

	var out []entities.Rule
	for _, cat := range categories {
		for _, r := range rules {
			rc := r.Category
			if rc == "" {
				rc = DefaultCategory
			}
			if rc == cat {
				out = append(out, r)
			}
		}
	}
	return out
}
