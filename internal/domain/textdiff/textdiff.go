// Package textdiff computes human-readable token diffs between an original
// clause and a proposed rewrite.
package textdiff

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

// tokenPattern splits text into runs of word characters, symbol characters
// and whitespace. Unicode separators such as NBSP count as whitespace. Every
// byte of the input belongs to exactly one token.
var tokenPattern = regexp.MustCompile(`\w+|[^\w\s\pZ]+|[\s\pZ]+`)

const (
	surrogateMin = 0xD800
	surrogateMax = 0xDFFF
	surrogateGap = surrogateMax - surrogateMin + 1
	maxRune      = 0x10FFFF
)

// Engine runs diffs and logs degraded results.
type Engine struct {
	log *logger.Logger
}

// New creates an engine. log may be nil.
func New(log *logger.Logger) *Engine {
	return &Engine{log: logger.OrNop(log).With("comp", "textdiff")}
}

// Diff returns the spans turning original into proposed. Concatenating the
// non-insert spans gives original and the non-delete spans give proposed.
// It never fails; internal errors degrade to a full delete and insert.
func (e *Engine) Diff(original, proposed string) []entities.DiffSpan {
	if original == proposed {
		if original == "" {
			return nil
		}
		return []entities.DiffSpan{{Op: entities.DiffEqual, Text: original}}
	}

	spans, err := e.tokenDiff(original, proposed)
	if err == nil {
		err = verify(spans, original, proposed)
	}
	if err != nil {
		e.log.Warn("token diff failed, using full replacement", "err", err)
		return fullReplacement(original, proposed)
	}
	return spans
}

// Diff runs a diff without logging.
func Diff(original, proposed string) []entities.DiffSpan {
	return New(nil).Diff(original, proposed)
}

func (e *Engine) tokenDiff(original, proposed string) (spans []entities.DiffSpan, err error) {
	defer func() {
		if r := recover(); r != nil {
			spans, err = nil, fmt.Errorf("diff panicked: %v", r)
		}
	}()

	vocab := newVocabulary()
	a, err := vocab.encode(original)
	if err != nil {
		return nil, err
	}
	b, err := vocab.encode(proposed)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	encoded := dmp.DiffMainRunes(a, b, false)

	expanded := make([]diffmatchpatch.Diff, 0, len(encoded))
	for _, d := range encoded {
		text, err := vocab.decode(d.Text)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, diffmatchpatch.Diff{Type: d.Type, Text: text})
	}

	// Cleanup runs on the expanded text so boundary shifts see real characters.
	cleaned := dmp.DiffCleanupSemantic(expanded)

	spans = make([]entities.DiffSpan, 0, len(cleaned))
	for _, d := range cleaned {
		if d.Text == "" {
			continue
		}
		spans = append(spans, entities.DiffSpan{Op: toOp(d.Type), Text: d.Text})
	}
	return spans, nil
}

func toOp(t diffmatchpatch.Operation) entities.DiffOp {
	switch t {
	case diffmatchpatch.DiffDelete:
		return entities.DiffDelete
	case diffmatchpatch.DiffInsert:
		return entities.DiffInsert
	default:
		return entities.DiffEqual
	}
}

// vocabulary maps each distinct token to one rune, in first-seen order.
// Ids skip the UTF-16 surrogate range so every rune survives string round trips.
type vocabulary struct {
	ids    map[string]rune
	tokens []string
}

func newVocabulary() *vocabulary {
	// Index 0 is unused so no token encodes to NUL.
	return &vocabulary{ids: make(map[string]rune), tokens: []string{""}}
}

func (v *vocabulary) encode(text string) ([]rune, error) {
	tokens := tokenPattern.FindAllString(text, -1)
	out := make([]rune, 0, len(tokens))
	for _, tok := range tokens {
		r, ok := v.ids[tok]
		if !ok {
			var err error
			r, err = idToRune(len(v.tokens))
			if err != nil {
				return nil, err
			}
			v.ids[tok] = r
			v.tokens = append(v.tokens, tok)
		}
		out = append(out, r)
	}
	return out, nil
}

func (v *vocabulary) decode(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		id := runeToID(r)
		if id <= 0 || id >= len(v.tokens) {
			return "", fmt.Errorf("unknown token id %d", id)
		}
		b.WriteString(v.tokens[id])
	}
	return b.String(), nil
}

func idToRune(id int) (rune, error) {
	r := id
	if r >= surrogateMin {
		r += surrogateGap
	}
	if r > maxRune {
		return 0, fmt.Errorf("token vocabulary exhausted at %d entries", id)
	}
	return rune(r), nil
}

func runeToID(r rune) int {
	if r > surrogateMax {
		return int(r) - surrogateGap
	}
	if r >= surrogateMin {
		return -1
	}
	return int(r)
}

// verify checks both concatenation properties of a diff.
func verify(spans []entities.DiffSpan, original, proposed string) error {
	var before, after strings.Builder
	for _, s := range spans {
		if s.Op != entities.DiffInsert {
			before.WriteString(s.Text)
		}
		if s.Op != entities.DiffDelete {
			after.WriteString(s.Text)
		}
	}
	if before.String() != original {
		return fmt.Errorf("diff does not reproduce the original text")
	}
	if after.String() != proposed {
		return fmt.Errorf("diff does not reproduce the proposed text")
	}
	return nil
}

func fullReplacement(original, proposed string) []entities.DiffSpan {
	var out []entities.DiffSpan
	if original != "" {
		out = append(out, entities.DiffSpan{Op: entities.DiffDelete, Text: original})
	}
	if proposed != "" {
		out = append(out, entities.DiffSpan{Op: entities.DiffInsert, Text: proposed})
	}
	return out
}
