package docx

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// maxLevels is the number of list levels WordprocessingML defines (ilvl 0-8).
const maxLevels = 9

// NumberingLevel is the definition of one level of an abstract numbering.
type NumberingLevel struct {
	Start     int
	Format    string // decimal, lowerLetter, upperRoman, bullet, ...
	LevelText string // e.g. "%1.%2."
}

// NumberingDefinition is an abstract numbering: per-level definitions keyed by ilvl.
type NumberingDefinition struct {
	Levels map[int]NumberingLevel
}

// --- numbering.xml structures ---

type numberingXML struct {
	AbstractNums []abstractNumXML `xml:"abstractNum"`
	Nums         []numXML         `xml:"num"`
}

type abstractNumXML struct {
	ID     string     `xml:"abstractNumId,attr"`
	Levels []levelXML `xml:"lvl"`
}

type levelXML struct {
	Ilvl    string  `xml:"ilvl,attr"`
	Start   *valXML `xml:"start"`
	NumFmt  *valXML `xml:"numFmt"`
	LvlText *valXML `xml:"lvlText"`
}

type numXML struct {
	ID            string  `xml:"numId,attr"`
	AbstractNumID *valXML `xml:"abstractNumId"`
}

type valXML struct {
	Val string `xml:"val,attr"`
}

func (v *valXML) value() string {
	if v == nil {
		return ""
	}
	return v.Val
}

// NumberingResolver renders list numbering prefixes. It owns the per-list
// counters, so one resolver must serve exactly one decode pass and calls must
// follow document order.
type NumberingResolver struct {
	instances map[string]string               // numId -> abstractNumId
	abstracts map[string]*NumberingDefinition // abstractNumId -> definition
	counters  map[string][]int                // numId -> counter per level
}

// NewNumberingResolver returns a resolver with no definitions; every prefix is empty.
func NewNumberingResolver() *NumberingResolver {
	return &NumberingResolver{
		instances: make(map[string]string),
		abstracts: make(map[string]*NumberingDefinition),
		counters:  make(map[string][]int),
	}
}

// ParseNumbering builds a resolver from the bytes of word/numbering.xml.
func ParseNumbering(data []byte) (*NumberingResolver, error) {
	var doc numberingXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling numbering.xml: %w", err)
	}

	r := NewNumberingResolver()
	for _, n := range doc.Nums {
		if n.ID == "" || n.AbstractNumID == nil {
			continue
		}
		r.instances[n.ID] = n.AbstractNumID.Val
	}

	for _, a := range doc.AbstractNums {
		if a.ID == "" {
			continue
		}
		def := &NumberingDefinition{Levels: make(map[int]NumberingLevel, len(a.Levels))}
		for _, lvl := range a.Levels {
			ilvl := atoiDefault(lvl.Ilvl, 0)
			if ilvl < 0 || ilvl >= maxLevels {
				continue
			}
			def.Levels[ilvl] = NumberingLevel{
				Start:     atoiDefault(lvl.Start.value(), 1),
				Format:    valueOr(lvl.NumFmt.value(), "decimal"),
				LevelText: valueOr(lvl.LvlText.value(), "%1"),
			}
		}
		r.abstracts[a.ID] = def
	}
	return r, nil
}

// Define registers an abstract definition and binds list instances to it.
func (r *NumberingResolver) Define(abstractID string, def NumberingDefinition, listIDs ...string) {
	d := def
	r.abstracts[abstractID] = &d
	for _, id := range listIDs {
		r.instances[id] = abstractID
	}
}

// PrefixFor advances the counter of listID at level and returns the rendered
// prefix followed by a tab. Unknown lists or levels yield "", as does any
// level outside 0-8.
func (r *NumberingResolver) PrefixFor(listID string, level int) string {
	if level < 0 || level >= maxLevels {
		return ""
	}
	abstractID, ok := r.instances[listID]
	if !ok {
		return ""
	}
	def, ok := r.abstracts[abstractID]
	if !ok {
		return ""
	}
	levelDef, ok := def.Levels[level]
	if !ok {
		return ""
	}

	counters := r.counters[listID]
	for i := len(counters); i <= level; i++ {
		counters = append(counters, def.startOf(i)-1)
	}

	counters[level]++

	for i := level + 1; i < maxLevels || i < len(counters); i++ {
		reset := 0
		if d, ok := def.Levels[i]; ok {
			reset = d.Start - 1
		}
		if i < len(counters) {
			counters[i] = reset
		} else {
			counters = append(counters, reset)
		}
	}
	r.counters[listID] = counters

	// Each %k takes its value and its format from level k-1, not the calling level.
	prefix := placeholderPattern.ReplaceAllStringFunc(levelDef.LevelText, func(m string) string {
		idx, err := strconv.Atoi(m[1:])
		if err != nil {
			return m
		}
		idx--
		if idx < 0 || idx >= len(counters) {
			return m
		}
		format := "decimal"
		if d, ok := def.Levels[idx]; ok {
			format = d.Format
		}
		return FormatValue(counters[idx], format)
	})
	return prefix + "\t"
}

var placeholderPattern = regexp.MustCompile(`%(\d+)`)

func (d *NumberingDefinition) startOf(level int) int {
	if l, ok := d.Levels[level]; ok {
		return l.Start
	}
	return 1
}

// FormatValue renders a counter in a numbering format.
func FormatValue(val int, format string) string {
	switch format {
	case "lowerLetter":
		return letter(val, 'a')
	case "upperLetter":
		return letter(val, 'A')
	case "lowerRoman":
		return strings.ToLower(toRoman(val))
	case "upperRoman":
		return toRoman(val)
	case "bullet":
		return "•"
	default:
		return strconv.Itoa(val)
	}
}

// letter maps 1 -> base, 2 -> base+1, ... by ASCII offset.
func letter(val int, base rune) string {
	if val < 1 {
		return strconv.Itoa(val)
	}
	return string(base + rune(val-1))
}

var romanTable = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

func toRoman(num int) string {
	var b strings.Builder
	for _, entry := range romanTable {
		for num >= entry.value {
			b.WriteString(entry.symbol)
			num -= entry.value
		}
	}
	return b.String()
}

func atoiDefault(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
