package docx

import "testing"

func decimalLevels() NumberingDefinition {
	return NumberingDefinition{Levels: map[int]NumberingLevel{
		0: {Start: 1, Format: "decimal", LevelText: "%1."},
		1: {Start: 1, Format: "decimal", LevelText: "%1.%2."},
		2: {Start: 1, Format: "decimal", LevelText: "%1.%2.%3."},
	}}
}

func TestPrefixFor_MultiLevelSequence(t *testing.T) {
	r := NewNumberingResolver()
	r.Define("0", decimalLevels(), "1")

	steps := []struct {
		level int
		want  string
	}{
		{0, "1.\t"},
		{1, "1.1.\t"},
		{2, "1.1.1.\t"},
		{2, "1.1.2.\t"},
		{0, "2.\t"},
		{1, "2.1.\t"},
	}
	for i, s := range steps {
		if got := r.PrefixFor("1", s.level); got != s.want {
			t.Errorf("step %d (level %d): expected %q, got %q", i, s.level, s.want, got)
		}
	}
}

func TestPrefixFor_SharedAbstractKeepsSeparateCounters(t *testing.T) {
	r := NewNumberingResolver()
	r.Define("A", decimalLevels(), "1", "2")

	r.PrefixFor("1", 0)
	if got := r.PrefixFor("1", 0); got != "2.\t" {
		t.Errorf("list 1: expected 2., got %q", got)
	}
	if got := r.PrefixFor("2", 0); got != "1.\t" {
		t.Errorf("list 2 should start fresh, got %q", got)
	}
}

func TestPrefixFor_UnknownListOrLevel(t *testing.T) {
	r := NewNumberingResolver()
	r.Define("0", decimalLevels(), "1")

	if got := r.PrefixFor("99", 0); got != "" {
		t.Errorf("unknown list should be empty, got %q", got)
	}
	if got := r.PrefixFor("1", 5); got != "" {
		t.Errorf("undefined level should be empty, got %q", got)
	}
}

func TestPrefixFor_FormatsPerLevel(t *testing.T) {
	r := NewNumberingResolver()
	r.Define("0", NumberingDefinition{Levels: map[int]NumberingLevel{
		0: {Start: 1, Format: "upperRoman", LevelText: "%1)"},
		1: {Start: 1, Format: "lowerLetter", LevelText: "%1(%2)"},
	}}, "7")

	want := []struct {
		level int
		out   string
	}{
		{0, "I)\t"},
		{1, "I(a)\t"},
		{1, "I(b)\t"},
		{0, "II)\t"},
		{1, "II(a)\t"},
	}
	for _, w := range want {
		if got := r.PrefixFor("7", w.level); got != w.out {
			t.Errorf("expected %q, got %q", w.out, got)
		}
	}
}

func TestPrefixFor_CustomStart(t *testing.T) {
	r := NewNumberingResolver()
	r.Define("0", NumberingDefinition{Levels: map[int]NumberingLevel{
		0: {Start: 5, Format: "decimal", LevelText: "%1."},
	}}, "1")

	if got := r.PrefixFor("1", 0); got != "5.\t" {
		t.Errorf("expected 5., got %q", got)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		val    int
		format string
		want   string
	}{
		{3, "decimal", "3"},
		{1, "lowerLetter", "a"},
		{3, "upperLetter", "C"},
		{4, "lowerRoman", "iv"},
		{1994, "upperRoman", "MCMXCIV"},
		{2, "bullet", "•"},
		{7, "somethingElse", "7"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.val, tt.format); got != tt.want {
			t.Errorf("FormatValue(%d, %s) = %q, want %q", tt.val, tt.format, got, tt.want)
		}
	}
}

const numberingFixture = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:numbering xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:abstractNum w:abstractNumId="0">
    <w:lvl w:ilvl="0"><w:start w:val="1"/><w:numFmt w:val="decimal"/><w:lvlText w:val="%1."/></w:lvl>
    <w:lvl w:ilvl="1"><w:start w:val="1"/><w:numFmt w:val="lowerLetter"/><w:lvlText w:val="(%2)"/></w:lvl>
  </w:abstractNum>
  <w:abstractNum w:abstractNumId="1">
    <w:lvl w:ilvl="0"><w:lvlText w:val="Art. %1"/></w:lvl>
  </w:abstractNum>
  <w:num w:numId="5"><w:abstractNumId w:val="0"/></w:num>
  <w:num w:numId="6"><w:abstractNumId w:val="1"/></w:num>
</w:numbering>`

func TestParseNumbering(t *testing.T) {
	r, err := ParseNumbering([]byte(numberingFixture))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if got := r.PrefixFor("5", 0); got != "1.\t" {
		t.Errorf("expected 1., got %q", got)
	}
	if got := r.PrefixFor("5", 1); got != "(a)\t" {
		t.Errorf("expected (a), got %q", got)
	}
	// Missing start/numFmt fall back to 1 and decimal.
	if got := r.PrefixFor("6", 0); got != "Art. 1\t" {
		t.Errorf("expected defaults, got %q", got)
	}
}

func TestParseNumbering_Invalid(t *testing.T) {
	if _, err := ParseNumbering([]byte("<w:numbering><broken")); err == nil {
		t.Error("expected error for malformed xml")
	}
}

func TestParseNumbering_DropsOutOfRangeLevels(t *testing.T) {
	src := `<w:numbering ` + wNS + `>
  <w:abstractNum w:abstractNumId="0">
    <w:lvl w:ilvl="0"><w:lvlText w:val="%1."/></w:lvl>
    <w:lvl w:ilvl="50000000"><w:lvlText w:val="%1."/></w:lvl>
    <w:lvl w:ilvl="-1"><w:lvlText w:val="%1."/></w:lvl>
  </w:abstractNum>
  <w:num w:numId="1"><w:abstractNumId w:val="0"/></w:num>
</w:numbering>`
	r, err := ParseNumbering([]byte(src))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if got := r.PrefixFor("1", 50000000); got != "" {
		t.Errorf("out-of-range level should render nothing, got %q", got)
	}
	if got := r.PrefixFor("1", -1); got != "" {
		t.Errorf("negative level should render nothing, got %q", got)
	}
	if n := len(r.counters["1"]); n != 0 {
		t.Errorf("out-of-range levels must not grow counters, got %d", n)
	}
	if got := r.PrefixFor("1", 0); got != "1.\t" {
		t.Errorf("valid level should still render, got %q", got)
	}
}

func TestPrefixFor_RejectsLevelsBeyondNine(t *testing.T) {
	r := NewNumberingResolver()
	r.Define("a", NumberingDefinition{Levels: map[int]NumberingLevel{
		9: {Start: 1, Format: "decimal", LevelText: "%10."},
	}}, "1")

	if got := r.PrefixFor("1", 9); got != "" {
		t.Errorf("level 9 is outside ilvl 0-8, got %q", got)
	}
}
