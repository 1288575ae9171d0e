// Package parser provides plain-text extraction adapters implementing
// ports.DocumentParser. They are the degraded path used when a document cannot
// be decoded structurally.
package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"html"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrNoText is returned when extraction finds nothing readable.
var ErrNoText = errors.New("no text extracted")

// LenientParser extracts text without trusting the document structure: zip
// packages are scanned with a non-strict XML decoder, anything else has its
// tags stripped.
type LenientParser struct{}

func NewLenientParser() *LenientParser {
	return &LenientParser{}
}

// Parse returns paragraph-separated plain text.
func (p *LenientParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrNoText
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var text string
	if isZip(data) {
		t, err := extractPackage(data)
		if err != nil {
			return "", err
		}
		text = t
	} else {
		if !utf8.Valid(data) {
			data = bytes.ToValidUTF8(data, []byte(" "))
		}
		text = stripTags(string(data))
	}

	text = tidyLines(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func (p *LenientParser) SupportedFormats() []string {
	return []string{"docx", "xml", "html", "txt", "md"}
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

// extractPackage prefers word/document.xml and otherwise reads every XML part
// under word/.
func extractPackage(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var parts []*zip.File
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, "word/document.xml") {
			parts = []*zip.File{f}
			break
		}
		if strings.HasPrefix(strings.ToLower(f.Name), "word/") && strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoText
	}

	var out strings.Builder
	for _, f := range parts {
		rc, err := f.Open()
		if err != nil {
			continue
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		out.WriteString(textFromXML(b))
		out.WriteString("\n")
	}
	return out.String(), nil
}

// textFromXML collects <t> character data, one line per <p>. It stops quietly
// at the first unrecoverable token and keeps what it has.
func textFromXML(b []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var out strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteString("\t")
			case "br":
				out.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return out.String()
}

var (
	blockTags = regexp.MustCompile(`(?i)</?(p|div|br|li|tr|h[1-6])\b[^>]*>`)
	anyTag    = regexp.MustCompile(`(?s)<[^>]*>`)
)

func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	s = blockTags.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}

// tidyLines collapses runs of spaces within lines and blank-line runs to a
// single empty line.
func tidyLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	var lines []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(lines) > 0 {
				lines = append(lines, "")
			}
			blank = true
			continue
		}
		blank = false
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
