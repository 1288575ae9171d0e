// Package docx decodes WordprocessingML packages into the paragraph view of a
// contract: style, outline level and rendered list numbering per paragraph.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

const (
	documentPart  = "word/document.xml"
	numberingPart = "word/numbering.xml"
)

var (
	// ErrNotContainer means the bytes are not a readable zip package.
	ErrNotContainer = errors.New("not a packaged document")
	// ErrMissingBodyPart means word/document.xml is absent.
	ErrMissingBodyPart = errors.New("missing word/document.xml")
)

// DecodeError is returned for any fatal structural failure. Callers are
// expected to fall back to lenient text extraction.
type DecodeError struct {
	Part string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Part == "" {
		return "docx decode: " + e.Err.Error()
	}
	return fmt.Sprintf("docx decode %s: %v", e.Part, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder implements ports.DocumentDecoder for .docx packages.
type Decoder struct {
	log *logger.Logger
}

// NewDecoder creates a decoder. log may be nil.
func NewDecoder(log *logger.Logger) *Decoder {
	return &Decoder{log: logger.OrNop(log).With("comp", "docx")}
}

// Decode reads the package and returns its paragraphs in document order.
// A fresh NumberingResolver is built for every call.
func (d *Decoder) Decode(ctx context.Context, data []byte, filename string) (*entities.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrNotContainer, err)}
	}

	resolver := NewNumberingResolver()
	if f := findPart(zr, numberingPart); f != nil {
		raw, err := readPart(f)
		if err != nil {
			return nil, &DecodeError{Part: numberingPart, Err: err}
		}
		resolver, err = ParseNumbering(raw)
		if err != nil {
			return nil, &DecodeError{Part: numberingPart, Err: err}
		}
	} else {
		d.log.Debug("no numbering part, lists render unnumbered", "file", filename)
	}

	body := findPart(zr, documentPart)
	if body == nil {
		return nil, &DecodeError{Part: documentPart, Err: ErrMissingBodyPart}
	}
	rc, err := body.Open()
	if err != nil {
		return nil, &DecodeError{Part: documentPart, Err: err}
	}
	defer rc.Close()

	paragraphs, err := walkBody(ctx, rc, resolver)
	if err != nil {
		return nil, &DecodeError{Part: documentPart, Err: err}
	}

	d.log.Debug("decoded document", "file", filename, "paragraphs", len(paragraphs))
	return &entities.Document{
		Metadata:   entities.NewMetadata(filename),
		Paragraphs: paragraphs,
	}, nil
}

// paragraphState accumulates one <w:p> while its tokens stream by.
type paragraphState struct {
	index    int
	text     strings.Builder
	styleID  string
	numID    string
	ilvl     string
	hasNumPr bool
}

// walkBody streams document.xml. Element context is tracked with a stack of
// local names so pStyle/numPr are only honoured inside the paragraph's pPr and
// text only inside <w:r><w:t>.
func walkBody(ctx context.Context, r io.Reader, resolver *NumberingResolver) ([]entities.Paragraph, error) {
	dec := xml.NewDecoder(r)

	var (
		stack   []string
		open    []*paragraphState
		done    = map[int]entities.Paragraph{}
		counter int
	)

	// Properties recorded inside a pPrChange are the pre-revision ones.
	inCtx := func(name string) bool {
		found := false
		for i := len(stack) - 1; i >= 0; i-- {
			switch stack[i] {
			case name:
				found = true
			case "pPrChange":
				return false
			case "p":
				return found
			}
		}
		return found
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			local := t.Name.Local
			var cur *paragraphState
			if len(open) > 0 {
				cur = open[len(open)-1]
			}
			switch {
			case local == "p":
				open = append(open, &paragraphState{index: counter})
				counter++
			case cur != nil && local == "pStyle" && inCtx("pPr"):
				cur.styleID = attrVal(t, "val")
			case cur != nil && local == "numPr" && inCtx("pPr"):
				cur.hasNumPr = true
			case cur != nil && local == "numId" && inCtx("numPr"):
				cur.numID = attrVal(t, "val")
			case cur != nil && local == "ilvl" && inCtx("numPr"):
				cur.ilvl = attrVal(t, "val")
			}
			stack = append(stack, local)

		case xml.CharData:
			if len(open) == 0 || len(stack) == 0 || stack[len(stack)-1] != "t" {
				continue
			}
			if inCtx("r") {
				open[len(open)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if t.Name.Local != "p" || len(open) == 0 {
				continue
			}
			cur := open[len(open)-1]
			open = open[:len(open)-1]
			if p, ok := buildParagraph(cur, resolver); ok {
				done[cur.index] = p
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	// Nested paragraphs (text boxes) close before their parent; restore start-tag order.
	out := make([]entities.Paragraph, 0, len(done))
	for i := 0; i < counter; i++ {
		if p, ok := done[i]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func buildParagraph(st *paragraphState, resolver *NumberingResolver) (entities.Paragraph, bool) {
	text := st.text.String()
	if strings.TrimSpace(text) == "" {
		return entities.Paragraph{}, false
	}

	style, level := resolveStyle(st.styleID)

	if st.hasNumPr && st.numID != "" {
		ilvl, err := strconv.Atoi(strings.TrimSpace(st.ilvl))
		if err != nil {
			ilvl = 0
		}
		// PrefixFor already terminates the prefix with a tab.
		text = resolver.PrefixFor(st.numID, ilvl) + text
	}

	return entities.Paragraph{
		ID:           fmt.Sprintf("docx_para_%d", st.index),
		Text:         text,
		OriginalText: text,
		Style:        style,
		OutlineLevel: level,
		Status:       entities.StatusOriginal,
	}, true
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// resolveStyle normalizes a pStyle id: "Heading2" -> ("Heading 2", 2),
// "ListParagraph" -> "List Paragraph", absent -> "Normal".
func resolveStyle(styleID string) (string, int) {
	if styleID == "" {
		return "Normal", 0
	}
	if strings.HasPrefix(strings.ToLower(styleID), "heading") {
		digits := nonDigits.ReplaceAllString(styleID, "")
		if digits == "" {
			return styleID, 0
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return styleID, 0
		}
		return "Heading " + digits, n
	}
	if styleID == "ListParagraph" {
		return "List Paragraph", 0
	}
	return styleID, 0
}

func findPart(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func attrVal(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
