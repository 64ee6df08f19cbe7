// Package extractor turns document bytes into plain text.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MinTextLength is the minimum number of characters for text to be usable
const MinTextLength = 50

var (
	// ErrMalformedDocument is returned when the document cannot be opened
	ErrMalformedDocument = errors.New("malformed document")
)

// Result is the outcome of a successful extraction.
// A Result with Usable == false is a recoverable "no usable text" outcome,
// typically a scanned image PDF without a text layer.
type Result struct {
	Text   string
	Pages  int // Pages that produced text
	Usable bool
}

// Extractor extracts text from raw document bytes
type Extractor interface {
	Extract(content []byte) (Result, error)
}

// PDF extracts text from PDF documents page by page
type PDF struct {
	minLength int
}

// NewPDF creates a PDF extractor with the default usability threshold
func NewPDF() *PDF {
	return &PDF{minLength: MinTextLength}
}

// Extract reads every page and concatenates the readable text.
// Unreadable pages are skipped; only a document that cannot be opened fails.
// Zero-length input has no text and is reported as not usable.
func (p *PDF) Extract(content []byte) (res Result, err error) {
	if len(content) == 0 {
		return Result{}, nil
	}

	// The PDF parser panics on some truncated inputs
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("%w: %v", ErrMalformedDocument, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var text strings.Builder
	pages := 0
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}

		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(pageText)
		pages++
	}

	out := strings.TrimSpace(text.String())
	return Result{
		Text:   out,
		Pages:  pages,
		Usable: Usable(out, p.minLength),
	}, nil
}

// Usable reports whether text has at least min characters after trimming
func Usable(text string, min int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= min
}
