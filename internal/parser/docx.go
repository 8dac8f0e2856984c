package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/localrag/internal/document"
)

const docxBodyPart = "word/document.xml"

// DOCXParser extracts body paragraphs from an Office Open XML document.
type DOCXParser struct{}

// Parse returns a single unit whose content is the non-empty body
// paragraphs joined by newlines.
func (p *DOCXParser) Parse(_ context.Context, path string) ([]document.Unit, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, fmt.Errorf("%w: %s is not a docx archive", ErrMalformedDocument, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer zr.Close()

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("%w: %s has no %s", ErrMalformedDocument, path, docxBodyPart)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, path, err)
	}
	defer rc.Close()

	paragraphs, err := bodyParagraphs(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, path, err)
	}

	nonEmpty := paragraphs[:0]
	for _, para := range paragraphs {
		if strings.TrimSpace(para) != "" {
			nonEmpty = append(nonEmpty, para)
		}
	}

	return []document.Unit{{
		Content:  strings.Join(nonEmpty, "\n"),
		Metadata: baseMetadata(path),
	}}, nil
}

// bodyParagraphs returns the text of each paragraph that is a direct child
// of w:body. Only runs of the paragraph itself, or of a hyperlink in it,
// contribute text. Tables, text boxes and paragraph properties such as tab
// stops are skipped.
func bodyParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		stack      []string
		paraDepth  = -1
		runDepth   = -1
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			depth := len(stack)
			stack = append(stack, name)

			switch {
			case name == "p" && parent == "body":
				paraDepth = depth
				current.Reset()
			case paraDepth < 0:
			case name == "r" && runDepth < 0 && isParagraphRun(stack, paraDepth):
				runDepth = depth
			case runDepth < 0 || depth != runDepth+1:
			case name == "t":
				inText = true
			case name == "tab":
				current.WriteByte('\t')
			case name == "br" || name == "cr":
				current.WriteByte('\n')
			}

		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			depth := len(stack) - 1
			name := stack[depth]
			stack = stack[:depth]

			switch {
			case name == "t" && depth == runDepth+1:
				inText = false
			case depth == runDepth:
				runDepth = -1
			case depth == paraDepth:
				paragraphs = append(paragraphs, current.String())
				paraDepth = -1
			}

		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}

// isParagraphRun reports whether the run on top of stack belongs to the
// paragraph at paraDepth, either directly or through a hyperlink.
func isParagraphRun(stack []string, paraDepth int) bool {
	switch len(stack) - 1 - paraDepth {
	case 1:
		return true
	case 2:
		return stack[len(stack)-2] == "hyperlink"
	}
	return false
}
