// Package extract pulls plain text out of uploaded PDF and DOCX payloads.
// It works on in-memory bytes only and never touches the network.
package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// ErrEmptyDocument is returned for a zero-byte payload of a parseable type.
var ErrEmptyDocument = errors.New("empty document")

// Kind reports which parser handles fileName: ".pdf", ".docx" or "".
// Only the extension counts; the declared mime type and content are not consulted.
func Kind(fileName string) string {
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".pdf", ".docx":
		return ext
	}
	return ""
}

// Text extracts plain text from data. Unsupported kinds yield "" and no error.
// Parser panics on malformed input are converted to errors.
func Text(ctx context.Context, data []byte, fileName, _ string) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind := Kind(fileName)
	if kind == "" {
		return "", nil
	}
	if len(data) == 0 {
		return "", ErrEmptyDocument
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("extract %s %s: parser panic: %v", kind, fileName, r)
		}
	}()

	switch kind {
	case ".pdf":
		text, err = extractPDF(data)
	case ".docx":
		text, err = extractDOCX(data)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s %s: %w", kind, fileName, err)
	}
	return strings.TrimSpace(text), nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	var b strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if b.Len() > 0 && text != "" {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	defer doc.Close()
	return stripDocxXML(doc.Editable().GetContent()), nil
}

// stripDocxXML keeps character data and breaks lines at paragraph, break and tab ends.
func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return strings.TrimSpace(buf.String())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				buf.WriteString("\t")
			case "br", "cr":
				buf.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
