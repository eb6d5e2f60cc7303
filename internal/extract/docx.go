package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// fromDOCX joins the text of every w:p paragraph with newlines.
func fromDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %v", ErrUnreadable, err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("%w: docx has no %s", ErrUnreadable, docxBody)
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrUnreadable, docxBody, err)
	}
	defer rc.Close()

	paragraphs, err := readParagraphs(rc)
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrUnreadable, docxBody, err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

func readParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		open       []*strings.Builder // text boxes nest paragraphs inside paragraphs
		runs       int
		props      int // inside pPr or rPr, where tab elements are tab stops
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

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				open = append(open, &strings.Builder{})
			case "r":
				runs++
			case "pPr", "rPr":
				props++
			case "t":
				inText = true
			case "tab":
				if runs > 0 && props == 0 && len(open) > 0 {
					open[len(open)-1].WriteByte('\t')
				}
			case "br", "cr":
				if runs > 0 && props == 0 && len(open) > 0 {
					open[len(open)-1].WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "p":
				if len(open) > 0 {
					paragraphs = append(paragraphs, open[len(open)-1].String())
					open = open[:len(open)-1]
				}
			case "r":
				if runs > 0 {
					runs--
				}
			case "pPr", "rPr":
				if props > 0 {
					props--
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && len(open) > 0 {
				open[len(open)-1].Write(el)
			}
		}
	}

	return paragraphs, nil
}
