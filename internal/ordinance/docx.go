package ordinance

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/civiclab/ordinance-api/internal/xerrors"
)

// docx files are zip archives; the text lives in word/document.xml as
// runs of <w:t> inside <w:p> paragraphs.

// FromDocx extracts a Section from a Word export. srcURL is recorded on
// the section and its filename seeds the title when the document has no
// usable first paragraph.
func FromDocx(raw []byte, srcURL string) (*Section, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, xerrors.Wrap(err, "open docx archive")
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, xerrors.New("docx has no word/document.xml")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, xerrors.Wrap(err, "open word/document.xml")
	}
	defer rc.Close()

	paragraphs, err := docxParagraphs(rc)
	if err != nil {
		return nil, xerrors.Wrap(err, "decode word/document.xml")
	}

	var (
		headings []string
		text     strings.Builder
	)
	for i, p := range paragraphs {
		// Word exports from Municode put the section heading in the
		// first couple of short paragraphs.
		if i < 4 && len(p) < 200 {
			headings = append(headings, p)
		}
		text.WriteString(p)
		text.WriteByte('\n')
	}

	body := strings.TrimSpace(text.String())
	title := TitleFromURL(srcURL)
	if len(headings) > 0 {
		title = headings[0]
	}

	return &Section{
		SectionNumber: findSectionNumber(headings, body),
		Title:         title,
		URL:           srcURL,
		Snippet:       makeSnippet(collapseSpace(body)),
		Text:          body,
		Headings:      headings,
	}, nil
}

type docxText struct {
	Value string `xml:",chardata"`
}

// docxParagraphs streams document.xml and collects the concatenated
// <w:t> runs of each <w:p>.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		cur        strings.Builder
		inPara     bool
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
			switch t.Name.Local {
			case "p":
				inPara = true
				cur.Reset()
			case "t":
				if inPara {
					var wt docxText
					if err := dec.DecodeElement(&wt, &t); err != nil {
						return nil, err
					}
					cur.WriteString(wt.Value)
				}
			case "tab":
				if inPara {
					cur.WriteByte(' ')
				}
			case "br":
				if inPara {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inPara {
				inPara = false
				if p := collapseSpace(cur.String()); p != "" {
					paragraphs = append(paragraphs, p)
				}
			}
		}
	}
	return paragraphs, nil
}

// TitleFromURL derives a human-readable title from a document URL's
// filename: "ORD-2024-12_Parking.docx" becomes "ORD 2024 12 Parking".
func TitleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.NewReplacer("-", " ", "_", " ", "%20", " ").Replace(name)
	return collapseSpace(name)
}
