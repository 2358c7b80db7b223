package ordinance

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const sampleDocXML = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Sec. 26-41. - Curfew for minors</w:t></w:r></w:p>
<w:p><w:r><w:t>It shall be unlawful for any minor to remain in </w:t></w:r>
<w:r><w:t>any public place between the hours of 11:00 p.m. and 6:00 a.m.</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Violations are punishable as a class C misdemeanor.</w:t></w:r></w:p>
</w:body>
</w:document>`

func TestFromDocx_ExtractsSection(t *testing.T) {
	raw := buildDocx(t, sampleDocXML)
	sec, err := FromDocx(raw, "https://mccdocs.blob.municode.com/ord_26-41.docx")
	if err != nil {
		t.Fatalf("FromDocx: %v", err)
	}

	if sec.SectionNumber != "26-41" {
		t.Errorf("SectionNumber = %q, want 26-41", sec.SectionNumber)
	}
	if sec.Title != "Sec. 26-41. - Curfew for minors" {
		t.Errorf("Title = %q", sec.Title)
	}
	if !strings.Contains(sec.Text, "11:00 p.m. and 6:00 a.m.") {
		t.Errorf("Text missing merged runs: %q", sec.Text)
	}
	if !strings.Contains(sec.Text, "class C misdemeanor") {
		t.Errorf("Text missing last paragraph: %q", sec.Text)
	}
	if len(sec.Headings) == 0 {
		t.Error("no headings extracted")
	}
}

func TestFromDocx_MergesRunsWithinParagraph(t *testing.T) {
	raw := buildDocx(t, sampleDocXML)
	sec, err := FromDocx(raw, "u")
	if err != nil {
		t.Fatalf("FromDocx: %v", err)
	}
	if !strings.Contains(sec.Text, "remain in any public place") {
		t.Fatalf("runs not merged: %q", sec.Text)
	}
}

func TestFromDocx_NotAZip(t *testing.T) {
	if _, err := FromDocx([]byte("<html>not a docx</html>"), "u"); err == nil {
		t.Fatal("expected error for non-zip input")
	}
}

func TestFromDocx_MissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/styles.xml")
	w.Write([]byte("<styles/>"))
	zw.Close()

	if _, err := FromDocx(buf.Bytes(), "u"); err == nil {
		t.Fatal("expected error when word/document.xml is absent")
	}
}
