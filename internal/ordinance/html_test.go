package ordinance

import (
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Sec. 110-363. - Truck routes | Portland, TX</title>
<script>window.spa = true;</script>
<style>.x { color: red }</style>
</head>
<body>
<nav>Home | Codes | Search</nav>
<h2>Sec. 110-363. - Truck routes</h2>
<h3>ARTICLE X. STOPPING, STANDING AND PARKING</h3>
<p>No person shall operate a truck with a gross weight exceeding
ten thousand pounds upon any street except designated truck routes,
as shown on the official truck route map maintained by the city.</p>
<footer>Copyright Municode</footer>
</body>
</html>`

func TestFromHTML_ExtractsSection(t *testing.T) {
	sec, err := FromHTML([]byte(samplePage), "https://library.municode.com/tx/portland/x")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}

	if sec.SectionNumber != "110-363" {
		t.Errorf("SectionNumber = %q, want 110-363", sec.SectionNumber)
	}
	if !strings.Contains(sec.Title, "Truck routes") {
		t.Errorf("Title = %q", sec.Title)
	}
	if sec.URL != "https://library.municode.com/tx/portland/x" {
		t.Errorf("URL = %q", sec.URL)
	}
	if len(sec.Headings) != 2 {
		t.Fatalf("Headings = %v, want 2 entries", sec.Headings)
	}
	if !strings.Contains(sec.Text, "ten thousand pounds") {
		t.Errorf("Text missing body content: %q", sec.Text)
	}
	if sec.Snippet == "" {
		t.Error("Snippet empty")
	}
}

func TestFromHTML_SkipsScriptStyleNav(t *testing.T) {
	sec, err := FromHTML([]byte(samplePage), "u")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	for _, banned := range []string{"window.spa", "color: red", "Home | Codes", "Copyright Municode"} {
		if strings.Contains(sec.Text, banned) {
			t.Errorf("Text contains skipped element content %q", banned)
		}
	}
}

func TestFromHTML_TitleFallsBackToHeading(t *testing.T) {
	page := `<html><body><h1>Sec. 2-1. Council meetings</h1><p>body</p></body></html>`
	sec, err := FromHTML([]byte(page), "u")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if sec.Title != "Sec. 2-1. Council meetings" {
		t.Errorf("Title = %q", sec.Title)
	}
}

func TestFindDocxLink_ResolvesRelative(t *testing.T) {
	page := `<html><body>
<a href="/about">About</a>
<a href="exports/ORD-2024-12.docx">Download Word</a>
</body></html>`
	got := FindDocxLink([]byte(page), "https://library.municode.com/tx/portland/")
	want := "https://library.municode.com/tx/portland/exports/ORD-2024-12.docx"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFindDocxLink_NoneReturnsEmpty(t *testing.T) {
	if got := FindDocxLink([]byte(`<html><a href="/x.pdf">pdf</a></html>`), "https://a/"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
