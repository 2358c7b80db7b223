package ordinance

import (
	"strings"
	"testing"
)

func TestMakeSnippet_ShortTextUnchanged(t *testing.T) {
	if got := makeSnippet("short text"); got != "short text" {
		t.Fatalf("got %q", got)
	}
}

func TestMakeSnippet_TruncatesAt300Runes(t *testing.T) {
	long := strings.Repeat("ê", 350)
	got := makeSnippet(long)
	r := []rune(got)
	if len(r) != 301 {
		t.Fatalf("snippet rune length = %d, want 301 (300 + ellipsis)", len(r))
	}
	if r[300] != '…' {
		t.Fatalf("last rune = %q, want ellipsis", string(r[300]))
	}
}

func TestIsPlaceholder(t *testing.T) {
	if !IsPlaceholder("") {
		t.Error("empty text should be placeholder")
	}
	if !IsPlaceholder("Municode Library loading") {
		t.Error("short SPA banner should be placeholder")
	}
	long := strings.Repeat("The council hereby ordains as follows. ", 20)
	if IsPlaceholder(long) {
		t.Error("substantial text should not be placeholder")
	}
}

func TestFindSectionNumber(t *testing.T) {
	cases := []struct {
		headings []string
		text     string
		want     string
	}{
		{[]string{"Sec. 110-363. - Parking restrictions"}, "", "110-363"},
		{[]string{"Chapter 6"}, "It shall be unlawful per Section 6.04.010 to...", "6.04.010"},
		{nil, "no designator here", ""},
	}
	for _, c := range cases {
		if got := findSectionNumber(c.headings, c.text); got != c.want {
			t.Errorf("findSectionNumber(%v, %q) = %q, want %q", c.headings, c.text, got, c.want)
		}
	}
}

func TestTitleFromURL(t *testing.T) {
	got := TitleFromURL("https://mccdocs.blob.municode.com/ORD-2024-12_Parking.docx?sig=x")
	if got != "ORD 2024 12 Parking" {
		t.Fatalf("got %q", got)
	}
}
