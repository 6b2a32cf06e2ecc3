package extract

import (
	"strings"
	"testing"
)

func page(title, text string) string {
	return "  <page>\n    <title>" + title + "</title>\n    <ns>0</ns>\n    <id>7</id>\n" +
		"    <revision>\n      <id>99</id>\n      <text bytes=\"" + "5" + "\" xml:space=\"preserve\">" + text +
		"</text>\n    </revision>\n  </page>\n"
}

func TestExtractScenario(t *testing.T) {
	decoded := `...<title>Example</title>...<text xml:space="preserve">HELLO</text>...`
	got, ok := Extract(decoded, "Example")
	if !ok {
		t.Fatal("expected payload")
	}
	if got != "HELLO" {
		t.Errorf("Extract = %q, want %q", got, "HELLO")
	}
}

func TestExtractPicksRequestedRecord(t *testing.T) {
	block := page("first", "one") + page("second", "two") + page("third", "three")
	for title, want := range map[string]string{"first": "one", "second": "two", "third": "three"} {
		got, ok := Extract(block, title)
		if !ok || got != want {
			t.Errorf("Extract(%q) = %q, %v; want %q", title, got, ok, want)
		}
		if strings.Contains(got, "<text") || strings.Contains(got, "</text>") {
			t.Errorf("payload for %q contains a marker: %q", title, got)
		}
	}
}

func TestExtractFirstOccurrenceWins(t *testing.T) {
	block := page("same", "early") + page("same", "late")
	got, ok := Extract(block, "same")
	if !ok || got != "early" {
		t.Errorf("Extract = %q, %v; want early", got, ok)
	}
}

func TestExtractEscapesPatternCharacters(t *testing.T) {
	titles := []string{
		"C++",
		"a.b",
		"[[link]]",
		"(foo)|bar",
		"^start$",
		`back\slash`,
		"x{2,3}",
		"what?",
		"*",
	}
	for _, title := range titles {
		t.Run(title, func(t *testing.T) {
			block := page("decoy", "wrong") + page(title, "right")
			got, ok := Extract(block, title)
			if !ok || got != "right" {
				t.Errorf("Extract(%q) = %q, %v", title, got, ok)
			}
		})
	}
}

func TestExtractMetacharactersDoNotMatchLoosely(t *testing.T) {
	block := page("abc", "wrong")
	if _, ok := Extract(block, "a.c"); ok {
		t.Error("'.' in a title must only match a literal dot")
	}
	if _, ok := Extract(block, "ab*c"); ok {
		t.Error("'*' in a title must only match a literal star")
	}
}

func TestExtractXMLEscapedTitle(t *testing.T) {
	block := page("AT&amp;T", "telecom") + page("&quot;Quoted&quot;", "q")
	if got, ok := Extract(block, "AT&T"); !ok || got != "telecom" {
		t.Errorf("Extract(AT&T) = %q, %v", got, ok)
	}
	if got, ok := Extract(block, `"Quoted"`); !ok || got != "q" {
		t.Errorf(`Extract("Quoted") = %q, %v`, got, ok)
	}
	if got, ok := Extract(block, "AT&amp;T"); !ok || got != "telecom" {
		t.Errorf("Extract(AT&amp;T) = %q, %v", got, ok)
	}
}

func TestExtractNotFound(t *testing.T) {
	tests := map[string]string{
		"no title":      page("other", "x"),
		"no open tag":   "<title>t</title><revision>nothing</revision>",
		"no close tag":  `<title>t</title><text xml:space="preserve">dangling`,
		"empty block":   "",
		"partial title": page("tt", "x"),
	}
	for name, block := range tests {
		t.Run(name, func(t *testing.T) {
			if got, ok := Extract(block, "t"); ok {
				t.Errorf("expected not found, got %q", got)
			}
		})
	}
}

func TestExtractDoesNotBorrowNextPage(t *testing.T) {
	block := "  <page>\n    <title>redirected</title>\n    <redirect title=\"x\" />\n  </page>\n" +
		page("next", "neighbour")
	if got, ok := Extract(block, "redirected"); ok {
		t.Errorf("expected not found, got %q", got)
	}
}

func TestExtractSelfClosingPayload(t *testing.T) {
	block := "<page><title>empty</title><text bytes=\"0\" /></page>" + page("next", "neighbour")
	got, ok := Extract(block, "empty")
	if !ok {
		t.Fatal("expected an empty payload")
	}
	if got != "" {
		t.Errorf("expected empty payload, got %q", got)
	}
}

func TestPageFields(t *testing.T) {
	p := page("AT&amp;T", "body")
	title, ok := PageTitle(p)
	if !ok || title != "AT&amp;T" {
		t.Errorf("PageTitle = %q, %v", title, ok)
	}
	id, ok := PageID(p)
	if !ok || id != 7 {
		t.Errorf("PageID = %d, %v", id, ok)
	}
	if _, ok := PageTitle("<page></page>"); ok {
		t.Error("PageTitle on a record without title should fail")
	}
	if _, ok := PageID("<page></page>"); ok {
		t.Error("PageID on a record without id should fail")
	}
}

func TestExtractMixedEscaping(t *testing.T) {
	tests := []struct {
		name    string
		written string
		title   string
	}{
		{"ampersand escaped, apostrophe raw", "Tom &amp; Jerry's", "Tom & Jerry's"},
		{"ampersand escaped, quote raw", `&amp; "x"`, `& "x"`},
		{"apostrophe numeric", "Jerry&#39;s &amp; co", "Jerry's & co"},
		{"apostrophe padded numeric", "Jerry&#039;s", "Jerry's"},
		{"apostrophe named", "Jerry&apos;s", "Jerry's"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := page("decoy", "wrong") + page(tt.written, "right")
			got, ok := Extract(block, tt.title)
			if !ok || got != "right" {
				t.Errorf("Extract(%q) = %q, %v", tt.title, got, ok)
			}
		})
	}
}

func TestExtractInvalidUTF8Title(t *testing.T) {
	title := "bad\xff"
	if _, err := TitlePattern(title); err == nil {
		t.Fatal("expected an error for a title that is not valid UTF-8")
	}

	block := page("decoy", "wrong") + page(title, "right")
	got, ok := Extract(block, title)
	if !ok || got != "right" {
		t.Errorf("Extract = %q, %v; want right", got, ok)
	}
	if _, ok := Extract(page("bad\xfe", "x"), title); ok {
		t.Error("a different invalid byte must not match")
	}
	if _, ok := Extract(page("bad�", "x"), title); ok {
		t.Error("the replacement character must not match an invalid byte")
	}
}
