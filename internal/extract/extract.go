// Package extract pulls one document's raw payload out of a decoded block.
// A block is a run of serialized <page> records; rather than parsing it as
// XML, the extractor anchors on the first matching <title> marker and takes
// the text between the next <text ...> and </text> markers.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	payloadOpen  = regexp.MustCompile(`<text [^>]+?>`)
	payloadClose = regexp.MustCompile(`</text>`)
	pageClose    = regexp.MustCompile(`</page>`)
	titleField   = regexp.MustCompile(`<title>([^<]*)</title>`)
	idField      = regexp.MustCompile(`<id>(\d+)</id>`)
)

// entitySpellings lets each XML-special character match raw or escaped on
// its own, since dumps do not escape all five consistently.
var entitySpellings = map[rune]string{
	'&':  `(?:&|&amp;)`,
	'<':  `(?:<|&lt;)`,
	'>':  `(?:>|&gt;)`,
	'"':  `(?:"|&quot;)`,
	'\'': `(?:'|&#0?39;|&apos;)`,
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// TitlePattern compiles the title marker for title. Every metacharacter is
// matched literally. A title that is not valid UTF-8 has no pattern form and
// returns an error.
func TitlePattern(title string) (*regexp.Regexp, error) {
	if !utf8.ValidString(title) {
		return nil, fmt.Errorf("title %q is not valid UTF-8", title)
	}
	var sb strings.Builder
	sb.WriteString("<title>")
	for _, r := range title {
		if alt, ok := entitySpellings[r]; ok {
			sb.WriteString(alt)
			continue
		}
		sb.WriteString(regexp.QuoteMeta(string(r)))
	}
	sb.WriteString("</title>")
	return regexp.Compile(sb.String())
}

// findTitle locates the first title marker for title. Titles without a
// pattern form fall back to a byte scan for the raw and fully escaped
// spellings.
func findTitle(decoded, title string) []int {
	if re, err := TitlePattern(title); err == nil {
		return re.FindStringIndex(decoded)
	}
	var loc []int
	for _, spelling := range []string{title, xmlEscaper.Replace(title)} {
		marker := "<title>" + spelling + "</title>"
		if i := strings.Index(decoded, marker); i >= 0 && (loc == nil || i < loc[0]) {
			loc = []int{i, i + len(marker)}
		}
	}
	return loc
}

// Extract returns the payload of the first record titled title in decoded.
// The payload search stops at the record's closing </page> when there is one,
// so a record without a payload never borrows the next record's text. A
// self-closing payload marker yields an empty payload.
func Extract(decoded, title string) (string, bool) {
	loc := findTitle(decoded, title)
	if loc == nil {
		return "", false
	}
	rest := decoded[loc[1]:]
	if end := pageClose.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}

	open := payloadOpen.FindStringIndex(rest)
	if open == nil {
		return "", false
	}
	if strings.HasSuffix(rest[open[0]:open[1]], "/>") {
		return "", true
	}
	body := rest[open[1]:]
	closeLoc := payloadClose.FindStringIndex(body)
	if closeLoc == nil {
		return "", false
	}
	return body[:closeLoc[0]], true
}

// PageTitle returns the title of a serialized record as written, still
// XML-escaped.
func PageTitle(page string) (string, bool) {
	m := titleField.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// PageID returns the first <id> of a serialized record, which is the page id
// (revision and contributor ids follow it).
func PageID(page string) (uint64, bool) {
	m := idField.FindStringSubmatch(page)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
