package muzmo

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	infoHrefPrefix  = "/info?id="
	mediaHrefPrefix = "/get/music"
)

// ExtractCandidates parses one results page. Anchors that do not look like
// a result entry are skipped; malformed markup yields an empty slice.
func ExtractCandidates(r io.Reader) []Candidate {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil
	}

	var out []Candidate
	doc.Find("a.block").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if c, ok := parseCandidate(href, s.Text()); ok {
			out = append(out, c)
		}
	})
	return out
}

func parseCandidate(href, text string) (Candidate, bool) {
	href = strings.TrimSpace(href)
	if !strings.HasPrefix(href, infoHrefPrefix) {
		return Candidate{}, false
	}
	itemID := strings.TrimPrefix(href, infoHrefPrefix)
	if i := strings.IndexAny(itemID, "&#"); i >= 0 {
		itemID = itemID[:i]
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return Candidate{}, false
	}

	text = strings.Join(strings.Fields(text), " ")
	if !strings.Contains(text, " - ") || !strings.Contains(text, "(") {
		return Candidate{}, false
	}

	name, rest, _ := strings.Cut(text, "(")
	name = strings.TrimSpace(name)
	if i := strings.IndexAny(rest, ",)"); i >= 0 {
		rest = rest[:i]
	}
	duration := strings.TrimSpace(rest)
	if name == "" || duration == "" {
		return Candidate{}, false
	}

	return Candidate{DisplayName: name, DurationLabel: duration, ItemID: itemID}, true
}

// ExtractMediaURL finds the direct download link on an info page and
// resolves it against base.
func ExtractMediaURL(r io.Reader, base *url.URL) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", false
	}

	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v := strings.TrimSpace(s.AttrOr("href", ""))
		if strings.HasPrefix(v, mediaHrefPrefix) {
			href = v
			return false
		}
		return true
	})

	// Older layouts only expose the link in a copy-to-clipboard input.
	if href == "" {
		doc.Find("div.mzmlght input[name=input]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v := strings.TrimSpace(s.AttrOr("value", ""))
			if v != "" && strings.Contains(v, mediaHrefPrefix) {
				href = v
				return false
			}
			return true
		})
	}
	if href == "" {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base == nil {
		if !ref.IsAbs() {
			return "", false
		}
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}

// Dedupe keeps the first occurrence of each (DisplayName, ItemID) pair.
func Dedupe(candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return candidates
	}
	type key struct{ name, id string }
	seen := make(map[key]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		k := key{c.DisplayName, c.ItemID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
