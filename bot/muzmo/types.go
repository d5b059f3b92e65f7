package muzmo

import (
	"fmt"
	"strings"
)

// ResultsPerPage is the upstream page stride used by the start offset.
const ResultsPerPage = 15

// Candidate is one search result extracted from a results page.
type Candidate struct {
	DisplayName   string
	DurationLabel string
	ItemID        string
}

// Label renders the candidate the way it is shown to the user.
func (c Candidate) Label() string {
	return fmt.Sprintf("%s (%s)", c.DisplayName, c.DurationLabel)
}

// Performer returns the part of the display name before the first " - ".
func (c Candidate) Performer() string {
	performer, _ := SplitDisplayName(c.DisplayName)
	return performer
}

// Title returns the part of the display name after the first " - ".
func (c Candidate) Title() string {
	_, title := SplitDisplayName(c.DisplayName)
	return title
}

// SplitDisplayName splits "performer - title". A name without the separator
// is treated as a bare title.
func SplitDisplayName(name string) (performer, title string) {
	name = strings.TrimSpace(name)
	if left, right, ok := strings.Cut(name, " - "); ok {
		return strings.TrimSpace(left), strings.TrimSpace(right)
	}
	return "", name
}

// PageResult is the outcome of fetching one search page.
type PageResult struct {
	Page int
	Body []byte
	Err  error
}

// ResolvedLink is a direct media URL produced by the resolver.
type ResolvedLink struct {
	URL          string
	AttemptsUsed int
}
