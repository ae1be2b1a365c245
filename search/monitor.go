package search

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, index string)
	AfterTokenize(terms []string)
	AfterPostings(documentFrequencies map[string]int, docs int)
	AfterMinShouldMatch(kept, dropped int)
	AfterScoring(hits []*Hit)
	Finish(response *Response)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ string)              {}
func (n *noopMonitor) AfterTokenize(_ []string)              {}
func (n *noopMonitor) AfterPostings(_ map[string]int, _ int) {}
func (n *noopMonitor) AfterMinShouldMatch(_, _ int)          {}
func (n *noopMonitor) AfterScoring(_ []*Hit)                 {}
func (n *noopMonitor) Finish(_ *Response)                    {}
