package audit

import (
	"encoding/json"
	"sort"
	"sync"
)

// RepoLevel is the distribution key for findings that belong to the
// repository itself rather than to any distribution.
const RepoLevel = ""

// DistsSentinel is the distribution key used when distribution discovery
// itself fails.
const DistsSentinel = "dists"

// Report is the append-only record of audit findings, keyed by repository
// URL and distribution.  An entry with an empty finding list records that
// processing reached that location and found nothing wrong.  Entries are
// never removed.
//
// All methods are safe for concurrent use.
type Report struct {
	mu    sync.Mutex
	repos map[string]map[string][]string
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{
		repos: make(map[string]map[string][]string),
	}
}

func (r *Report) entry(url, dist string) map[string][]string {
	dists, ok := r.repos[url]
	if !ok {
		dists = make(map[string][]string)
		r.repos[url] = dists
	}
	if _, ok := dists[dist]; !ok {
		dists[dist] = []string{}
	}
	return dists
}

// AddEntry ensures an entry exists for the location.  Existing findings
// are left untouched.
func (r *Report) AddEntry(url, dist string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(url, dist)
}

// AddFinding ensures the entry exists and appends a finding to it.
func (r *Report) AddFinding(url, dist, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dists := r.entry(url, dist)
	dists[dist] = append(dists[dist], message)
}

// HasFindings reports whether any location has at least one finding.
func (r *Report) HasFindings() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dists := range r.repos {
		for _, findings := range dists {
			if len(findings) > 0 {
				return true
			}
		}
	}
	return false
}

// FindingCount returns the total number of findings across all locations.
func (r *Report) FindingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, dists := range r.repos {
		for _, findings := range dists {
			n += len(findings)
		}
	}
	return n
}

// Findings returns a copy of the findings recorded for a location.
func (r *Report) Findings(url, dist string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	dists, ok := r.repos[url]
	if !ok {
		return nil
	}
	findings, ok := dists[dist]
	if !ok {
		return nil
	}
	out := make([]string, len(findings))
	copy(out, findings)
	return out
}

// Dists returns the distribution keys recorded for a repository, sorted.
// The repository-level key is included if present.
func (r *Report) Dists(url string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	dists, ok := r.repos[url]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(dists))
	for k := range dists {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// URLs returns the repository URLs recorded in the report, sorted.
func (r *Report) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	urls := make([]string, 0, len(r.repos))
	for u := range r.repos {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// MarshalJSON implements json.Marshaler.  The repository-level sentinel
// is rendered as the key "repository".
func (r *Report) MarshalJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string][]string, len(r.repos))
	for url, dists := range r.repos {
		rendered := make(map[string][]string, len(dists))
		for dist, findings := range dists {
			key := dist
			if key == RepoLevel {
				key = "repository"
			}
			rendered[key] = findings
		}
		out[url] = rendered
	}
	return json.Marshal(out)
}
