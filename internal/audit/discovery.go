package audit

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var hrefRegexp = regexp.MustCompile(`href=["']([^"'>]+)["']`)

// extractLinks pulls hyperlink targets out of a directory-listing page,
// dropping anything that contains a parent-directory traversal.
func extractLinks(listing []byte) []string {
	var links []string
	seen := make(map[string]bool)
	for _, m := range hrefRegexp.FindAllSubmatch(listing, -1) {
		target := strings.Trim(string(m[1]), "/")
		if target == "" || strings.Contains(target, "..") {
			continue
		}
		if seen[target] {
			continue
		}
		seen[target] = true
		links = append(links, target)
	}
	return links
}

// FindDists lists the candidate distribution names under <repo>/dists.
// The result is sorted and duplicate-free; it is empty, never nil-checked
// by callers, when the listing has no usable links.  Transport failures
// are returned to the caller, which owns the decision to record them.
func FindDists(ctx context.Context, client *HTTPClient, repo *url.URL) ([]string, error) {
	listing, err := client.Fetch(ctx, repo.ResolveReference(&url.URL{Path: "dists/"}))
	if err != nil {
		return nil, err
	}

	dists := extractLinks(listing)
	sort.Strings(dists)
	return dists, nil
}

// IsRepositoryEmpty probes the repository root.  A root that cannot be
// found or lists no links at all is considered empty; an empty repository
// is not an audit failure.
func IsRepositoryEmpty(ctx context.Context, client *HTTPClient, repo *url.URL) (bool, error) {
	listing, err := client.Fetch(ctx, repo)
	if err != nil {
		if IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	return len(extractLinks(listing)) == 0, nil
}
