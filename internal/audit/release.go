package audit

import (
	"context"
	"log/slog"
	"sort"

	"github.com/repoaudit/repoaudit/internal/apt"
)

// buildChecksumTable collects every checksum entry the release descriptor
// declares, keyed by relative file name.  Case-variant spellings of one
// algorithm are merged so a file carries each algorithm at most once.
func buildChecksumTable(release apt.Paragraph) (map[string][]apt.ChecksumEntry, error) {
	table := make(map[string][]apt.ChecksumEntry)
	seen := make(map[string]map[apt.Algorithm]bool)

	for _, field := range release.Fields() {
		alg, ok := apt.FieldAlgorithm(field)
		if !ok {
			continue
		}
		entries, err := apt.ParseReleaseField(release.Get(field))
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if seen[entry.Name] == nil {
				seen[entry.Name] = make(map[apt.Algorithm]bool)
			}
			if seen[entry.Name][alg] {
				continue
			}
			seen[entry.Name][alg] = true
			table[entry.Name] = append(table[entry.Name], apt.ChecksumEntry{
				Algorithm: alg,
				Digest:    entry.Digest,
			})
		}
	}

	return table, nil
}

// checkMetadata verifies every metadata file the release descriptor
// advertises.  A descriptor with no recognized checksum fields is
// malformed; that single finding halts further metadata checks for the
// distribution.  A plain file may be absent without a finding only when
// its .gz sibling is also declared.
func (a *Auditor) checkMetadata(ctx context.Context, dist string, release apt.Paragraph) {
	releaseURL := a.resolve("dists/" + dist + "/Release")

	table, err := buildChecksumTable(release)
	if err != nil || len(table) == 0 {
		a.report.AddFinding(a.urlKey, dist, releaseURL.String()+" file malformed")
		slog.Info("metadata check failed", "repo", a.urlKey, "dist", dist)
		return
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	success := true
	for _, name := range names {
		_, hasCompressed := table[name+".gz"]
		fileLoc := "dists/" + dist + "/" + name
		success = a.verifyChecksum(ctx, dist, fileLoc, KindMetadata, table[name], hasCompressed) && success

		select {
		case <-ctx.Done():
			return
		default:
		}
	}

	if success {
		slog.Info("metadata check successful", "repo", a.urlKey, "dist", dist)
	} else {
		slog.Info("metadata check failed", "repo", a.urlKey, "dist", dist)
	}
}
