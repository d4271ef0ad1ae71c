package audit

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/repoaudit/repoaudit/internal/apt"
)

// Auditor validates one apt repository: its distributions, their metadata
// and signatures, and every advertised package file.
type Auditor struct {
	repoURL *url.URL
	urlKey  string
	dists   []string
	keyring *crypto.Key
	pgp     *crypto.PGPHandle
	client  *HTTPClient
	report  *Report
	quiet   bool
}

// NewAuditor constructs an Auditor for a repository URL.  dists may be
// empty, in which case distributions are discovered from the dists/
// listing.  keyring may be nil to skip signature checks.  Findings are
// written to report, which may be shared between auditors.
func NewAuditor(repoURL *url.URL, dists []string, keyring *crypto.Key,
	client *HTTPClient, report *Report, quiet bool) *Auditor {

	// for URL.ResolveReference
	u := *repoURL
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	return &Auditor{
		repoURL: &u,
		urlKey:  strings.TrimSuffix(repoURL.String(), "/"),
		dists:   dists,
		keyring: keyring,
		pgp:     crypto.PGP(),
		client:  client,
		report:  report,
		quiet:   quiet,
	}
}

// Report returns the report the auditor writes to.
func (a *Auditor) Report() *Report {
	return a.report
}

func (a *Auditor) resolve(p string) *url.URL {
	return a.repoURL.ResolveReference(&url.URL{Path: p})
}

// Check runs the full audit.  It returns an error only for cancellation;
// every other failure is recorded in the report and the traversal
// continues with the next unit.  The report is complete when Check
// returns nil: every attempted repository and distribution has an entry.
func (a *Auditor) Check(ctx context.Context) error {
	slog.Info("validating apt repo", "repo", a.urlKey)
	a.report.AddEntry(a.urlKey, RepoLevel)

	empty, err := IsRepositoryEmpty(ctx, a.client, a.repoURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// the probe is advisory; keep going as if the repo had content
		slog.Warn("repository empty probe failed", "repo", a.urlKey, "error", err)
	}
	if empty {
		slog.Info("repository empty", "repo", a.urlKey)
		return nil
	}

	dists := a.dists
	if len(dists) == 0 {
		dists, err = FindDists(ctx, a.client, a.repoURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// nothing else to traverse: discovery failure ends the run
			msg := "Could not determine dists from " + a.urlKey + ": " + err.Error()
			a.report.AddFinding(a.urlKey, DistsSentinel, msg)
			slog.Error("distribution discovery failed", "repo", a.urlKey, "error", err)
			return nil
		}
	} else {
		dists = append([]string(nil), dists...)
		sort.Strings(dists)
	}

	slog.Info("checking dists", "repo", a.urlKey, "dists", strings.Join(dists, ", "))

	for _, dist := range dists {
		if err := a.checkDist(ctx, dist); err != nil {
			return err
		}
	}
	return nil
}

// checkDist audits one distribution.  Failures are findings scoped to the
// distribution; only cancellation is returned.
func (a *Auditor) checkDist(ctx context.Context, dist string) error {
	a.report.AddEntry(a.urlKey, dist)

	releaseURL := a.resolve("dists/" + dist + "/Release")
	releaseBody, err := a.client.Fetch(ctx, releaseURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		a.report.AddFinding(a.urlKey, dist,
			"Could not access Release file at "+releaseURL.String()+": "+err.Error())
		return nil
	}

	// signature and checksum validity are independent findings; a bad or
	// missing signature never skips the metadata and package checks
	a.checkSignatures(ctx, dist)
	if err := ctx.Err(); err != nil {
		return err
	}

	release, err := apt.ParseParagraph(bytes.NewReader(releaseBody))
	if err != nil {
		a.report.AddFinding(a.urlKey, dist, releaseURL.String()+" file malformed")
		return nil
	}

	a.checkMetadata(ctx, dist, release)
	if err := ctx.Err(); err != nil {
		return err
	}

	if !release.Has("Components") || !release.Has("Architectures") {
		a.report.AddFinding(a.urlKey, dist, releaseURL.String()+" file malformed")
		return nil
	}

	components := strings.Fields(release.Get("Components"))
	architectures := strings.Fields(release.Get("Architectures"))

	for _, comp := range components {
		for _, arch := range architectures {
			basePath := "dists/" + dist + "/" + comp + "/binary-" + arch
			index, err := a.fetchPackagesIndex(ctx, basePath)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.report.AddFinding(a.urlKey, dist,
					"Could not access Packages file at "+a.resolve(basePath+"/Packages").String()+": "+err.Error())
				continue
			}

			if err := a.checkPackages(ctx, dist, comp, arch, index); err != nil {
				return err
			}
		}
	}
	return nil
}

// Check audits every repository URL in repos concurrently and returns the
// combined report.  Cancellation aborts the remainder of the run.
func Check(ctx context.Context, config *Config, repos []*url.URL,
	dists []string, keyring *crypto.Key, quiet bool) (*Report, error) {

	report := NewReport()
	client := NewHTTPClient(config.MaxConns, &config.TLS)

	group, ctx := errgroup.WithContext(ctx)
	for _, repo := range repos {
		auditor := NewAuditor(repo, dists, keyring, client, report, quiet)
		group.Go(func() error {
			return auditor.Check(ctx)
		})
	}
	if err := group.Wait(); err != nil {
		return report, errors.Wrap(err, "audit")
	}
	return report, nil
}
