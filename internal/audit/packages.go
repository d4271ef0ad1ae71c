package audit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	version "github.com/knqyf263/go-deb-version"

	"github.com/repoaudit/repoaudit/internal/apt"
)

// packagesVariants is the fallback chain for a component/architecture's
// package index.  Repositories may publish only a compressed form.
var packagesVariants = []string{"Packages", "Packages.gz", "Packages.xz", "Packages.bz2"}

// fetchPackagesIndex retrieves the package index under basePath, falling
// back through compressed variants when the plain file is not found.
// Transport failures other than not-found propagate unchanged.
func (a *Auditor) fetchPackagesIndex(ctx context.Context, basePath string) ([]byte, error) {
	var lastErr error
	for _, variant := range packagesVariants {
		data, err := a.client.Fetch(ctx, a.resolve(basePath+"/"+variant))
		if err != nil {
			if IsNotFound(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return Decompress(variant, data)
	}
	return nil, lastErr
}

// checkPackages scans one package index and verifies every advertised
// package artifact.  A paragraph without Filename is a finding, not a
// stop; the scan continues with the next paragraph.  On cancellation the
// count of packages processed so far is reported before the context error
// propagates.
func (a *Auditor) checkPackages(ctx context.Context, dist, comp, arch string, index []byte) error {
	total := apt.CountPackages(index)
	indexURL := a.resolve("dists/" + dist + "/" + comp + "/binary-" + arch + "/Packages")
	slog.Info("checking packages", "repo", a.urlKey, "dist", dist, "component", comp,
		"arch", arch, "count", total)

	var bar *pb.ProgressBar
	if !a.quiet {
		bar = pb.StartNew(total)
		defer bar.Finish()
	}

	processed := 0
	scanner := apt.NewParagraphScanner(bytes.NewReader(index))
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			slog.Info("package check interrupted", "repo", a.urlKey, "dist", dist,
				"component", comp, "arch", arch, "processed", processed)
			return ctx.Err()
		default:
		}

		pkg := scanner.Paragraph()

		if !pkg.Has("Filename") {
			a.report.AddFinding(a.urlKey, dist, fmt.Sprintf(
				"%s file has a malformed package entry for package #%d", indexURL, processed))
			if bar != nil {
				bar.Increment()
			}
			continue
		}

		if v := pkg.Get("Version"); v != "" {
			if _, err := version.NewVersion(v); err != nil {
				a.report.AddFinding(a.urlKey, dist, fmt.Sprintf(
					"%s declares an invalid version %q for %s", indexURL, v, pkg.Get("Filename")))
			}
		}

		entries := apt.ParagraphChecksums(pkg)
		a.verifyChecksum(ctx, dist, pkg.Get("Filename"), KindPackage, entries, false)

		processed++
		if bar != nil {
			bar.Increment()
		}
	}
	if err := scanner.Err(); err != nil {
		a.report.AddFinding(a.urlKey, dist, indexURL.String()+" file malformed: "+err.Error())
	}

	slog.Info("checked packages", "repo", a.urlKey, "dist", dist, "component", comp,
		"arch", arch, "processed", processed)
	return errors.Wrap(ctx.Err(), "package check")
}
