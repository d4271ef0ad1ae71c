package audit

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/cockroachdb/errors"

	"github.com/repoaudit/repoaudit/internal/apt"
)

// FileKind labels what a verified file is, for finding messages.
type FileKind string

const (
	// KindMetadata marks distribution metadata files listed in Release.
	KindMetadata FileKind = "metadata"
	// KindPackage marks package artifacts listed in a Packages index.
	KindPackage FileKind = "package"
)

// verifyChecksum downloads the file at fileLoc (relative to the repository
// root) and checks it against every expected digest.  Mismatches and, when
// not tolerated, missing files are recorded as findings.  The return value
// reports whether the file passed in full.
func (a *Auditor) verifyChecksum(ctx context.Context, dist, fileLoc string, kind FileKind,
	expected []apt.ChecksumEntry, toleratesMissing bool) bool {

	fileURL := a.resolve(fileLoc)
	data, err := a.client.Fetch(ctx, fileURL)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// cancellation is propagated by the caller, never recorded
			return false
		}
		if IsNotFound(err) {
			if toleratesMissing {
				slog.Debug("optional file missing", "url", fileURL, "kind", kind)
				return true
			}
			a.report.AddFinding(a.urlKey, dist, "Could not access "+string(kind)+" file at "+fileURL.String())
			return false
		}
		a.report.AddFinding(a.urlKey, dist, "Error when attempting to access "+fileURL.String()+": "+err.Error())
		return false
	}

	ok := true
	for _, entry := range expected {
		actual := apt.DigestHex(entry.Algorithm, data)
		if actual != entry.Digest {
			a.report.AddFinding(a.urlKey, dist,
				string(kind)+" file "+fileURL.String()+" has a "+entry.Algorithm.String()+
					" checksum mismatch: expected "+entry.Digest+", computed "+actual)
			ok = false
		}
	}
	return ok
}

// verifySignature checks one signed file.  When sigURL is set the file is
// verified against that detached armored signature; otherwise the file
// itself must be an inline clearsigned message.
func (a *Auditor) verifySignature(ctx context.Context, dist string, fileURL, sigURL *url.URL) bool {
	signed, err := a.client.Fetch(ctx, fileURL)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		a.report.AddFinding(a.urlKey, dist, "Could not access signed file at "+fileURL.String()+": "+err.Error())
		return false
	}

	verifier, err := a.pgp.Verify().VerificationKey(a.keyring).New()
	if err != nil {
		a.report.AddFinding(a.urlKey, dist, "could not build signature verifier: "+err.Error())
		return false
	}

	if sigURL != nil {
		sig, err := a.client.Fetch(ctx, sigURL)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			a.report.AddFinding(a.urlKey, dist, "Could not access signature file at "+sigURL.String()+": "+err.Error())
			return false
		}
		verifyResult, err := verifier.VerifyDetached(signed, sig, crypto.Armor)
		if err != nil {
			a.report.AddFinding(a.urlKey, dist, "signature verification failed for "+fileURL.String()+": "+err.Error())
			return false
		}
		if sigErr := verifyResult.SignatureError(); sigErr != nil {
			a.report.AddFinding(a.urlKey, dist, "signature verification failed for "+fileURL.String()+": "+sigErr.Error())
			return false
		}
	} else {
		verifyResult, err := verifier.VerifyCleartext(signed)
		if err != nil {
			a.report.AddFinding(a.urlKey, dist, "signature verification failed for "+fileURL.String()+": "+err.Error())
			return false
		}
		if sigErr := verifyResult.SignatureError(); sigErr != nil {
			a.report.AddFinding(a.urlKey, dist, "signature verification failed for "+fileURL.String()+": "+sigErr.Error())
			return false
		}
	}

	slog.Debug("signature valid", "url", fileURL, "key_id", a.keyring.GetHexKeyID())
	return true
}

// checkSignatures verifies both signed forms of the release descriptor:
// Release with its detached Release.gpg, and the clearsigned InRelease.
// Failures are findings but never stop metadata or package checks.
func (a *Auditor) checkSignatures(ctx context.Context, dist string) {
	if a.keyring == nil {
		return
	}

	distPath := "dists/" + dist + "/"
	releaseURL := a.resolve(distPath + "Release")
	releaseSigURL := a.resolve(distPath + "Release.gpg")
	inReleaseURL := a.resolve(distPath + "InRelease")

	detachedOK := a.verifySignature(ctx, dist, releaseURL, releaseSigURL)
	inlineOK := a.verifySignature(ctx, dist, inReleaseURL, nil)

	if detachedOK && inlineOK {
		slog.Info("signature check successful", "repo", a.urlKey, "dist", dist)
	} else {
		slog.Info("signature check failed", "repo", a.urlKey, "dist", dist)
	}
}
