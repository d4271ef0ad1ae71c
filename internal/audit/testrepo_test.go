package audit

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"testing"

	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/klauspost/compress/gzip"

	"github.com/repoaudit/repoaudit/internal/apt"
)

// newTestServer serves the given files keyed by slash-trimmed path and
// returns the server's base URL.  Unknown paths yield 404.
func newTestServer(t *testing.T, files map[string][]byte) *url.URL {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[strings.Trim(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	return u
}

func newTestAuditor(t *testing.T, repo *url.URL, dists []string) *Auditor {
	t.Helper()
	return NewAuditor(repo, dists, nil, NewHTTPClient(4, nil), NewReport(), true)
}

func listingHTML(names ...string) []byte {
	var b bytes.Buffer
	b.WriteString("<html><body>\n")
	for _, name := range names {
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n", name, name)
	}
	b.WriteString("</body></html>\n")
	return b.Bytes()
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// makeRelease renders a Release descriptor with SHA256 (and optionally
// MD5Sum) checksum fields covering the given files.
func makeRelease(components, architectures string, files map[string][]byte, withMD5 bool) []byte {
	var b bytes.Buffer
	if components != "" {
		fmt.Fprintf(&b, "Components: %s\n", components)
	}
	if architectures != "" {
		fmt.Fprintf(&b, "Architectures: %s\n", architectures)
	}
	if withMD5 {
		b.WriteString("MD5Sum:\n")
		for name, content := range files {
			fmt.Fprintf(&b, " %s %d %s\n", apt.DigestHex(apt.MD5, content), len(content), name)
		}
	}
	b.WriteString("SHA256:\n")
	for name, content := range files {
		fmt.Fprintf(&b, " %s %d %s\n", apt.DigestHex(apt.SHA256, content), len(content), name)
	}
	return b.Bytes()
}

// generateTestKey creates a fresh signing key pair for signature tests.
func generateTestKey(t *testing.T) (priv, pub *crypto.Key) {
	t.Helper()
	priv, err := crypto.PGP().KeyGeneration().
		AddUserId("repo signer", "signer@example.com").
		New().GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub, err = priv.ToPublic()
	if err != nil {
		t.Fatalf("extract public key: %v", err)
	}
	return priv, pub
}

// signDetached produces an armored detached signature over data.
func signDetached(t *testing.T, key *crypto.Key, data []byte) []byte {
	t.Helper()
	signer, err := crypto.PGP().Sign().SigningKey(key).Detached().New()
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	sig, err := signer.Sign(data, crypto.Armor)
	if err != nil {
		t.Fatalf("sign detached: %v", err)
	}
	return sig
}

// signCleartext produces an inline clearsigned message over data.
func signCleartext(t *testing.T, key *crypto.Key, data []byte) []byte {
	t.Helper()
	signer, err := crypto.PGP().Sign().SigningKey(key).New()
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	msg, err := signer.SignCleartext(data)
	if err != nil {
		t.Fatalf("sign cleartext: %v", err)
	}
	return msg
}

// makePackagesIndex renders a Packages index paragraph per artifact.
func makePackagesIndex(artifacts map[string][]byte) []byte {
	var b bytes.Buffer
	for filename, content := range artifacts {
		fmt.Fprintf(&b, "Package: %s\n", strings.TrimSuffix(path.Base(filename), ".deb"))
		b.WriteString("Version: 1.0-1\n")
		fmt.Fprintf(&b, "Filename: %s\n", filename)
		fmt.Fprintf(&b, "SHA256: %s\n", apt.DigestHex(apt.SHA256, content))
		fmt.Fprintf(&b, "MD5sum: %s\n", apt.DigestHex(apt.MD5, content))
		b.WriteString("\n")
	}
	return b.Bytes()
}
