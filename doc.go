/*
Package repoaudit is a tool for auditing the integrity of Debian/Ubuntu
APT repositories.

repoaudit walks a repository over HTTP the way a client would and reports
every inconsistency it finds, including:
  - Metadata files that do not match the checksums their Release declares
  - Package artifacts that do not match their Packages index entries
  - Missing files, malformed descriptors, and invalid version strings
  - PGP signature failures on Release and InRelease

The main packages are:

	github.com/repoaudit/repoaudit/internal/apt    - APT repository format parsing
	github.com/repoaudit/repoaudit/internal/audit  - Repository traversal and verification
	github.com/repoaudit/repoaudit/cmd/repoaudit   - Command-line interface
*/
package repoaudit
