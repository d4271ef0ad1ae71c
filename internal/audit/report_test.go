package audit

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestReportAddEntryIdempotent(t *testing.T) {
	r := NewReport()
	r.AddEntry("http://repo", RepoLevel)
	r.AddFinding("http://repo", "stable", "something broke")
	r.AddEntry("http://repo", "stable") // must not clear findings
	r.AddEntry("http://repo", "stable")

	findings := r.Findings("http://repo", "stable")
	if len(findings) != 1 || findings[0] != "something broke" {
		t.Errorf("findings = %v, want the one recorded finding", findings)
	}

	if got := r.Findings("http://repo", RepoLevel); len(got) != 0 {
		t.Errorf("repo-level findings = %v, want empty", got)
	}
}

func TestReportEntryRecordsAttempt(t *testing.T) {
	r := NewReport()
	r.AddEntry("http://repo", "bookworm")

	dists := r.Dists("http://repo")
	if len(dists) != 1 || dists[0] != "bookworm" {
		t.Fatalf("dists = %v, want [bookworm]", dists)
	}
	if r.HasFindings() {
		t.Error("HasFindings = true for a report with only empty entries")
	}
}

func TestReportHasFindings(t *testing.T) {
	r := NewReport()
	if r.HasFindings() {
		t.Error("empty report has findings")
	}
	r.AddFinding("http://repo", DistsSentinel, "could not list dists")
	if !r.HasFindings() {
		t.Error("report with a finding reports none")
	}
	if r.FindingCount() != 1 {
		t.Errorf("FindingCount = %d, want 1", r.FindingCount())
	}
}

func TestReportConcurrentWrites(t *testing.T) {
	r := NewReport()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.AddFinding("http://repo", "stable", "finding")
			}
		}()
	}
	wg.Wait()
	if got := len(r.Findings("http://repo", "stable")); got != 1600 {
		t.Errorf("findings = %d, want 1600", got)
	}
}

func TestReportMarshalJSON(t *testing.T) {
	r := NewReport()
	r.AddEntry("http://repo", RepoLevel)
	r.AddFinding("http://repo", "stable", "bad checksum")

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]map[string][]string
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	repo, ok := decoded["http://repo"]
	if !ok {
		t.Fatalf("missing repo key in %s", out)
	}
	if findings, ok := repo["repository"]; !ok || len(findings) != 0 {
		t.Errorf("repository-level entry = %v, want present and empty", findings)
	}
	if findings := repo["stable"]; len(findings) != 1 || findings[0] != "bad checksum" {
		t.Errorf("stable findings = %v", findings)
	}
}
