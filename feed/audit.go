package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/streamsim/batchfeed/feed/tracker"
)

// CheckArtifact decodes the artifact at path and checks the consumer contract:
// the name parses as batch_<id>.json, the body is non-empty, and every record
// carries that id. Returns the batch id and record count.
func CheckArtifact(path string) (int64, int, error) {
	id, ok := ParseArtifactName(filepath.Base(path))
	if !ok {
		return 0, 0, fmt.Errorf("%s is not an artifact name", filepath.Base(path))
	}
	records, err := ReadArtifact(path)
	if err != nil {
		return id, 0, err
	}
	if len(records) == 0 {
		return id, 0, fmt.Errorf("%s holds no records", path)
	}
	for i, r := range records {
		if r.Idx != id {
			return id, len(records), fmt.Errorf("%s: record %d has idx %d, want %d", path, i, r.Idx, id)
		}
	}
	return id, len(records), nil
}

// SizeMismatch is a batch whose artifact does not hold the logged record count.
type SizeMismatch struct {
	BatchID int64
	Logged  int
	Found   int
}

// ArtifactProblem is an artifact that breaks the consumer contract.
type ArtifactProblem struct {
	BatchID int64
	Reason  string
}

// AuditReport is the result of reconciling a tracker log with the output directory.
type AuditReport struct {
	Logged    int
	Artifacts int
	Bytes     int64

	// MissingArtifacts are logged batches with no artifact: the log-then-emit window.
	MissingArtifacts []int64
	// UnloggedArtifacts are artifacts with no tracker record.
	UnloggedArtifacts []int64
	SizeMismatches    []SizeMismatch
	Problems          []ArtifactProblem
}

// Consistent reports whether log and artifacts agree exactly.
func (r AuditReport) Consistent() bool {
	return len(r.MissingArtifacts) == 0 && len(r.UnloggedArtifacts) == 0 &&
		len(r.SizeMismatches) == 0 && len(r.Problems) == 0
}

// Reconcile cross-checks tracker records against the artifacts in outputDir.
func Reconcile(outputDir string, records []tracker.Record) (AuditReport, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return AuditReport{}, fmt.Errorf("reading output directory: %w", err)
	}

	found := make(map[int64]int)
	report := AuditReport{Logged: len(records)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := ParseArtifactName(e.Name()); !ok {
			continue
		}
		path := filepath.Join(outputDir, e.Name())
		id, n, err := CheckArtifact(path)
		report.Artifacts++
		if info, statErr := e.Info(); statErr == nil {
			report.Bytes += info.Size()
		}
		if err != nil {
			report.Problems = append(report.Problems, ArtifactProblem{BatchID: id, Reason: err.Error()})
			continue
		}
		found[id] = n
	}

	logged := make(map[int64]bool, len(records))
	for _, rec := range records {
		logged[rec.BatchID] = true
		n, ok := found[rec.BatchID]
		switch {
		case !ok:
			if !hasProblem(report.Problems, rec.BatchID) {
				report.MissingArtifacts = append(report.MissingArtifacts, rec.BatchID)
			}
		case n != rec.BatchSize:
			report.SizeMismatches = append(report.SizeMismatches, SizeMismatch{BatchID: rec.BatchID, Logged: rec.BatchSize, Found: n})
		}
	}
	for id := range found {
		if !logged[id] {
			report.UnloggedArtifacts = append(report.UnloggedArtifacts, id)
		}
	}

	sort.Slice(report.MissingArtifacts, func(i, j int) bool { return report.MissingArtifacts[i] < report.MissingArtifacts[j] })
	sort.Slice(report.UnloggedArtifacts, func(i, j int) bool { return report.UnloggedArtifacts[i] < report.UnloggedArtifacts[j] })
	sort.Slice(report.SizeMismatches, func(i, j int) bool { return report.SizeMismatches[i].BatchID < report.SizeMismatches[j].BatchID })
	sort.Slice(report.Problems, func(i, j int) bool { return report.Problems[i].BatchID < report.Problems[j].BatchID })
	return report, nil
}

func hasProblem(problems []ArtifactProblem, id int64) bool {
	for _, p := range problems {
		if p.BatchID == id {
			return true
		}
	}
	return false
}
