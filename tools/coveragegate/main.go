package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/cover"
)

type coverage struct {
	covered int
	total   int
}

// pureFiles hold no I/O and are held to the pure threshold.
var pureFiles = []string{
	"stomp/errors.go",
	"stomp/version.go",
	"stomp/header.go",
	"stomp/frame.go",
	"stomp/parser.go",
	"stomp/heartbeat.go",
	"stomp/registry.go",
	"stomp/callbacks.go",
	"stomp/stompmetrics/metrics.go",
	"stomp/internal/testutil/fakes.go",
}

var ioFiles = []string{
	"stomp/session.go",
	"stomp/run.go",
	"stomp/transport.go",
	"stomp/websocket.go",
	"internal/fakebroker/broker.go",
	"internal/fakebroker/connection.go",
}

type thresholds struct {
	overall float64
	pure    float64
	io      float64
}

func parseProfile(path string) (map[string]coverage, error) {
	profiles, err := cover.ParseProfiles(path)
	if err != nil {
		return nil, err
	}

	result := map[string]coverage{}
	for _, profile := range profiles {
		entry := result[profile.FileName]
		for _, block := range profile.Blocks {
			entry.total += block.NumStmt
			if block.Count > 0 {
				entry.covered += block.NumStmt
			}
		}
		result[profile.FileName] = entry
	}
	return result, nil
}

func findCoverage(files map[string]coverage, suffix string) (coverage, bool) {
	for fileName, cov := range files {
		if strings.HasSuffix(fileName, suffix) {
			return cov, true
		}
	}
	return coverage{}, false
}

func pct(c coverage) float64 {
	if c.total == 0 {
		return 0
	}
	return (float64(c.covered) * 100.0) / float64(c.total)
}

// evaluate returns the aggregate coverage and every threshold violation,
// sorted.
func evaluate(files map[string]coverage, limits thresholds) (coverage, []string) {
	total := coverage{}
	for _, fileCov := range files {
		total.covered += fileCov.covered
		total.total += fileCov.total
	}

	failures := make([]string, 0)
	if overall := pct(total); overall+1e-9 < limits.overall {
		failures = append(failures, fmt.Sprintf("aggregate coverage %.1f%% is below %.1f%%", overall, limits.overall))
	}

	check := func(kind string, fileNames []string, threshold float64) {
		for _, fileName := range fileNames {
			fileCov, ok := findCoverage(files, fileName)
			if !ok {
				failures = append(failures, fmt.Sprintf("%s file %s is missing from coverage profile", kind, fileName))
				continue
			}
			if filePct := pct(fileCov); filePct+1e-9 < threshold {
				failures = append(failures, fmt.Sprintf("%s file %s is %.1f%% (required %.1f%%)", kind, fileName, filePct, threshold))
			}
		}
	}
	check("pure", pureFiles, limits.pure)
	check("io", ioFiles, limits.io)

	sort.Strings(failures)
	return total, failures
}

func main() {
	profilePath := flag.String("profile", "coverage.out", "path to go coverage profile")
	overallThreshold := flag.Float64("overall", 85.0, "minimum aggregate coverage percentage")
	pureThreshold := flag.Float64("pure", 95.0, "minimum coverage percentage for pure files")
	ioThreshold := flag.Float64("io", 80.0, "minimum io file coverage percentage")
	flag.Parse()

	files, err := parseProfile(*profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coverage gate failed reading profile: %v\n", err)
		os.Exit(1)
	}

	total, failures := evaluate(files, thresholds{overall: *overallThreshold, pure: *pureThreshold, io: *ioThreshold})
	fmt.Printf("aggregate: %.1f%% (%d/%d)\n", pct(total), total.covered, total.total)
	if len(failures) == 0 {
		fmt.Println("coverage gate: PASS")
		return
	}

	fmt.Println("coverage gate: FAIL")
	for _, failure := range failures {
		fmt.Printf("- %s\n", failure)
	}
	os.Exit(2)
}
