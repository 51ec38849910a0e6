package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type benchmarkBaseline struct {
	NSOp     float64 `json:"ns_op"`
	AllocsOp float64 `json:"allocs_op"`
}

type baselineFile struct {
	Benchmarks map[string]benchmarkBaseline `json:"benchmarks"`
}

type benchmarkResult struct {
	NSOp     float64
	AllocsOp float64
}

// parseBenchOutput collects ns/op and allocs/op per benchmark from
// "go test -bench -benchmem" output. Lines missing either metric are skipped.
func parseBenchOutput(output string) map[string]benchmarkResult {
	results := map[string]benchmarkResult{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if name, result, ok := parseBenchLine(scanner.Text()); ok {
			results[name] = result
		}
	}
	return results
}

// parseBenchLine reads "BenchmarkName-8  N  ns/op  B/op  allocs/op".
func parseBenchLine(line string) (string, benchmarkResult, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 || !strings.HasPrefix(fields[0], "Benchmark") {
		return "", benchmarkResult{}, false
	}
	name := fields[0]
	if dash := strings.LastIndex(name, "-"); dash > 0 {
		name = name[:dash]
	}

	metrics := map[string]float64{}
	for index := 1; index+1 < len(fields); index++ {
		if value, err := strconv.ParseFloat(fields[index], 64); err == nil {
			metrics[fields[index+1]] = value
		}
	}
	nsOp, hasNS := metrics["ns/op"]
	allocsOp, hasAllocs := metrics["allocs/op"]
	if !hasNS || !hasAllocs || nsOp <= 0 {
		return "", benchmarkResult{}, false
	}
	return name, benchmarkResult{NSOp: nsOp, AllocsOp: allocsOp}, true
}

// compare checks every baseline benchmark against results and returns the
// regressions beyond maxRegression percent, sorted.
func compare(baseline map[string]benchmarkBaseline, results map[string]benchmarkResult, maxRegression float64) []string {
	failures := []string{}
	for name, expected := range baseline {
		actual, ok := results[name]
		if !ok {
			failures = append(failures, fmt.Sprintf("missing benchmark result: %s", name))
			continue
		}

		maxNS := expected.NSOp * (1.0 + (maxRegression / 100.0))
		if actual.NSOp > maxNS {
			failures = append(failures, fmt.Sprintf("%s ns/op regression: baseline %.2f, actual %.2f, max %.2f", name, expected.NSOp, actual.NSOp, maxNS))
		}

		maxAllocs := expected.AllocsOp * (1.0 + (maxRegression / 100.0))
		if expected.AllocsOp == 0 {
			maxAllocs = 0
		}
		if actual.AllocsOp > maxAllocs {
			failures = append(failures, fmt.Sprintf("%s allocs/op regression: baseline %.2f, actual %.2f, max %.2f", name, expected.AllocsOp, actual.AllocsOp, maxAllocs))
		}
	}
	sort.Strings(failures)
	return failures
}

func benchPattern(baseline map[string]benchmarkBaseline) string {
	names := make([]string, 0, len(baseline))
	for name := range baseline {
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Strings(names)
	return "^(" + strings.Join(names, "|") + ")$"
}

func main() {
	baselinePath := flag.String("baseline", "tools/perf_baseline.json", "path to benchmark baseline JSON")
	packagePath := flag.String("package", "./stomp", "package path for benchmarks")
	benchtime := flag.String("benchtime", "1s", "go test benchmark duration")
	maxRegression := flag.Float64("max-regression", 10.0, "max allowed regression percentage")
	flag.Parse()

	data, err := os.ReadFile(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perf baseline read failed: %v\n", err)
		os.Exit(1)
	}

	baseline := baselineFile{}
	if err = json.Unmarshal(data, &baseline); err != nil {
		fmt.Fprintf(os.Stderr, "perf baseline parse failed: %v\n", err)
		os.Exit(1)
	}
	if len(baseline.Benchmarks) == 0 {
		fmt.Fprintln(os.Stderr, "perf baseline is empty")
		os.Exit(1)
	}

	command := exec.Command("go", "test", *packagePath, "-run", "^$", "-bench", benchPattern(baseline.Benchmarks), "-benchmem", "-count=1", "-benchtime="+*benchtime) // #nosec G204 -- arguments are passed without shell expansion
	outputBytes, err := command.CombinedOutput()
	output := string(outputBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "benchmark command failed: %v\n%s", err, output)
		os.Exit(1)
	}

	failures := compare(baseline.Benchmarks, parseBenchOutput(output), *maxRegression)
	fmt.Print(output)
	if len(failures) == 0 {
		fmt.Println("perf gate: PASS")
		return
	}

	fmt.Println("perf gate: FAIL")
	for _, failure := range failures {
		fmt.Printf("- %s\n", failure)
	}
	os.Exit(2)
}
