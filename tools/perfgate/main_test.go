package main

import (
	"strings"
	"testing"
)

const sampleOutput = `goos: linux
goarch: amd64
pkg: github.com/Thejuampi/stomp-client-go/stomp
BenchmarkParserFeedMessage-8     	 2000000	       612.0 ns/op	     480 B/op	       6 allocs/op
BenchmarkEncodeSend-8            	 3000000	       401.5 ns/op	     256 B/op	       1 allocs/op
BenchmarkBroken-8                	 1000
PASS
`

func TestParseBenchOutput(t *testing.T) {
	results := parseBenchOutput(sampleOutput)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %v", results)
	}
	feed := results["BenchmarkParserFeedMessage"]
	if feed.NSOp != 612 || feed.AllocsOp != 6 {
		t.Fatalf("unexpected parser result: %+v", feed)
	}
}

func TestCompareFlagsRegressions(t *testing.T) {
	baseline := map[string]benchmarkBaseline{
		"BenchmarkParserFeedMessage": {NSOp: 500, AllocsOp: 6},
		"BenchmarkEncodeSend":        {NSOp: 400, AllocsOp: 0},
		"BenchmarkMissing":           {NSOp: 1, AllocsOp: 1},
	}
	failures := compare(baseline, parseBenchOutput(sampleOutput), 10)
	if len(failures) != 3 {
		t.Fatalf("expected 3 failures, got %v", failures)
	}
	if !strings.HasPrefix(failures[0], "BenchmarkEncodeSend allocs/op") ||
		!strings.HasPrefix(failures[1], "BenchmarkParserFeedMessage ns/op") ||
		!strings.HasPrefix(failures[2], "missing benchmark result") {
		t.Fatalf("unexpected failures: %v", failures)
	}
}

func TestBenchPatternIsAnchored(t *testing.T) {
	pattern := benchPattern(map[string]benchmarkBaseline{"BenchmarkB": {}, "BenchmarkA": {}})
	if pattern != "^(BenchmarkA|BenchmarkB)$" {
		t.Fatalf("unexpected pattern %q", pattern)
	}
}
