package steps

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PytestParser parses pytest terminal output: the trailing summary line plus
// any "FAILED path::test" lines from the short test summary.
type PytestParser struct{}

type pytestFailure struct {
	Test  string `json:"test"`
	Error string `json:"error,omitempty"`
}

type pytestResult struct {
	Passed   int             `json:"passed"`
	Failed   int             `json:"failed"`
	Errors   int             `json:"errors"`
	Skipped  int             `json:"skipped"`
	Failures []pytestFailure `json:"failures,omitempty"`
}

// summaryCountRe matches count tokens in pytest's final line, e.g. "12 passed",
// "2 failed", "1 error". ANSI color codes may surround the tokens.
var summaryCountRe = regexp.MustCompile(`(\d+) (passed|failed|error|errors|skipped|xfailed|xpassed)`)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func (p *PytestParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	clean := ansiRe.ReplaceAllString(stdout, "")

	result := pytestResult{}
	found := false
	for _, m := range summaryCountRe.FindAllStringSubmatch(clean, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = true
		switch m[2] {
		case "passed":
			result.Passed = n
		case "failed":
			result.Failed = n
		case "error", "errors":
			result.Errors = n
		case "skipped":
			result.Skipped = n
		}
	}

	for _, line := range strings.Split(clean, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "FAILED ") {
			continue
		}
		rest := strings.TrimPrefix(line, "FAILED ")
		test, errMsg := rest, ""
		if idx := strings.Index(rest, " - "); idx >= 0 {
			test = rest[:idx]
			errMsg = rest[idx+3:]
		}
		result.Failures = append(result.Failures, pytestFailure{Test: test, Error: errMsg})
	}

	if !found {
		// No summary line at all — collection error or crash. Trust the exit code.
		return ParseResult{
			Passed:   exitCode == 0,
			Summary:  fmt.Sprintf("exit code %d (no pytest summary found)", exitCode),
			Findings: result,
		}
	}

	passed := exitCode == 0 && result.Failed == 0 && result.Errors == 0
	summary := fmt.Sprintf("%d passed, %d failed, %d errors, %d skipped",
		result.Passed, result.Failed, result.Errors, result.Skipped)

	return ParseResult{
		Passed:   passed,
		Summary:  summary,
		Findings: result,
	}
}
