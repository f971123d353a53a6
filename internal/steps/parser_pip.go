package steps

import (
	"fmt"
	"strings"
)

// PipParser parses pip install output: the "Successfully installed" line on
// success, "ERROR:" lines on failure.
type PipParser struct{}

func (p *PipParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		summary := "install succeeded"
		for _, line := range strings.Split(stdout, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "Successfully installed ") {
				summary = trimmed
			}
		}
		return ParseResult{Passed: true, Summary: summary}
	}

	combined := stdout + "\n" + stderr
	summary := fmt.Sprintf("install failed (exit code %d)", exitCode)
	var findings []string

	for _, line := range strings.Split(combined, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "ERROR: ") {
			findings = append(findings, trimmed)
			if summary == fmt.Sprintf("install failed (exit code %d)", exitCode) {
				summary = trimmed
			}
		}
	}

	return ParseResult{
		Passed:   false,
		Summary:  summary,
		Findings: findings,
	}
}
