package steps

import (
	"fmt"
	"strings"
)

// CondaParser parses conda/mamba environment creation output. Conda prints
// resolution failures to stderr with recognizable prefixes.
type CondaParser struct{}

var condaErrorPrefixes = []string{
	"ResolvePackageNotFound",
	"PackagesNotFoundError",
	"CondaEnvException",
	"CondaValueError",
	"EnvironmentFileNotFound",
	"LibMambaUnsatisfiableError",
}

func (p *CondaParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{
			Passed:  true,
			Summary: "environment created",
		}
	}

	combined := stdout + "\n" + stderr
	summary := fmt.Sprintf("environment creation failed (exit code %d)", exitCode)
	var findings []string

	for _, line := range strings.Split(combined, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range condaErrorPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				findings = append(findings, trimmed)
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
