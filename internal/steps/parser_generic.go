package steps

import "fmt"

// GenericParser handles steps without a dedicated parser: pass/fail comes
// from the exit code alone, and failures carry the tail of the combined
// output so the run report shows the actual errors.
type GenericParser struct{}

// findingsTailLimit caps how much combined output a failed step keeps. Error
// summaries and tracebacks sit at the end, so the tail is what matters.
const findingsTailLimit = 8000

func (p *GenericParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Passed: true, Summary: "passed (exit code 0)", Findings: ""}
	}

	combined := stdout
	if stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += stderr
	}
	if len(combined) > findingsTailLimit {
		combined = "…(truncated)\n" + combined[len(combined)-findingsTailLimit:]
	}

	return ParseResult{
		Passed:   false,
		Summary:  fmt.Sprintf("exit code %d, stdout=%d bytes, stderr=%d bytes", exitCode, len(stdout), len(stderr)),
		Findings: combined,
	}
}
