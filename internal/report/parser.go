// Package report converts raw or semi-structured build output into the
// canonical test-suite/test-case result model. Parsing is pure: identical
// input always yields an identical result list.
package report

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// resultLine matches the shape `<qualified-name> <STATUS> (<time>)`.
// Everything that doesn't match is either ignored or, after a FAILED line,
// consumed as that case's failure-detail block.
var resultLine = regexp.MustCompile(`^(.*?)(\S+)\s+(PASSED|FAILED)\s+\(([^)]*)\)\s*$`)

var leadingInt = regexp.MustCompile(`\d+`)

// Parse converts raw build output into suite results grouped by owning class
// name, in first-seen order. Absent or empty input is a valid empty result.
func Parse(raw string) []TestSuiteResult {
	var (
		order  []string
		suites = make(map[string]*TestSuiteResult)
	)

	addCase := func(c TestCaseResult) {
		s, ok := suites[c.ClassName]
		if !ok {
			s = &TestSuiteResult{Name: c.ClassName}
			suites[c.ClassName] = s
			order = append(order, c.ClassName)
		}
		s.Cases = append(s.Cases, c)
	}

	var pending *TestCaseResult // FAILED case collecting its detail block
	flush := func() {
		if pending != nil {
			addCase(*pending)
			pending = nil
		}
	}

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()

		m := resultLine.FindStringSubmatch(line)
		if m == nil {
			if pending != nil {
				appendDetail(pending, line)
			}
			continue
		}
		flush()

		c := TestCaseResult{
			ClassName:     className(m[1]),
			MethodName:    strings.TrimSuffix(m[2], "()"),
			Status:        Status(m[3]),
			ExecutionTime: parseMillis(m[4]),
		}
		if c.Status == StatusFailed {
			pending = &c
			continue
		}
		addCase(c)
	}
	flush()

	results := make([]TestSuiteResult, 0, len(order))
	for _, name := range order {
		s := suites[name]
		for _, c := range s.Cases {
			s.Total++
			s.ExecutionTime += c.ExecutionTime
			switch c.Status {
			case StatusFailed:
				s.Failures++
			case StatusError:
				s.Errors++
			case StatusSkipped:
				s.Skipped++
			}
		}
		results = append(results, *s)
	}
	return results
}

// ParseDir parses every regular file in a report directory, in name order.
// A missing or empty directory is a valid empty result, not an error.
func ParseDir(dir string) []TestSuiteResult {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var sb strings.Builder
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name())) // #nosec G304 -- dir is a run-private temp directory
		if err != nil {
			continue
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return Parse(sb.String())
}

// className normalizes everything before the method token: surrounding
// whitespace and the `>` separator some tools print between class and method.
func className(prefix string) string {
	return strings.TrimRight(strings.TrimSpace(prefix), " >")
}

// parseMillis extracts the integer from a parenthesized time suffix like
// `12ms`. Unparsable input defaults to 0, never fails.
func parseMillis(s string) time.Duration {
	digits := leadingInt.FindString(s)
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

func appendDetail(c *TestCaseResult, line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if strings.HasPrefix(trimmed, "at ") {
		if c.StackTrace != "" {
			c.StackTrace += "\n"
		}
		c.StackTrace += trimmed
		return
	}
	if c.FailureMessage != "" {
		c.FailureMessage += "\n"
	}
	c.FailureMessage += trimmed
}
