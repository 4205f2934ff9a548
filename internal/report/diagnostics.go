package report

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// compilerError matches javac-style diagnostics: `<file>:<line>: error: <message>`.
var compilerError = regexp.MustCompile(`^(.+\.java):(\d+):\s*error:\s*(.+)$`)

var caretLine = regexp.MustCompile(`^\s*\^\s*$`)

// ExtractCompilationErrors scans raw build output for compiler diagnostics.
// The source snippet and caret pointer lines that follow a diagnostic are
// attached when the compiler echoed them.
func ExtractCompilationErrors(raw string) []CompilationError {
	var (
		errs    []CompilationError
		current *CompilationError
	)

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()

		if m := compilerError.FindStringSubmatch(line); m != nil {
			if current != nil {
				errs = append(errs, *current)
			}
			lineNo, _ := strconv.Atoi(m[2])
			current = &CompilationError{
				File:    m[1],
				Line:    lineNo,
				Message: strings.TrimSpace(m[3]),
			}
			continue
		}

		if current == nil {
			continue
		}
		switch {
		case caretLine.MatchString(line):
			current.Pointer = line
			errs = append(errs, *current)
			current = nil
		case current.Snippet == "" && strings.TrimSpace(line) != "":
			current.Snippet = line
		default:
			// Anything else ends the diagnostic block.
			errs = append(errs, *current)
			current = nil
		}
	}
	if current != nil {
		errs = append(errs, *current)
	}
	return errs
}
