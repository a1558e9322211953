package verify

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/texerai/maveric2/pkg/trace"
)

const (
	passToken = "PASS"

	noStatusReason = "no self-check status reported"
)

var notApplicableTokens = []string{"NOT APPLICABLE", "N/A"}

// SelfCheck is the DUT reported status line
type SelfCheck struct {
	Line   string
	Status Status
}

// Reason returns the failure reason reported by the DUT
func (s SelfCheck) Reason() string {
	if s.Line == "" {
		return noStatusReason
	}
	return s.Line
}

// ParseSelfCheck classifies a DUT status line. Lines holding the pass token
// pass, explicit not applicable lines are not applicable and anything else,
// including an empty line, fails.
func ParseSelfCheck(line string) SelfCheck {
	line = strings.TrimSpace(line)
	upper := strings.ToUpper(line)

	for _, token := range notApplicableTokens {
		if strings.Contains(upper, token) {
			return SelfCheck{Line: line, Status: StatusNotApplicable}
		}
	}

	if strings.Contains(upper, passToken) {
		return SelfCheck{Line: line, Status: StatusPass}
	}

	return SelfCheck{Line: line, Status: StatusFail}
}

// DUTOutput is the DUT console output split into its status line and canonical trace
type DUTOutput struct {
	Status string
	Trace  []string
}

// ReadDUTOutput splits the DUT output. Canonical trace lines form the trace,
// the first other non-empty line is the self-check status. Remaining lines
// (simulator banners, $finish notices) are ignored.
func ReadDUTOutput(r io.Reader) (DUTOutput, error) {
	var out DUTOutput
	statusFound := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		switch {
		case strings.TrimSpace(line) == "":
		case trace.IsCanonical(line):
			out.Trace = append(out.Trace, strings.TrimSpace(line))
		case strings.HasPrefix(line, ", "):
			// tail of an unprinted environment call line
		case !statusFound:
			out.Status = strings.TrimSpace(line)
			statusFound = true
		}
	}

	if err := scanner.Err(); err != nil {
		return out, errors.Wrap(err, "error reading DUT output")
	}

	return out, nil
}
