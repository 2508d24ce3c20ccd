package supervisor

import (
	"regexp"
	"time"
)

// Outcome classifies how an agent process ended.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeNetworkError      Outcome = "network_error"
	OutcomePermissionBlocked Outcome = "permission_blocked"
	OutcomeFailed            Outcome = "failed"
)

// Completion is the record handed to the scheduler when a process
// exits.
type Completion struct {
	TaskID    string
	Agent     string
	ExitCode  int
	Duration  time.Duration
	SessionID string
	Output    string
	Outcome   Outcome
}

var (
	networkRe    = regexp.MustCompile(`(?i)network|connection|timeout|api.*error`)
	permissionRe = regexp.MustCompile(`(?i)permission.*denied|blocked.*tool|require.*approval`)

	uuidPattern  = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`
	sessionIDRes = []*regexp.Regexp{
		regexp.MustCompile(`Session ID: (` + uuidPattern + `)`),
		regexp.MustCompile(`session_id[:=]\s*"?(` + uuidPattern + `)`),
	}
)

// classifyExit maps an exit code and captured output to an outcome.
func classifyExit(exitCode int, output string) Outcome {
	switch {
	case exitCode == 0:
		return OutcomeSuccess
	case exitCode == 1 && networkRe.MatchString(output):
		return OutcomeNetworkError
	case exitCode == 1 && permissionRe.MatchString(output):
		return OutcomePermissionBlocked
	default:
		return OutcomeFailed
	}
}

// extractSessionID finds the first session id in the output, or "".
func extractSessionID(output string) string {
	for _, re := range sessionIDRes {
		if m := re.FindStringSubmatch(output); m != nil {
			return m[1]
		}
	}
	return ""
}
