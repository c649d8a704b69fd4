package behavior

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// ErrorKind labels a transport-level request failure.
type ErrorKind string

const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindCanceled   ErrorKind = "canceled"
	ErrorKindConnection ErrorKind = "connection"
)

// Outcome is the immutable record of one request execution. StatusCode is zero
// when the request never produced a response; ErrorKind is empty when it did.
type Outcome struct {
	Category   string
	StatusCode int
	Latency    time.Duration
	BodyLength int64
	Body       []byte // capped snippet retained for response checks
	ErrorKind  ErrorKind
	Cancelled  bool
	Timestamp  time.Time
}

// Verdict classifies a request outcome.
type Verdict int

const (
	VerdictSuccess Verdict = iota
	VerdictExpectedFailure
	VerdictFailure
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictExpectedFailure:
		return "expected_failure"
	case VerdictFailure:
		return "failure"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// IsFailure reports whether the verdict counts against the failure rate.
// Expected failures are tolerated outcomes and do not.
func (v Verdict) IsFailure() bool {
	return v == VerdictFailure
}

// Policy is a task's classification table. Statuses maps exact status codes to
// verdicts; codes not present follow the default rules in Classify. The burst
// workload maps 429 to VerdictSuccess because being throttled is the behavior
// under test there; every other task keeps the default 429-is-failure rule.
type Policy struct {
	Statuses map[int]Verdict
}

// WithStatus returns a copy of the policy with one more status override.
func (p Policy) WithStatus(code int, v Verdict) Policy {
	statuses := make(map[int]Verdict, len(p.Statuses)+1)
	for k, val := range p.Statuses {
		statuses[k] = val
	}
	statuses[code] = v
	return Policy{Statuses: statuses}
}

// Classify maps an outcome to a verdict under the given policy and returns a
// human-readable reason for non-success verdicts.
//
// Transport errors and timeouts are always failures regardless of policy; a
// timeout is not a status the policy table can reinterpret.
func Classify(o Outcome, p Policy) (Verdict, string) {
	if o.ErrorKind != "" {
		return VerdictFailure, "transport error: " + string(o.ErrorKind)
	}
	if v, ok := p.Statuses[o.StatusCode]; ok {
		switch v {
		case VerdictSuccess:
			return VerdictSuccess, ""
		case VerdictExpectedFailure:
			return VerdictExpectedFailure, fmt.Sprintf("expected status %d", o.StatusCode)
		default:
			return VerdictFailure, failureReason(o.StatusCode)
		}
	}
	if o.StatusCode >= 200 && o.StatusCode <= 299 {
		return VerdictSuccess, ""
	}
	return VerdictFailure, failureReason(o.StatusCode)
}

func failureReason(code int) string {
	if code == 429 {
		return "rate limited"
	}
	return fmt.Sprintf("got status code %d", code)
}

// ResponseCheck validates a successful response body. A check failure
// downgrades the verdict to failure with reason "check failed".
type ResponseCheck struct {
	// JSONPath must resolve to an existing value in the response body.
	// Accepts both "$.field" and "field" syntax.
	JSONPath string
}

// Passes reports whether the body satisfies the check. A nil check passes.
func (c *ResponseCheck) Passes(body []byte) bool {
	if c == nil || c.JSONPath == "" {
		return true
	}
	path := c.JSONPath
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			path = path[2:]
		} else if len(path) == 1 {
			path = "@this"
		}
	}
	return gjson.GetBytes(body, path).Exists()
}
