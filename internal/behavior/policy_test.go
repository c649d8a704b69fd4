package behavior

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyDefaults(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		verdict Verdict
		reason  string
	}{
		{"ok", Outcome{StatusCode: 200}, VerdictSuccess, ""},
		{"created", Outcome{StatusCode: 201}, VerdictSuccess, ""},
		{"rate limited", Outcome{StatusCode: 429}, VerdictFailure, "rate limited"},
		{"server error", Outcome{StatusCode: 503}, VerdictFailure, "got status code 503"},
		{"not found", Outcome{StatusCode: 404}, VerdictFailure, "got status code 404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, reason := Classify(tt.outcome, Policy{})
			if verdict != tt.verdict {
				t.Errorf("verdict = %v, want %v", verdict, tt.verdict)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestClassifyPolicyOverride(t *testing.T) {
	policy := Policy{}.WithStatus(429, VerdictSuccess).WithStatus(404, VerdictExpectedFailure)

	verdict, reason := Classify(Outcome{StatusCode: 429}, policy)
	if verdict != VerdictSuccess || reason != "" {
		t.Errorf("429 under override = (%v, %q), want (success, \"\")", verdict, reason)
	}

	verdict, reason = Classify(Outcome{StatusCode: 404}, policy)
	if verdict != VerdictExpectedFailure {
		t.Errorf("404 under override = %v, want expected_failure", verdict)
	}
	if reason != "expected status 404" {
		t.Errorf("reason = %q, want %q", reason, "expected status 404")
	}
	if verdict.IsFailure() {
		t.Error("expected failure must not count as a failure")
	}

	// Codes not in the table keep the defaults.
	verdict, _ = Classify(Outcome{StatusCode: 500}, policy)
	if verdict != VerdictFailure {
		t.Errorf("500 under override = %v, want failure", verdict)
	}
}

func TestClassifyTransportErrorIgnoresPolicy(t *testing.T) {
	// A timeout is not a status the policy table can reinterpret.
	policy := Policy{}.WithStatus(0, VerdictSuccess)
	verdict, reason := Classify(Outcome{ErrorKind: ErrorKindTimeout}, policy)
	if verdict != VerdictFailure {
		t.Fatalf("verdict = %v, want failure", verdict)
	}
	if !strings.HasPrefix(reason, "transport error") {
		t.Errorf("reason = %q, want transport error prefix", reason)
	}
}

func TestResponseCheckPasses(t *testing.T) {
	body := []byte(`{"message": "hello", "usage": {"tokens": 12}}`)

	tests := []struct {
		path string
		want bool
	}{
		{"$.message", true},
		{"message", true},
		{"$.usage.tokens", true},
		{"$.missing", false},
		{"", true},
	}
	for _, tt := range tests {
		check := &ResponseCheck{JSONPath: tt.path}
		if got := check.Passes(body); got != tt.want {
			t.Errorf("Passes(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	var nilCheck *ResponseCheck
	if !nilCheck.Passes(body) {
		t.Error("nil check must pass")
	}
	check := &ResponseCheck{JSONPath: "$.message"}
	if check.Passes([]byte("not json")) {
		t.Error("check against non-JSON body must fail")
	}
}

func TestProfileValidateCollectsIssues(t *testing.T) {
	p := Profile{
		Tasks: []Task{
			{Weight: 0},
		},
		Wait: WaitRange{Min: 2, Max: 1},
	}
	err := p.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want ValidationError", err)
	}
	issues := verr.Issues()
	if len(issues) < 4 {
		t.Fatalf("got %d issues, want at least 4: %v", len(issues), issues)
	}
}

func TestProfileValidateOK(t *testing.T) {
	p := Profile{
		Name: "ok",
		Tasks: []Task{
			{Name: "one", Weight: 1, Build: buildTask("one")},
		},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}
