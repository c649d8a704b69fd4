package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProfileFile(t *testing.T) {
	path := writeProfile(t, `
name: api
wait:
  min: 1s
  max: 3s
tasks:
  - name: list
    weight: 3
    method: get
    path: /api/items
    tags: [read]
  - name: create
    weight: 1
    method: POST
    path: /api/items
    headers:
      content-type: application/json
    body: '{"name":"x"}'
    timeout: 10s
    statuses:
      429: expected_failure
    check: $.id
`)

	profile, err := LoadProfileFile(path)
	if err != nil {
		t.Fatalf("LoadProfileFile returned error: %v", err)
	}
	if profile.Name != "api" {
		t.Errorf("name = %q", profile.Name)
	}
	if profile.Wait.Min != time.Second || profile.Wait.Max != 3*time.Second {
		t.Errorf("wait = %+v", profile.Wait)
	}
	if len(profile.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(profile.Tasks))
	}

	list := profile.Tasks[0]
	if list.Weight != 3 || len(list.Tags) != 1 || list.Tags[0] != "read" {
		t.Errorf("list task = %+v", list)
	}
	spec, err := list.Build(nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if spec.Method != "GET" || spec.Path != "/api/items" {
		t.Errorf("list spec = %+v", spec)
	}

	create := profile.Tasks[1]
	spec, err = create.Build(nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if spec.Headers["Content-Type"] != "application/json" {
		t.Errorf("headers not canonicalized: %v", spec.Headers)
	}
	if string(spec.Body) != `{"name":"x"}` {
		t.Errorf("body = %q", spec.Body)
	}
	if create.Timeout != 10*time.Second {
		t.Errorf("timeout = %v", create.Timeout)
	}
	if create.Check == nil || create.Check.JSONPath != "$.id" {
		t.Errorf("check = %+v", create.Check)
	}
	verdict, _ := behavior.Classify(behavior.Outcome{StatusCode: 429}, create.Policy)
	if verdict != behavior.VerdictExpectedFailure {
		t.Errorf("429 verdict = %v, want expected failure", verdict)
	}
}

func TestLoadProfileFileBodyFile(t *testing.T) {
	dir := t.TempDir()
	bodyPath := filepath.Join(dir, "payload.json")
	if err := os.WriteFile(bodyPath, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	path := writeProfile(t, `
name: api
tasks:
  - name: upload
    weight: 1
    method: POST
    path: /upload
    body_file: `+bodyPath+`
`)

	profile, err := LoadProfileFile(path)
	if err != nil {
		t.Fatalf("LoadProfileFile returned error: %v", err)
	}
	spec, err := profile.Tasks[0].Build(nil)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if string(spec.Body) != `{"from":"file"}` {
		t.Errorf("body = %q", spec.Body)
	}
}

func TestProfileFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"missing name",
			"tasks:\n  - name: a\n    weight: 1\n    path: /\n",
			"name is required",
		},
		{
			"missing path",
			"name: p\ntasks:\n  - name: a\n    weight: 1\n",
			"path is required",
		},
		{
			"body and body_file",
			"name: p\ntasks:\n  - name: a\n    weight: 1\n    path: /\n    body: x\n    body_file: y\n",
			"mutually exclusive",
		},
		{
			"unknown verdict",
			"name: p\ntasks:\n  - name: a\n    weight: 1\n    path: /\n    statuses:\n      503: retry\n",
			`unknown verdict "retry"`,
		},
		{
			"no tasks",
			"name: p\n",
			"has no tasks",
		},
		{
			"zero weight",
			"name: p\ntasks:\n  - name: a\n    weight: 0\n    path: /\n",
			"weight",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProfile(t, tt.yaml)
			_, err := LoadProfileFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadProfileFileMissing(t *testing.T) {
	if _, err := LoadProfileFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
