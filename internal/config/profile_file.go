package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbaxter/stampede/internal/behavior"
)

// ProfileFile is the YAML descriptor for a behavior profile loaded from disk.
type ProfileFile struct {
	Name  string     `yaml:"name"`
	Wait  WaitSpec   `yaml:"wait"`
	Tasks []TaskSpec `yaml:"tasks"`
}

type WaitSpec struct {
	Min durationValue `yaml:"min"`
	Max durationValue `yaml:"max"`
}

// durationValue decodes Go duration strings ("1s", "250ms") as well as bare
// numbers of seconds.
type durationValue time.Duration

func (d *durationValue) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	dur, err := asDuration(raw)
	if err != nil {
		return err
	}
	*d = durationValue(dur)
	return nil
}

// TaskSpec describes one weighted request.
type TaskSpec struct {
	Name     string            `yaml:"name"`
	Weight   int               `yaml:"weight"`
	Method   string            `yaml:"method"`
	Path     string            `yaml:"path"`
	Headers  map[string]string `yaml:"headers"`
	Body     string            `yaml:"body"`
	BodyFile string            `yaml:"body_file"`
	Tags     []string          `yaml:"tags"`
	Timeout  durationValue     `yaml:"timeout"`
	Statuses map[int]string    `yaml:"statuses"` // status code to verdict overrides
	Check    string            `yaml:"check"`    // JSON path that must resolve in the response body
}

// LoadProfileFile reads a YAML profile descriptor and builds a runnable
// behavior profile from it.
func LoadProfileFile(path string) (behavior.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return behavior.Profile{}, fmt.Errorf("profile file: %w", err)
	}
	var pf ProfileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return behavior.Profile{}, fmt.Errorf("profile file %s: %w", path, err)
	}
	return pf.Build()
}

// Build converts the descriptor into a behavior profile, resolving body
// files and verdict overrides. The returned profile is validated.
func (pf ProfileFile) Build() (behavior.Profile, error) {
	name := strings.TrimSpace(pf.Name)
	if name == "" {
		return behavior.Profile{}, fmt.Errorf("profile: name is required")
	}

	profile := behavior.Profile{
		Name: name,
		Wait: behavior.WaitRange{Min: time.Duration(pf.Wait.Min), Max: time.Duration(pf.Wait.Max)},
	}

	for idx, ts := range pf.Tasks {
		task, err := ts.build()
		if err != nil {
			return behavior.Profile{}, fmt.Errorf("profile %s: tasks[%d]: %w", name, idx, err)
		}
		profile.Tasks = append(profile.Tasks, task)
	}

	if err := profile.Validate(); err != nil {
		return behavior.Profile{}, err
	}
	return profile, nil
}

func (ts TaskSpec) build() (behavior.Task, error) {
	name := strings.TrimSpace(ts.Name)
	if name == "" {
		return behavior.Task{}, fmt.Errorf("name is required")
	}

	method := strings.ToUpper(strings.TrimSpace(ts.Method))
	if method == "" {
		method = http.MethodGet
	}

	path := strings.TrimSpace(ts.Path)
	if path == "" {
		return behavior.Task{}, fmt.Errorf("path is required")
	}

	body := []byte(ts.Body)
	if strings.TrimSpace(ts.BodyFile) != "" {
		if strings.TrimSpace(ts.Body) != "" {
			return behavior.Task{}, fmt.Errorf("body and body_file are mutually exclusive")
		}
		data, err := os.ReadFile(strings.TrimSpace(ts.BodyFile))
		if err != nil {
			return behavior.Task{}, fmt.Errorf("body_file: %w", err)
		}
		body = data
	}

	headers := make(map[string]string, len(ts.Headers))
	for k, v := range ts.Headers {
		key := strings.TrimSpace(k)
		if key == "" {
			return behavior.Task{}, fmt.Errorf("headers: key cannot be empty")
		}
		headers[http.CanonicalHeaderKey(key)] = v
	}

	policy := behavior.Policy{}
	for code, label := range ts.Statuses {
		verdict, err := parseVerdict(label)
		if err != nil {
			return behavior.Task{}, fmt.Errorf("statuses[%d]: %w", code, err)
		}
		policy = policy.WithStatus(code, verdict)
	}

	var check *behavior.ResponseCheck
	if c := strings.TrimSpace(ts.Check); c != "" {
		check = &behavior.ResponseCheck{JSONPath: c}
	}

	spec := behavior.RequestSpec{
		Method:  method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}
	return behavior.Task{
		Name:    name,
		Weight:  ts.Weight,
		Tags:    append([]string(nil), ts.Tags...),
		Timeout: time.Duration(ts.Timeout),
		Policy:  policy,
		Check:   check,
		Build: func(*behavior.Session) (behavior.RequestSpec, error) {
			return spec, nil
		},
	}, nil
}

func parseVerdict(label string) (behavior.Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "success":
		return behavior.VerdictSuccess, nil
	case "expected_failure", "expected-failure", "expectedfailure":
		return behavior.VerdictExpectedFailure, nil
	case "failure":
		return behavior.VerdictFailure, nil
	default:
		return 0, fmt.Errorf("unknown verdict %q", label)
	}
}
