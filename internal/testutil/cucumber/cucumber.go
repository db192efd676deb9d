// Package cucumber provides a small godog-based BDD framework.
//
// Variables are scoped to the scenario. Every step that produces output (an
// HTTP call, a CLI command) stores it as the scenario response, which later
// steps inspect.
//
// Variable resolution supports:
//   - ${variableName}        → scenario variable lookup
//   - ${response}            → full response body parsed as JSON
//   - ${response.field}      → response field via gojq
//   - ${variable | pipe}     → pipe transformations (json, string)
package cucumber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
	"github.com/itchyny/gojq"
	"github.com/pmezard/go-difflib/difflib"
)

// TestSuite holds state global to all scenarios of one godog run.
type TestSuite struct {
	// APIURL is the base URL HTTP steps resolve paths against.
	APIURL   string
	TestingT *testing.T
	// Context carries suite-wide values, usually the service *config.Config.
	Context interface{}
	Extra   map[string]interface{}
}

func NewTestSuite() *TestSuite {
	return &TestSuite{Extra: map[string]interface{}{}}
}

func DefaultOptions() godog.Options {
	return godog.Options{
		Output:      colors.Colored(os.Stdout),
		Format:      "progress",
		Paths:       []string{"features"},
		Randomize:   time.Now().UTC().UnixNano(),
		Concurrency: 1,
	}
}

// ApplyReportOptions configures junit XML output when GODOG_REPORT_DIR is set.
// The returned cleanup must run after the suite.
func ApplyReportOptions(opts *godog.Options, testName string) func() {
	reportDir := os.Getenv("GODOG_REPORT_DIR")
	if reportDir == "" {
		return func() {}
	}
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return func() {}
	}
	path := filepath.Join(reportDir, strings.ReplaceAll(testName, "/", "-")+".xml")
	f, err := os.Create(path)
	if err != nil {
		return func() {}
	}
	opts.Format = "junit"
	opts.Output = f
	return func() { _ = f.Close() }
}

// TestScenario holds state for a single scenario.
type TestScenario struct {
	Suite     *TestSuite
	Variables map[string]interface{}
	// Context is passed to the code under test by domain steps.
	Context context.Context

	StatusCode int
	RespBytes  []byte
	respJSON   interface{}
}

func (s *TestScenario) Logf(format string, args ...any) {
	if s.Suite.TestingT != nil {
		s.Suite.TestingT.Logf(format, args...)
	}
}

// SetResponse replaces the scenario response.
func (s *TestScenario) SetResponse(status int, body []byte) {
	s.StatusCode = status
	s.RespBytes = body
	s.respJSON = nil
}

// RespJSON returns the last response body as parsed JSON.
func (s *TestScenario) RespJSON() (interface{}, error) {
	if s.respJSON == nil {
		if s.RespBytes == nil {
			return nil, fmt.Errorf("no response body")
		}
		if err := json.Unmarshal(s.RespBytes, &s.respJSON); err != nil {
			return nil, fmt.Errorf("error parsing response json: %w\njson was:\n%s", err, s.RespBytes)
		}
	}
	return s.respJSON, nil
}

// Expand replaces ${var} in value based on scenario variables.
func (s *TestScenario) Expand(value string) (result string, rerr error) {
	return os.Expand(value, func(name string) string {
		res, err := s.ResolveString(name)
		if err != nil {
			rerr = err
			return ""
		}
		return res
	}), rerr
}

func (s *TestScenario) ResolveString(name string) (string, error) {
	value, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	return ToString(value)
}

func ToString(value interface{}) (string, error) {
	switch value := value.(type) {
	case string:
		return value, nil
	case bool:
		if value {
			return "true", nil
		}
		return "false", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", value), nil
	case float32, float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", value), "0"), "."), nil
	case nil:
		return "", nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Resolve evaluates name against the response or the scenario variables.
func (s *TestScenario) Resolve(name string) (interface{}, error) {
	pipes := strings.Split(name, "|")
	for i := range pipes {
		pipes[i] = strings.TrimSpace(pipes[i])
	}
	name, pipes = pipes[0], pipes[1:]

	root := map[string]interface{}{}
	for k, v := range s.Variables {
		root[k] = v
	}
	fields := strings.FieldsFunc(name, func(r rune) bool { return r == '.' || r == '[' })
	if len(fields) == 0 {
		return pipeline(pipes, nil, fmt.Errorf("empty variable reference"))
	}
	head := fields[0]
	if head == "response" {
		j, err := s.RespJSON()
		if err != nil {
			return pipeline(pipes, nil, err)
		}
		root["response"] = j
	} else if _, ok := s.Variables[head]; !ok {
		return pipeline(pipes, nil, fmt.Errorf("variable ${%s} not defined yet", head))
	}
	value, err := Select(root, "."+name)
	return pipeline(pipes, value, err)
}

// Select runs a gojq selector against value and returns the first result.
func Select(value interface{}, selector string) (interface{}, error) {
	query, err := gojq.Parse(selector)
	if err != nil {
		return nil, err
	}
	// gojq only understands plain JSON values.
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var plain interface{}
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil, err
	}
	iter := query.Run(plain)
	next, found := iter.Next()
	if !found {
		return nil, fmt.Errorf("selector %s matched nothing", selector)
	}
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next, nil
}

func pipeline(pipes []string, value any, err error) (any, error) {
	for _, pipe := range pipes {
		fn := PipeFunctions[pipe]
		if fn == nil {
			return nil, fmt.Errorf("unknown pipe: %s", pipe)
		}
		value, err = fn(value, err)
	}
	return value, err
}

var PipeFunctions = map[string]func(any, error) (any, error){
	"json": func(value any, err error) (any, error) {
		if err != nil {
			return value, err
		}
		b, err := json.Marshal(value)
		return string(b), err
	},
	"string": func(value any, err error) (any, error) {
		if err != nil {
			return value, err
		}
		return ToString(value)
	},
}

// JSONMustContain checks that every field in expected exists in actual with a
// matching value.
func (s *TestScenario) JSONMustContain(actual, expected string) error {
	expected, err := s.Expand(expected)
	if err != nil {
		return err
	}
	var actualParsed, expectedParsed interface{}
	if err := json.Unmarshal([]byte(actual), &actualParsed); err != nil {
		return fmt.Errorf("error parsing actual json: %w\njson was:\n%s", err, actual)
	}
	if err := json.Unmarshal([]byte(expected), &expectedParsed); err != nil {
		return fmt.Errorf("error parsing expected json: %w\njson was:\n%s", err, expected)
	}
	if err := jsonSubset(expectedParsed, actualParsed, ""); err != nil {
		return fmt.Errorf("actual does not contain expected.\n  mismatch: %s\n%s", err, diff(expectedParsed, actualParsed))
	}
	return nil
}

func diff(expected, actual interface{}) string {
	e, _ := json.MarshalIndent(expected, "", "  ")
	a, _ := json.MarshalIndent(actual, "", "  ")
	out, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(e)),
		B:        difflib.SplitLines(string(a)),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	return out
}

// jsonSubset compares objects by expected keys only; arrays must have the same
// length and primitives must be equal.
func jsonSubset(expected, actual interface{}, path string) error {
	if expected == nil {
		if actual != nil {
			return fmt.Errorf("at %s: expected null, got %v", pathOrRoot(path), actual)
		}
		return nil
	}

	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return fmt.Errorf("at %s: expected object, got %T", pathOrRoot(path), actual)
		}
		for key, expVal := range exp {
			actVal, exists := act[key]
			if !exists {
				return fmt.Errorf("at %s: missing key %q", pathOrRoot(path), key)
			}
			if err := jsonSubset(expVal, actVal, path+"."+key); err != nil {
				return err
			}
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return fmt.Errorf("at %s: expected array, got %T", pathOrRoot(path), actual)
		}
		if len(exp) != len(act) {
			return fmt.Errorf("at %s: expected array length %d, got %d", pathOrRoot(path), len(exp), len(act))
		}
		for i := range exp {
			if err := jsonSubset(exp[i], act[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	default:
		if !reflect.DeepEqual(expected, actual) {
			return fmt.Errorf("at %s: expected %v (%T), got %v (%T)", pathOrRoot(path), expected, expected, actual, actual)
		}
	}
	return nil
}

func pathOrRoot(path string) string {
	if path == "" {
		return "$"
	}
	return "$" + path
}

// StepModules is the list of functions used to register steps with a godog.ScenarioContext.
var StepModules []func(ctx *godog.ScenarioContext, s *TestScenario)

func (suite *TestSuite) InitializeScenario(ctx *godog.ScenarioContext) {
	s := &TestScenario{
		Suite:     suite,
		Variables: map[string]interface{}{},
		Context:   context.Background(),
	}
	for _, module := range StepModules {
		module(ctx, s)
	}
}
