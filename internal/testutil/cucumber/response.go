package cucumber

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^I GET path "([^"]*)"$`, s.iGetPath)
		ctx.Step(`^I wait up to "([^"]*)" seconds for a GET on path "([^"]*)" response code to match "(\d+)"$`, s.iWaitForResponseCode)
		ctx.Step(`^the response code should be (\d+)$`, s.theResponseCodeShouldBe)
		ctx.Step(`^the response should contain "([^"]*)"$`, s.theResponseShouldContain)
		ctx.Step(`^the response should contain json:$`, s.theResponseShouldContainJSON)
		ctx.Step(`^the "([^"]*)" selection from the response should match "([^"]*)"$`, s.theSelectionShouldMatch)
		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^}]*)}$`, s.iStoreTheSelection)
	})
}

func (s *TestScenario) get(path string) error {
	path, err := s.Expand(path)
	if err != nil {
		return err
	}
	resp, err := http.Get(strings.TrimSuffix(s.Suite.APIURL, "/") + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	s.SetResponse(resp.StatusCode, body)
	return nil
}

func (s *TestScenario) iGetPath(path string) error {
	return s.get(path)
}

func (s *TestScenario) iWaitForResponseCode(seconds, path string, code int) error {
	timeout, err := time.ParseDuration(seconds + "s")
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		err := s.get(path)
		if err == nil && s.StatusCode == code {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return err
			}
			return fmt.Errorf("expected response code %d from %s, last was %d: %s", code, path, s.StatusCode, s.RespBytes)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *TestScenario) theResponseCodeShouldBe(expected int) error {
	if s.StatusCode != expected {
		return fmt.Errorf("expected response code %d, got %d: %s", expected, s.StatusCode, s.RespBytes)
	}
	return nil
}

func (s *TestScenario) theResponseShouldContain(text string) error {
	text, err := s.Expand(text)
	if err != nil {
		return err
	}
	if !strings.Contains(string(s.RespBytes), text) {
		return fmt.Errorf("response does not contain %q:\n%s", text, s.RespBytes)
	}
	return nil
}

func (s *TestScenario) theResponseShouldContainJSON(doc *godog.DocString) error {
	return s.JSONMustContain(string(s.RespBytes), doc.Content)
}

func (s *TestScenario) theSelectionShouldMatch(selector, expected string) error {
	j, err := s.RespJSON()
	if err != nil {
		return err
	}
	value, err := Select(j, selector)
	if err != nil {
		return err
	}
	actual, err := ToString(value)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("selection %s: expected %q, got %q", selector, expected, actual)
	}
	return nil
}

func (s *TestScenario) iStoreTheSelection(selector, name string) error {
	j, err := s.RespJSON()
	if err != nil {
		return err
	}
	value, err := Select(j, selector)
	if err != nil {
		return err
	}
	s.Variables[name] = value
	return nil
}
