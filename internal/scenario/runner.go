package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crypdick/pynchy-gate/internal/config"
	"github.com/crypdick/pynchy-gate/internal/gate"
	"github.com/crypdick/pynchy-gate/internal/model"
	"github.com/crypdick/pynchy-gate/internal/policy"
	"github.com/crypdick/pynchy-gate/internal/taint"
)

const sessionID = "scenario"

// Run evaluates every step of s in one fresh session. No reviewer or human
// is involved: the expected value is the gate decision itself.
func Run(s *Scenario, snap *policy.Snapshot) *RunResult {
	ws := s.Workspace
	if ws == "" {
		ws = "scenario"
	}
	tracker := taint.NewTracker(snap.Registry, snap.SecretWorkspaces)

	result := &RunResult{Name: s.Name, Total: len(s.Steps)}
	for i, step := range s.Steps {
		op := model.ParseOperation(step.Operation)
		t := tracker.Start(sessionID, ws)

		var v gate.Verdict
		if step.Command != "" || strings.EqualFold(step.Capability, snap.ShellCapability) {
			capability := step.Capability
			if capability == "" {
				capability = snap.ShellCapability
			}
			shell, _ := snap.Registry.Lookup(capability)
			v = gate.DecideCommand(capability, shell, snap.Classifier.Classify(step.Command).Class, t)
		} else {
			d := snap.Registry.Resolve(step.Capability)
			v = gate.Decide(step.Capability, d, t, op)
			if op == model.Read && v.Decision == model.Allow {
				t = tracker.RecordDeclaredRead(sessionID, ws, d)
			}
		}

		sr := StepResult{
			Index:      i + 1,
			Capability: step.Capability,
			Operation:  string(op),
			Command:    step.Command,
			Expected:   strings.ToLower(strings.TrimSpace(step.Expect)),
			Actual:     string(v.Decision),
			Reason:     v.Reason,
			Corruption: t.CorruptionTainted,
			Secret:     t.SecretTainted,
		}
		sr.Passed = sr.Actual == sr.Expected
		if step.Taint != nil && (step.Taint.Corruption != t.CorruptionTainted || step.Taint.Secret != t.SecretTainted) {
			sr.Passed = false
			sr.Reason = fmt.Sprintf("taint (corruption=%t secret=%t), expected (corruption=%t secret=%t)",
				t.CorruptionTainted, t.SecretTainted, step.Taint.Corruption, step.Taint.Secret)
		}

		if sr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Steps = append(result.Steps, sr)
	}
	return result
}

// Load parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &s, nil
}

// LoadAndRun loads a scenario and runs it. The scenario's own config, when
// set, takes precedence over configPath.
func LoadAndRun(path, configPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	if s.Config != "" {
		configPath = s.Config
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(filepath.Dir(path), configPath)
		}
	}

	cfg, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	result := Run(s, policy.NewSnapshot(cfg, hash))
	result.File = path
	return result, nil
}

// LoadAndRunGlob runs every scenario matching pattern, in name order.
func LoadAndRunGlob(pattern, configPath string) ([]*RunResult, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad scenario pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files match %q", pattern)
	}
	results := make([]*RunResult, 0, len(paths))
	for _, p := range paths {
		r, err := LoadAndRun(p, configPath)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}
