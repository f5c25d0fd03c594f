// Package config loads, merges, and validates the engine's built-in and
// user-supplied agent/threshold configuration.
package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/revisoria/poe-engine/pkg/model"
)

// Load reads poe.yaml from path, expands environment variable references
// ({{.VAR}} template references, see ExpandEnv), merges it
// over the compiled-in defaults, validates the result, and resolves it into
// a Config the rest of the core is constructed with.
//
// A missing file is not an error: the built-ins alone are a valid config.
func Load(path string) (*Config, error) {
	doc := Document{
		Agents:     cloneBuiltinAgents(),
		Thresholds: builtinThresholds,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return resolve(doc)
			}
			return nil, NewLoadError(path, err)
		}

		expanded := ExpandEnv(raw)

		var userDoc Document
		if err := yaml.Unmarshal(expanded, &userDoc); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}

		if err := mergo.Merge(&doc.Agents, userDoc.Agents, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, err)
		}
		if err := mergo.Merge(&doc.Thresholds, userDoc.Thresholds, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, err)
		}
	}

	return resolve(doc)
}

func cloneBuiltinAgents() map[string]AgentYAML {
	out := make(map[string]AgentYAML, len(builtinAgents))
	for k, v := range builtinAgents {
		out[k] = v
	}
	return out
}

func resolve(doc Document) (*Config, error) {
	agents := make(map[string]model.AgentConfig, len(doc.Agents))
	for id, a := range doc.Agents {
		cfg, err := resolveAgent(id, a)
		if err != nil {
			return nil, err
		}
		agents[id] = cfg
	}

	if err := validate(agents, doc.Thresholds); err != nil {
		return nil, err
	}

	return &Config{
		Agents:     agents,
		Thresholds: doc.Thresholds.Resolve(),
	}, nil
}

func resolveAgent(id string, a AgentYAML) (model.AgentConfig, error) {
	phases := make(map[model.Phase]bool, len(a.ParticipatingPhases))
	for _, p := range a.ParticipatingPhases {
		phase := model.Phase(p)
		if !phase.Valid() {
			return model.AgentConfig{}, NewValidationError("agent", id, "participating_phases", fmt.Errorf("%w: %q is not a canonical phase", ErrInvalidValue, p))
		}
		phases[phase] = true
	}

	var approval model.CriticalApproval
	switch a.IssuesCriticalApproval {
	case "", string(model.CriticalApprovalFiscal), string(model.CriticalApprovalLegal):
		approval = model.CriticalApproval(a.IssuesCriticalApproval)
	default:
		return model.AgentConfig{}, NewValidationError("agent", id, "issues_critical_approval", fmt.Errorf("%w: %q", ErrInvalidValue, a.IssuesCriticalApproval))
	}

	return model.AgentConfig{
		AgentID:                id,
		ParticipatingPhases:    phases,
		CanBlock:               a.CanBlock,
		IssuesCriticalApproval: approval,
		OutputSchemaID:         a.OutputSchemaID,
		RequiredContextFields: model.ContextFields{
			Mandatory: a.MandatoryContextFields,
			Desirable: a.DesirableContextFields,
		},
		Ordered: a.Ordered,
	}, nil
}
