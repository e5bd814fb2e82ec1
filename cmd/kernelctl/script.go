package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

// runScript describes a scripted run. JSON scripts parse as YAML too.
type runScript struct {
	Objective string            `yaml:"objective"`
	AgentID   string            `yaml:"agent_id"`
	Output    string            `yaml:"output"`
	Budget    *contracts.Budget `yaml:"budget"`
	Steps     []scriptStep      `yaml:"steps"`
}

// scriptStep is one gated action. Every field besides action and scope is
// optional; the events recorded follow whichever are present.
type scriptStep struct {
	Action    string          `yaml:"action"`
	Scope     string          `yaml:"scope"`
	Approve   *bool           `yaml:"approve"`
	Tool      string          `yaml:"tool"`
	Arguments map[string]any  `yaml:"arguments"`
	Result    any             `yaml:"result"`
	IsError   bool            `yaml:"is_error"`
	Usage     *scriptUsage    `yaml:"usage"`
	Artifact  *scriptArtifact `yaml:"artifact"`
}

type scriptUsage struct {
	Model           string `yaml:"model"`
	InputTokens     int64  `yaml:"input_tokens"`
	OutputTokens    int64  `yaml:"output_tokens"`
	ReasoningTokens int64  `yaml:"reasoning_tokens"`
	CachedTokens    int64  `yaml:"cached_input_tokens"`
}

func (u scriptUsage) tokens() contracts.TokenUsage {
	return contracts.TokenUsage{
		InputTokens:       u.InputTokens,
		OutputTokens:      u.OutputTokens,
		ReasoningTokens:   u.ReasoningTokens,
		CachedInputTokens: u.CachedTokens,
	}
}

type scriptArtifact struct {
	Content string `yaml:"content"`
	File    string `yaml:"file"`
	Mime    string `yaml:"mime"`
}

func (sa scriptArtifact) bytes() ([]byte, error) {
	if sa.File != "" {
		data, err := os.ReadFile(sa.File)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", sa.File, err)
		}
		return data, nil
	}
	return []byte(sa.Content), nil
}

func loadScript(path string) (runScript, error) {
	var sc runScript
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, fmt.Errorf("read script: %w", err)
	}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("parse script %s: %w", path, err)
	}
	for i, st := range sc.Steps {
		if st.Action == "" || st.Scope == "" {
			return sc, fmt.Errorf("parse script %s: step %d needs action and scope", path, i)
		}
	}
	return sc, nil
}

// rawJSON encodes a YAML-decoded value for an event payload. nil stays nil.
func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
