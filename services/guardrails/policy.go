// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardrails

import (
	"crypto/sha256"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/guardrails/enforcement"
	"gopkg.in/yaml.v3"
)

// Names of the checks a policy may reference in pre_checks / input_checks.
const (
	CheckLength          = "length"
	CheckRateLimit       = "rate_limit"
	CheckPersonalInfo    = "personal_info"
	CheckHarmfulContent  = "harmful_content"
	CheckBlockedTopic    = "blocked_topic"
	CheckPromptInjection = "prompt_injection"
	CheckQuestionFormat  = "question_format"
)

var knownChecks = map[string]bool{
	CheckLength:          true,
	CheckRateLimit:       true,
	CheckPersonalInfo:    true,
	CheckHarmfulContent:  true,
	CheckBlockedTopic:    true,
	CheckPromptInjection: true,
	CheckQuestionFormat:  true,
}

// ConfidenceLevel grades how reliable a personal-data pattern is.
type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

// UnmarshalYAML rejects confidence values other than low, medium and high.
func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(strings.ToLower(s))
	switch incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for confidence: %q", s)
	}
}

// Policy is the declarative rule set behind PolicyGuard and ResponseGuard.
type Policy struct {
	Version        string            `yaml:"version"`
	Limits         Limits            `yaml:"limits"`
	PreChecks      []string          `yaml:"pre_checks"`
	InputChecks    []string          `yaml:"input_checks"`
	Messages       Messages          `yaml:"messages"`
	PersonalInfo   []PIIPattern      `yaml:"personal_info"`
	HarmfulContent []KeywordCategory `yaml:"harmful_content"`
	BlockedTopics  []KeywordCategory `yaml:"blocked_topics"`
	Injection      []string          `yaml:"prompt_injection"`
	Format         FormatRules       `yaml:"format"`
	Response       ResponseRules     `yaml:"response"`

	fingerprint string
}

// Limits are the length bounds for inputs and generated responses.
type Limits struct {
	MinInputLength    int `yaml:"min_input_length"`
	MaxInputLength    int `yaml:"max_input_length"`
	MinResponseLength int `yaml:"min_response_length"`
}

// Messages are the user-facing texts. {max}, {type} and {topic} are
// substituted where the gate provides them.
type Messages struct {
	TooShort             string `yaml:"too_short"`
	TooLong              string `yaml:"too_long"`
	RateLimited          string `yaml:"rate_limited"`
	PersonalInfo         string `yaml:"personal_info"`
	HarmfulDefault       string `yaml:"harmful_default"`
	BlockedTopic         string `yaml:"blocked_topic"`
	PromptInjection      string `yaml:"prompt_injection"`
	SpecialCharacters    string `yaml:"special_characters"`
	RepeatedCharacters   string `yaml:"repeated_characters"`
	ResponsePersonalInfo string `yaml:"response_personal_info"`
	ResponseTooShort     string `yaml:"response_too_short"`
	SafeResponse         string `yaml:"safe_response"`
}

// PIIPattern describes one personal-data form. Patterns are evaluated from
// highest to lowest priority.
type PIIPattern struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Priority   int             `yaml:"priority"`
	Regex      string          `yaml:"regex"`
	Mask       string          `yaml:"mask"`
	Confidence ConfidenceLevel `yaml:"confidence"`

	compiled *regexp.Regexp
}

// KeywordCategory groups phrases under a named category. Message overrides
// the check's default message when set.
type KeywordCategory struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Message  string   `yaml:"message"`
}

// FormatRules drive the gibberish and spam heuristics.
type FormatRules struct {
	MaxSpecialRatio float64 `yaml:"max_special_ratio"`
	MaxRepeatRun    int     `yaml:"max_repeat_run"`
}

// ResponseRules drive the advisory ResponseGuard checks.
type ResponseRules struct {
	Quality QualityRules `yaml:"quality"`
	Tone    ToneRules    `yaml:"tone"`
}

type QualityRules struct {
	MinLength          int      `yaml:"min_length"`
	RestateMaxLength   int      `yaml:"restate_max_length"`
	UnhelpfulMaxLength int      `yaml:"unhelpful_max_length"`
	UnhelpfulPhrases   []string `yaml:"unhelpful_phrases"`
}

type ToneRules struct {
	UnprofessionalWords []string `yaml:"unprofessional_words"`
}

// DefaultPolicy parses the policy embedded in the binary.
func DefaultPolicy() (*Policy, error) {
	p, err := LoadPolicy(enforcement.GuardPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to load the embedded guard policy: %w", err)
	}
	return p, nil
}

// LoadPolicyFile reads and parses a policy from disk.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read guard policy %s: %w", path, err)
	}
	return LoadPolicy(data)
}

// LoadPolicy parses YAML, compiles the personal-data patterns, sorts them by
// priority and validates the rule set.
func LoadPolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the guard policy: %w", err)
	}
	if err := p.CompileRegexes(); err != nil {
		return nil, err
	}
	p.SortByPriority()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.fingerprint = fmt.Sprintf("sha256:%x", sha256.Sum256(data))
	return &p, nil
}

// CompileRegexes compiles every personal-data pattern case-insensitively.
func (p *Policy) CompileRegexes() error {
	for i := range p.PersonalInfo {
		pattern := &p.PersonalInfo[i]
		re, err := regexp.Compile("(?i)" + pattern.Regex)
		if err != nil {
			return fmt.Errorf("failed to compile the regex %s for %s: %w", pattern.Regex, pattern.ID, err)
		}
		pattern.compiled = re
	}
	return nil
}

// SortByPriority orders personal-data patterns from highest to lowest
// priority, keeping file order for equal priorities.
func (p *Policy) SortByPriority() {
	sort.SliceStable(p.PersonalInfo, func(i, j int) bool {
		return p.PersonalInfo[i].Priority > p.PersonalInfo[j].Priority
	})
}

// Validate checks internal consistency of a parsed policy.
func (p *Policy) Validate() error {
	for _, name := range append(append([]string{}, p.PreChecks...), p.InputChecks...) {
		if !knownChecks[name] {
			return fmt.Errorf("unknown check %q in guard policy", name)
		}
	}
	if p.Limits.MinInputLength < 0 || p.Limits.MaxInputLength <= 0 {
		return fmt.Errorf("input length limits must be positive, got min=%d max=%d",
			p.Limits.MinInputLength, p.Limits.MaxInputLength)
	}
	if p.Limits.MinInputLength > p.Limits.MaxInputLength {
		return fmt.Errorf("min_input_length %d exceeds max_input_length %d",
			p.Limits.MinInputLength, p.Limits.MaxInputLength)
	}
	if p.Format.MaxSpecialRatio <= 0 || p.Format.MaxSpecialRatio > 1 {
		return fmt.Errorf("max_special_ratio must be in (0, 1], got %v", p.Format.MaxSpecialRatio)
	}
	if p.Format.MaxRepeatRun < 2 {
		return fmt.Errorf("max_repeat_run must be at least 2, got %d", p.Format.MaxRepeatRun)
	}
	seen := make(map[string]bool, len(p.PersonalInfo))
	for _, pattern := range p.PersonalInfo {
		if pattern.ID == "" || pattern.Name == "" {
			return fmt.Errorf("personal_info pattern %q needs both id and name", pattern.Regex)
		}
		if seen[pattern.ID] {
			return fmt.Errorf("duplicate personal_info pattern id %q", pattern.ID)
		}
		seen[pattern.ID] = true
	}
	for _, group := range [][]KeywordCategory{p.HarmfulContent, p.BlockedTopics} {
		for _, cat := range group {
			if cat.Name == "" || len(cat.Keywords) == 0 {
				return fmt.Errorf("keyword category %q must have a name and keywords", cat.Name)
			}
		}
	}
	return nil
}

// Fingerprint is the SHA-256 of the source document.
func (p *Policy) Fingerprint() string {
	return p.fingerprint
}

// render substitutes {placeholders} in a message template.
func render(template string, pairs ...string) string {
	if len(pairs) == 0 {
		return template
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
