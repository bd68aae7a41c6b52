package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"gopkg.in/yaml.v3"
)

// Defaults for the numeric policy knobs.
const (
	DefaultClassificationThreshold = 0.5
	DefaultTopK                    = 5
	DefaultRelevanceFloor          = 0.2
	DefaultCandidateMultiplier     = 2
	DefaultCallTimeout             = 10 * time.Second
	DefaultPassageTokenBudget      = 400
	DefaultMaxConcurrency          = 16
)

// Category names as they appear in policy files.
const (
	CategoryEmergency  = "EMERGENCY"
	CategoryProcedural = "PROCEDURAL"
	CategoryOutOfScope = "OUT_OF_DOMAIN"
)

// SlotRule describes one slot of a category. The order of rules in a category
// is the canonical slot order used for tie-breaks and query expansion.
type SlotRule struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
	Required bool   `yaml:"required"`
	Expand   bool   `yaml:"expand"`
}

// CategoryPolicy lists the slots a category cares about.
type CategoryPolicy struct {
	Slots []SlotRule `yaml:"slots"`
}

// Messages are the fixed texts the planner emits.
type Messages struct {
	Redirect           string `yaml:"redirect"`
	EmergencyDirective string `yaml:"emergency_directive"`
	DescribeFurther    string `yaml:"describe_further"`
	Disclaimer         string `yaml:"disclaimer"`
}

// LexiconRule maps utterance patterns to a slot value.
type LexiconRule struct {
	Slot       string   `yaml:"slot"`
	Value      string   `yaml:"value"`
	Patterns   []string `yaml:"patterns"`
	Confidence float64  `yaml:"confidence"`
}

// Lexicon drives the deterministic classifier backend.
type Lexicon struct {
	Categories map[string][]string `yaml:"categories"`
	Slots      []LexiconRule       `yaml:"slots"`
}

// RiskRule raises a red or yellow flag when a slot holds one of Values.
type RiskRule struct {
	Slot   string   `yaml:"slot"`
	Values []string `yaml:"values"`
	Level  string   `yaml:"level"`
	Label  string   `yaml:"label"`
}

// Policy is the dialogue policy shared by the classifier, retriever, planner
// and generator.
type Policy struct {
	ClassificationThreshold float64                   `yaml:"classification_threshold"`
	TopK                    int                       `yaml:"top_k"`
	RelevanceFloor          float64                   `yaml:"relevance_floor"`
	CandidateMultiplier     int                       `yaml:"candidate_multiplier"`
	CallTimeout             time.Duration             `yaml:"call_timeout"`
	PassageTokenBudget      int                       `yaml:"passage_token_budget"`
	MaxConcurrency          int                       `yaml:"max_concurrency"`
	LifeThreatening         map[string][]string       `yaml:"life_threatening"`
	Categories              map[string]CategoryPolicy `yaml:"categories"`
	Questions               map[string]string         `yaml:"questions"`
	Messages                Messages                  `yaml:"messages"`
	Lexicon                 Lexicon                   `yaml:"lexicon"`
	Risk                    []RiskRule                `yaml:"risk"`
}

// DefaultPolicy returns a policy with the numeric defaults set and every
// domain list empty. Domain lists have no built-in values.
func DefaultPolicy() *Policy {
	return &Policy{
		ClassificationThreshold: DefaultClassificationThreshold,
		TopK:                    DefaultTopK,
		RelevanceFloor:          DefaultRelevanceFloor,
		CandidateMultiplier:     DefaultCandidateMultiplier,
		CallTimeout:             DefaultCallTimeout,
		PassageTokenBudget:      DefaultPassageTokenBudget,
		MaxConcurrency:          DefaultMaxConcurrency,
	}
}

// LoadPolicy decodes the given YAML files in order on top of DefaultPolicy.
// Later files override keys set by earlier ones. The result is validated.
func LoadPolicy(paths ...string) (*Policy, error) {
	if len(paths) == 0 {
		return nil, errorskg.NewConfigurationError("policy", "no policy file given")
	}
	p := DefaultPolicy()
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errorskg.NewConfigurationError("policy", fmt.Sprintf("read %s: %v", path, err))
		}
		if err := decodeYAMLStrict(raw, p); err != nil {
			return nil, errorskg.NewConfigurationError("policy", fmt.Sprintf("decode %s: %v", path, err))
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPolicyGlob expands a doublestar pattern such as "policies/**/*.yaml"
// and loads the matches in lexical order.
func LoadPolicyGlob(pattern string) (*Policy, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, errorskg.NewConfigurationError("policy_glob", err.Error())
	}
	if len(matches) == 0 {
		return nil, errorskg.NewConfigurationError("policy_glob", fmt.Sprintf("no files match %q", pattern))
	}
	sort.Strings(matches)
	return LoadPolicy(matches...)
}

func decodeYAMLStrict(b []byte, p *Policy) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

// Validate checks every option the dialogue core depends on. Missing domain
// lists are configuration errors, not silently defaulted.
func (p *Policy) Validate() error {
	v := NewValidator()
	v.ValidateFloatRange("classification_threshold", p.ClassificationThreshold, 0, 1)
	v.RequirePositive("top_k", p.TopK)
	v.ValidateFloatRange("relevance_floor", p.RelevanceFloor, 0, 1)
	v.RequirePositive("candidate_multiplier", p.CandidateMultiplier)
	v.Check(p.CallTimeout > 0, "call_timeout", "value must be positive")
	v.RequirePositive("passage_token_budget", p.PassageTokenBudget)
	v.RequirePositive("max_concurrency", p.MaxConcurrency)

	v.RequireNonEmptyList("life_threatening", len(p.LifeThreatening))
	for slot, values := range p.LifeThreatening {
		v.RequireNonEmptyList("life_threatening."+slot, len(values))
	}

	for _, name := range []string{CategoryEmergency, CategoryProcedural} {
		field := "categories." + name
		cat, ok := p.Categories[name]
		if !ok {
			v.Check(false, field, "category is required")
			continue
		}
		required := 0
		seen := make(map[string]struct{}, len(cat.Slots))
		for i, rule := range cat.Slots {
			ruleField := fmt.Sprintf("%s.slots[%d]", field, i)
			v.RequireNonEmpty(ruleField+".name", rule.Name)
			v.Check(rule.Priority >= 1, ruleField+".priority", "priority must be >= 1")
			if _, dup := seen[rule.Name]; dup {
				v.Check(false, ruleField+".name", fmt.Sprintf("duplicate slot %q", rule.Name))
			}
			seen[rule.Name] = struct{}{}
			if rule.Required {
				required++
				v.RequireNonEmpty("questions."+rule.Name, p.Questions[rule.Name])
			}
		}
		v.Check(required > 0, field, "at least one required slot is needed")
	}
	for name := range p.Categories {
		v.ValidateOneOf("categories", name, CategoryEmergency, CategoryProcedural)
	}

	v.RequireNonEmpty("messages.redirect", p.Messages.Redirect)
	v.RequireNonEmpty("messages.emergency_directive", p.Messages.EmergencyDirective)
	v.RequireNonEmpty("messages.describe_further", p.Messages.DescribeFurther)
	v.RequireNonEmpty("messages.disclaimer", p.Messages.Disclaimer)
	v.Check(strings.Count(p.Messages.DescribeFurther, "?") == 1, "messages.describe_further", "must contain exactly one question")
	for slot, q := range p.Questions {
		v.Check(strings.Count(q, "?") == 1, "questions."+slot, "must contain exactly one question")
	}

	for cat := range p.Lexicon.Categories {
		v.ValidateOneOf("lexicon.categories", cat, CategoryEmergency, CategoryProcedural, CategoryOutOfScope)
	}
	for i, rule := range p.Lexicon.Slots {
		field := fmt.Sprintf("lexicon.slots[%d]", i)
		v.RequireNonEmpty(field+".slot", rule.Slot)
		v.RequireNonEmpty(field+".value", rule.Value)
		v.RequireNonEmptyList(field+".patterns", len(rule.Patterns))
		v.ValidateFloatRange(field+".confidence", rule.Confidence, 0, 1)
		for _, pat := range rule.Patterns {
			_, err := regexp.Compile("(?i)" + pat)
			v.Check(err == nil, field+".patterns", fmt.Sprintf("invalid pattern %q", pat))
		}
	}

	for i, rule := range p.Risk {
		field := fmt.Sprintf("risk[%d]", i)
		v.RequireNonEmpty(field+".slot", rule.Slot)
		v.RequireNonEmpty(field+".label", rule.Label)
		v.RequireNonEmptyList(field+".values", len(rule.Values))
		v.ValidateOneOf(field+".level", rule.Level, "red", "yellow")
	}
	return v.Error()
}

// Category returns the policy for name and whether it exists.
func (p *Policy) Category(name string) (CategoryPolicy, bool) {
	c, ok := p.Categories[name]
	return c, ok
}

// IsLifeThreatening reports whether slot=value is in the life-threatening set.
func (p *Policy) IsLifeThreatening(slot, value string) bool {
	for _, v := range p.LifeThreatening[slot] {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// SlotNames returns every slot name mentioned by the categories, sorted.
func (p *Policy) SlotNames() []string {
	seen := make(map[string]struct{})
	for _, cat := range p.Categories {
		for _, r := range cat.Slots {
			seen[r.Name] = struct{}{}
		}
	}
	for slot := range p.LifeThreatening {
		seen[slot] = struct{}{}
	}
	for _, r := range p.Lexicon.Slots {
		seen[r.Slot] = struct{}{}
	}
	for _, r := range p.Risk {
		seen[r.Slot] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
