// Package risk scores the accumulated slots of a conversation with the red
// and yellow flag rules from the policy.
package risk

import (
	"sort"
	"strings"

	"github.com/sweetpotato0/crashguide/config"
)

// Bucket is the coarse risk band.
type Bucket string

const (
	Green  Bucket = "GREEN"
	Yellow Bucket = "YELLOW"
	Red    Bucket = "RED"
)

const (
	levelRed    = "red"
	levelYellow = "yellow"

	maxFollowUps = 2
	unknownValue = "unknown"
)

// Assessment is attached to agent turns as metadata. It never drives the
// dialogue.
type Assessment struct {
	Red       []string `json:"red,omitempty" bson:"red,omitempty"`
	Yellow    []string `json:"yellow,omitempty" bson:"yellow,omitempty"`
	Score     int      `json:"score" bson:"score"`
	Bucket    Bucket   `json:"bucket" bson:"bucket"`
	FollowUps []string `json:"follow_ups,omitempty" bson:"follow_ups,omitempty"`
}

// Assess matches slot values against rules. values maps slot name to value,
// including slots recorded as unknown.
func Assess(values map[string]string, rules []config.RiskRule) Assessment {
	var a Assessment
	for _, rule := range rules {
		v, ok := values[rule.Slot]
		if !ok || !matches(rule.Values, v) {
			continue
		}
		switch rule.Level {
		case levelRed:
			a.Red = append(a.Red, rule.Label)
		case levelYellow:
			a.Yellow = append(a.Yellow, rule.Label)
		}
	}

	a.Score = len(a.Red)*100 + len(a.Yellow)*10
	switch {
	case len(a.Red) >= 1:
		a.Bucket = Red
	case len(a.Yellow) >= 2:
		a.Bucket = Yellow
	default:
		a.Bucket = Green
	}

	if a.Bucket != Green {
		a.FollowUps = unknownSlots(values, maxFollowUps)
	}
	return a
}

func matches(candidates []string, value string) bool {
	for _, c := range candidates {
		if strings.EqualFold(c, value) {
			return true
		}
	}
	return false
}

func unknownSlots(values map[string]string, limit int) []string {
	var out []string
	for name, v := range values {
		if strings.EqualFold(v, unknownValue) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
