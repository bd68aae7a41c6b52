package planner

import (
	"strings"

	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/rag/document"
)

// Question returns the question text for slot, or the describe-further
// question when slot is empty or has no configured question.
func Question(policy *config.Policy, slot string) string {
	if q, ok := policy.Questions[slot]; ok && slot != "" {
		return q
	}
	return policy.Messages.DescribeFurther
}

// Respond builds the text of an action that needs no model call. It returns
// false for Retrieve and Generate. question is set when the text ends with
// a clarifying question.
func Respond(d Decision, policy *config.Policy, passages []document.Ref) (text, question string, ok bool) {
	switch a := d.Action.(type) {
	case Ask:
		q := Question(policy, a.Slot)
		return q, q, true
	case Redirect:
		return policy.Messages.Redirect, "", true
	case DirectiveOnly:
		return policy.Messages.EmergencyDirective, "", true
	case Fallback:
		var parts []string
		if a.Directive {
			parts = append(parts, policy.Messages.EmergencyDirective)
		}
		parts = append(parts, policy.Messages.Disclaimer)
		if len(passages) > 0 {
			quoted := passages[0].Text
			if a.AskFurther {
				quoted = withoutQuestions(quoted)
			}
			parts = append(parts, quoted)
		}
		if a.AskFurther {
			question = policy.Messages.DescribeFurther
			parts = append(parts, question)
		}
		return strings.Join(parts, "\n\n"), question, true
	}
	return "", "", false
}

// withoutQuestions turns the question marks of a quoted passage into full
// stops, so a clarifying turn still carries a single question.
func withoutQuestions(text string) string {
	return strings.ReplaceAll(text, "?", ".")
}

// Citations returns the passages an action's answer is grounded on.
func Citations(d Decision, passages []document.Ref) []document.Ref {
	switch d.Action.(type) {
	case Generate:
		return document.CloneRefs(passages)
	case Fallback:
		if len(passages) > 0 {
			return document.CloneRefs(passages[:1])
		}
	}
	return nil
}
