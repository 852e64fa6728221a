package pipeline

import "github.com/myndlens/myndlens-p-sub000/internal/conversation"

// refusalText is spoken when the guardrail blocks a request.
const refusalText = "I can't help with that request."

// clarifyText is asked when the request is ambiguous but every tracked
// dimension is filled.
const clarifyText = "Could you tell me a bit more about what you need?"

var questions = [...]string{
	conversation.DimensionWho:   "Who is this for?",
	conversation.DimensionWhat:  "What would you like me to do?",
	conversation.DimensionWhen:  "When should this happen?",
	conversation.DimensionWhere: "Where should this happen?",
	conversation.DimensionHow:   "How would you like this done?",
}

// questionFor returns the clarifying question for d.
func questionFor(d conversation.Dimension) string {
	if int(d) >= 0 && int(d) < len(questions) {
		return questions[d]
	}
	return clarifyText
}
