package core

import (
	"context"
	"strings"

	"github.com/safemindhq/safemind/internal/store"
	"go.uber.org/zap"
)

// Intent is the communicative purpose of a user message.
type Intent string

const (
	IntentEmergency Intent = "emergency"
	IntentEmotional Intent = "emotional"
	IntentTechnical Intent = "technical"
	IntentKnowledge Intent = "knowledge"
	IntentVenting   Intent = "venting"
	IntentSocial    Intent = "social"
	IntentWellness  Intent = "wellness"
)

// crisisPatterns are matched lexically, without any model involvement, so
// crisis detection keeps working when the generative backend is down.
var crisisPatterns = []string{
	"kill myself",
	"suicide",
	"suicidal",
	"end my life",
	"end it all",
	"want to die",
	"wish i was dead",
	"better off dead",
	"hurt myself",
	"harm myself",
	"self harm",
	"self-harm",
	"take my own life",
	"no reason to live",
	"no point in living",
}

// MatchesCrisisPattern reports whether the message contains a recognized
// self-harm or suicide signal.
func MatchesCrisisPattern(message string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range crisisPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

var validModelIntents = map[Intent]bool{
	IntentEmotional: true,
	IntentTechnical: true,
	IntentKnowledge: true,
	IntentVenting:   true,
	IntentSocial:    true,
	IntentWellness:  true,
}

// Classifier assigns an Intent to a user message. The crisis path is purely
// lexical; the remaining six labels come from a model call.
type Classifier struct {
	labeler Labeler
	logger  *zap.Logger
}

func NewClassifier(labeler Labeler, logger *zap.Logger) *Classifier {
	return &Classifier{labeler: labeler, logger: logger}
}

// Classify maps a message plus recent context to an Intent. Any failure on
// the model path falls back to the safe default IntentEmotional. The model
// is never allowed to escalate to IntentEmergency on its own: emergency
// requires an explicit lexical match.
func (c *Classifier) Classify(ctx context.Context, message string, recent []store.Message) Intent {
	if MatchesCrisisPattern(message) {
		return IntentEmergency
	}

	label, err := c.labeler.Label(ctx, message, recent)
	if err != nil {
		c.logger.Warn("intent labelling failed, defaulting to emotional", zap.Error(err))
		return IntentEmotional
	}

	intent, ok := parseIntentLabel(label)
	if !ok {
		c.logger.Warn("unrecognized intent label, defaulting to emotional", zap.String("label", label))
		return IntentEmotional
	}
	return intent
}

func parseIntentLabel(label string) (Intent, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(label))
	cleaned = strings.Trim(cleaned, "\"'.,!`")
	intent := Intent(cleaned)
	if validModelIntents[intent] {
		return intent, true
	}
	return "", false
}
