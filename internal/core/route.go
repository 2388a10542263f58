package core

import "github.com/safemindhq/safemind/internal/store"

// Strategy selects how a turn's reply is produced.
type Strategy int

const (
	// StrategyCrisis streams a deterministic hotline template. It must not
	// touch the retriever or the generative backend.
	StrategyCrisis Strategy = iota
	// StrategyConversational generates without document grounding.
	StrategyConversational
	// StrategyRetrieval generates grounded on retrieved passages.
	StrategyRetrieval
)

func (s Strategy) String() string {
	switch s {
	case StrategyCrisis:
		return "crisis"
	case StrategyConversational:
		return "conversational"
	case StrategyRetrieval:
		return "retrieval"
	default:
		return "unknown"
	}
}

// GenerationPlan is the routing decision for one turn.
type GenerationPlan struct {
	Strategy     Strategy
	SystemPrompt string
	Hotlines     []Hotline // populated for StrategyCrisis only
}

// Route is a pure function from (intent, profile) to a generation plan.
// Identical inputs always yield the identical plan.
func Route(intent Intent, profile store.User) GenerationPlan {
	switch intent {
	case IntentEmergency:
		return GenerationPlan{
			Strategy: StrategyCrisis,
			Hotlines: HotlinesFor(profile.Location),
		}
	case IntentSocial:
		return GenerationPlan{
			Strategy:     StrategyConversational,
			SystemPrompt: socialSystemPrompt(profile),
		}
	case IntentEmotional, IntentVenting:
		return GenerationPlan{
			Strategy:     StrategyConversational,
			SystemPrompt: empatheticSystemPrompt(profile),
		}
	default: // knowledge, technical, wellness
		return GenerationPlan{
			Strategy:     StrategyRetrieval,
			SystemPrompt: personaSystemPrompt(profile),
		}
	}
}
