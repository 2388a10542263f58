package core

import (
	"fmt"
	"strings"

	"github.com/safemindhq/safemind/internal/store"
)

const (
	personaInstruction = "You are SafeMind, a warm, empathetic and intelligent mental wellbeing assistant. " +
		"You provide emotional support, psychoeducation and practical guidance while respecting the limits " +
		"of an AI system. You do NOT diagnose, prescribe or replace professional care. " +
		"Always validate first, match the user's energy, and balance comfort with action. " +
		"If the user shows signs of a serious mental health crisis, gently suggest professional help."

	empatheticInstruction = "The user is processing difficult feelings or venting. Listen empathetically, " +
		"validate and normalize what they are experiencing, and do not rush to fix or advise. " +
		"Let the user lead the conversation."

	socialInstruction = "You are a friendly, warm conversational assistant. The user has sent a casual " +
		"social message. Respond with a short, friendly reply of one or two lines. Do not analyze " +
		"emotions, do not give advice, do not be clinical. Just be human and natural."

	// lowConfidenceInstruction qualifies generation when retrieved passages
	// score below the confidence threshold. It constrains, never refuses.
	lowConfidenceInstruction = "The retrieved context has low relevance confidence. Do NOT make strong " +
		"medical claims or factual assertions unless strictly supported by the context. Use guarded " +
		"language such as 'the guidelines suggest' or 'it may be helpful to'. If the answer is not in " +
		"the context, say so politely instead of inventing specifics."

	intentLabelInstruction = "You classify the communicative purpose of a user message in a mental " +
		"wellbeing chat. Respond with exactly one lowercase word from this list and nothing else: " +
		"emotional, technical, knowledge, venting, social, wellness."
)

func profileContext(profile store.User) string {
	name := profile.Name
	if name == "" {
		name = "User"
	}
	location := profile.Location
	if location == "" {
		location = "Not specified"
	}
	return fmt.Sprintf("USER CONTEXT: Name: %s, Age: %d, Gender: %s, Location: %s",
		name, profile.Age, profile.Gender, location)
}

func personaSystemPrompt(profile store.User) string {
	return personaInstruction + "\n" + profileContext(profile)
}

func empatheticSystemPrompt(profile store.User) string {
	return personaInstruction + "\n" + empatheticInstruction + "\n" + profileContext(profile)
}

func socialSystemPrompt(profile store.User) string {
	name := profile.Name
	if name == "" {
		name = "User"
	}
	return socialInstruction + "\nUser Name: " + name
}

// BuildRetrievalPrompt assembles the system prompt for retrieval-augmented
// generation: persona, an optional uncertainty qualifier for low-confidence
// retrievals, and the retrieved passages.
func BuildRetrievalPrompt(persona string, passages []ScoredPassage, lowConfidence bool) string {
	var sb strings.Builder
	sb.WriteString(persona)
	if lowConfidence {
		sb.WriteString("\n")
		sb.WriteString(lowConfidenceInstruction)
	}
	sb.WriteString("\nContext from knowledge base:\n")
	for _, p := range passages {
		sb.WriteString(p.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// CrisisResponse renders the crisis template for an emergency-intent turn.
// It is fully deterministic and independent of the generative backend.
func CrisisResponse(name string, hotlines []Hotline) string {
	greeting := "I'm really sorry you're going through this."
	if name != "" {
		greeting = fmt.Sprintf("%s, I'm really sorry you're going through this.", name)
	}

	var sb strings.Builder
	sb.WriteString(greeting)
	sb.WriteString(" You are not alone, and what you're feeling matters. ")
	sb.WriteString("Please reach out right now to someone who can support you:\n")
	for _, h := range hotlines {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", h.Name, h.Contact))
	}
	sb.WriteString("If you are in immediate danger, please contact your local emergency services. ")
	sb.WriteString("Talking to a trained person can make a real difference, and help is available for you.")
	return sb.String()
}
