package query

import (
	"strconv"
	"strings"
)

// Default prompts used when the configuration leaves them empty.
const (
	DefaultEntityResolutionPrompt = "You are an Entity Extraction Assistant whose task is to extract all meaningful " +
		"entities from a given question or text prompt. Entities may include named entities (people, places, " +
		"organizations, countries, dates, numbers), domain-specific concepts and compound phrases. Return the " +
		"extracted entities separated by spaces, preserving the exact wording as it appears in the text without " +
		"adding extra words or paraphrasing. If no clear entity exists, return nothing. Do not provide any " +
		"answers or explanations, only the entities."

	DefaultAnswerGenerationPrompt = "You are a helpful assistant that provides concise and accurate answers based " +
		"on the provided context (contract information). Use the context to inform your response, but do not " +
		"fabricate information. If the context does not contain the answer, respond with 'I don't know'. Ensure " +
		"your answers are clear and directly address the user's query."

	DefaultInstructions = "Answer the user query using only the context passages below. If the passages do not " +
		"contain the answer, say that it was not found in the provided context."
)

// NoPassagesMarker replaces the passage list when the search found nothing.
const NoPassagesMarker = "(no passages found)"

// BuildPrompt assembles the answer-generation prompt: instructions, the
// 1-based passage list (or NoPassagesMarker) and the original user query.
func BuildPrompt(instructions string, passages []string, userQuery string) string {
	var b strings.Builder
	if instructions = strings.TrimSpace(instructions); instructions != "" {
		b.WriteString(instructions)
		b.WriteString("\n\n")
	}

	b.WriteString("Context passages:\n")
	if len(passages) == 0 {
		b.WriteString(NoPassagesMarker)
		b.WriteString("\n")
	}
	for i, p := range passages {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(strings.TrimSpace(p))
		b.WriteString("\n")
	}

	b.WriteString("\nUser query: ")
	b.WriteString(userQuery)
	return b.String()
}
