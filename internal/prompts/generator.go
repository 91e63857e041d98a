// Package prompts builds the examiner prompts sent to the LLM.
package prompts

import (
	"fmt"
	"strings"

	"ielts-speaking/internal/speaking"
)

// Range is an inclusive count of items the model should produce.
type Range struct {
	Min int
	Max int
}

func (r Range) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}
	return fmt.Sprintf("%d to %d", r.Min, r.Max)
}

// Part1 asks for introduction questions on a single everyday topic.
func Part1(n Range) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("You are an IELTS examiner. Generate %s questions for Part 1 of the IELTS Speaking test. ", n))
	prompt.WriteString("All questions should be on a single, common topic.\n")
	prompt.WriteString(questionsFormat(fmt.Sprintf("An array of %s questions for the IELTS Speaking test Part 1 on a single topic.", n)))
	return prompt.String()
}

// Part2 asks for a cue card.
func Part2(points Range) string {
	var prompt strings.Builder
	prompt.WriteString("You are an IELTS examiner. Create a task card for Part 2 of the IELTS Speaking test. ")
	prompt.WriteString(fmt.Sprintf("Provide a topic and %s cue points the candidate should talk about.\n", points))
	prompt.WriteString("Phrase the topic as an instruction, for example \"Describe a place you visited recently.\"\n")
	prompt.WriteString(formatInstructions(`{
  "topic": string, // The main topic the candidate should describe.
  "cue_points": string[] // An array of ` + points.String() + ` bullet points the candidate should cover in their talk.
}`))
	return prompt.String()
}

// Part3 asks for discussion questions that follow from the Part 2 topic.
func Part3(topic string, n Range) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("You are an IELTS examiner. The candidate's topic for Part 2 was '%s'. ", topic))
	prompt.WriteString(fmt.Sprintf("Generate %s abstract, discussion-style follow-up questions for Part 3 of the IELTS Speaking test.\n", n))
	prompt.WriteString(questionsFormat(fmt.Sprintf("An array of %s abstract follow-up questions related to the Part 2 topic.", n)))
	return prompt.String()
}

// Evaluation asks for a band-scored report of the whole conversation.
func Evaluation(conversation []speaking.Turn) string {
	var prompt strings.Builder
	prompt.WriteString("You are a certified IELTS examiner. Your task is to evaluate a candidate's speaking test transcript and provide a detailed assessment.\n\n")
	prompt.WriteString("Analyze the following conversation based on the four official IELTS criteria: ")
	prompt.WriteString(strings.Join(CriterionNames(), ", "))
	prompt.WriteString(". Evaluate how well the candidate's answers address the questions asked.\n\n")
	prompt.WriteString("For Pronunciation, acknowledge that you are working from a transcript and can only infer aspects like rhythm and flow from the text.\n\n")
	prompt.WriteString("Provide an estimated band score (1-9) for each criterion, specific feedback with examples from the text, and suggestions for improvement. ")
	prompt.WriteString("Finally, calculate the overall band score.\n\n")

	prompt.WriteString("Band guidance:\n")
	for _, d := range Descriptors {
		prompt.WriteString(fmt.Sprintf("- %s: %s\n", d.Name, d.Focus))
	}

	prompt.WriteString("\nConversation to evaluate:\n---\n")
	prompt.WriteString(FormatConversation(conversation))
	prompt.WriteString("\n---\n\n")
	prompt.WriteString(formatInstructions(reportSchema))
	return prompt.String()
}

// FormatConversation renders turns as an examiner/candidate transcript.
func FormatConversation(conversation []speaking.Turn) string {
	turns := make([]string, 0, len(conversation))
	for _, t := range conversation {
		turns = append(turns, fmt.Sprintf("Examiner: %s\nCandidate: %s", t.Question, t.Answer))
	}
	return strings.Join(turns, "\n\n")
}

func questionsFormat(description string) string {
	return formatInstructions(`{
  "questions": string[] // ` + description + `
}`)
}

func formatInstructions(schema string) string {
	return "You must format your output as a JSON value that adheres to the following schema. " +
		"Return only the JSON object, without markdown fences or commentary.\n\n```\n" + schema + "\n```\n"
}

const reportSchema = `{
  "fluency_and_coherence": {"score": number, "feedback": string}, // Band 1-9 and specific suggestions.
  "lexical_resource": {"score": number, "feedback": string}, // Band 1-9 for vocabulary.
  "grammatical_range_and_accuracy": {"score": number, "feedback": string}, // Band 1-9 for grammar.
  "pronunciation": {"score": number, "feedback": string}, // Band 1-9 inferred from the text; acknowledge the limitation.
  "overall_score": number, // Average of the four criteria.
  "summary": string // Brief overall summary and key areas for focus.
}`
