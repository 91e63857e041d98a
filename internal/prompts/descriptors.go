package prompts

// Descriptor summarises what an examiner listens for under one criterion.
type Descriptor struct {
	Key   string
	Name  string
	Focus string
}

// Descriptors lists the four IELTS speaking criteria in report order.
var Descriptors = []Descriptor{
	{
		Key:   "fluency_and_coherence",
		Name:  "Fluency and Coherence",
		Focus: "speaks at length without noticeable effort, links ideas with a range of connectives, and stays on topic",
	},
	{
		Key:   "lexical_resource",
		Name:  "Lexical Resource",
		Focus: "uses vocabulary flexibly and precisely, including less common and idiomatic items, and paraphrases when needed",
	},
	{
		Key:   "grammatical_range_and_accuracy",
		Name:  "Grammatical Range and Accuracy",
		Focus: "mixes simple and complex structures, and how often errors get in the way of meaning",
	},
	{
		Key:   "pronunciation",
		Name:  "Pronunciation",
		Focus: "only what a transcript reveals: rhythm, chunking and self-correction",
	},
}

// CriterionNames returns the display names of Descriptors.
func CriterionNames() []string {
	names := make([]string, len(Descriptors))
	for i, d := range Descriptors {
		names[i] = d.Name
	}
	return names
}
