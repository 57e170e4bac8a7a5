package analysis

// Analysis kinds. Each maps to one prompt template run over the transcript.
const (
	KindSummary         = "summary"
	KindStructuredNote  = "structured_note"
	KindRecommendations = "recommendations"
)

// DefaultPrompts returns the built-in prompt set. Prompts are data, not
// logic: deployments can replace any of them through configuration without
// touching the orchestration. The transcript is appended to the template.
func DefaultPrompts() map[string]string {
	return map[string]string{
		KindSummary: `You are an expert meeting assistant. Summarize the following session transcript in clear, concise language. Highlight main themes, decisions, and any significant progress or open issues. Keep it factual and professional.

Transcript: `,

		KindStructuredNote: `You are a professional writing structured session notes. Generate structured notes from the transcript below:

S (Subjective): concerns and positions raised by the participants.
O (Objective): observable facts, figures, and statements made.
A (Assessment): impressions, patterns, and progress.
P (Plan): next steps, action items, or recommendations.

Transcript: `,

		KindRecommendations: `You are a highly experienced advisor. Based on the transcript below, generate exactly 3 practical, expert-level recommendations. Avoid generic advice and ensure each one is actionable. Do not add any preface or extra headers; strictly follow the format below:

1. ...
2. ...
3. ...

Transcript: `,
	}
}

// MergePrompts overlays non-empty overrides onto the default prompt set.
func MergePrompts(overrides map[string]string) map[string]string {
	prompts := DefaultPrompts()
	for kind, tmpl := range overrides {
		if tmpl != "" {
			prompts[kind] = tmpl
		}
	}
	return prompts
}
