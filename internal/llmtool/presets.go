package llmtool

// PromptPreset holds reusable constraints and rules for structured prompts.
type PromptPreset struct {
	Constraints []string
	Rules       []string
}

// ApplyPresets prepends preset constraints/rules to a structured prompt spec.
func ApplyPresets(spec StructuredPromptSpec, presets ...PromptPreset) StructuredPromptSpec {
	if len(presets) == 0 {
		return spec
	}
	var merged PromptPreset
	for _, p := range presets {
		merged.Constraints = append(merged.Constraints, p.Constraints...)
		merged.Rules = append(merged.Rules, p.Rules...)
	}
	spec.Constraints = append(merged.Constraints, spec.Constraints...)
	spec.Rules = append(merged.Rules, spec.Rules...)
	return spec
}

// PresetStrictJSON enforces strict JSON-only output.
func PresetStrictJSON() PromptPreset {
	return PromptPreset{
		Constraints: []string{
			"Return strict JSON only.",
			"Match the schema exactly; no extra fields.",
			"No markdown, comments, or trailing commas.",
		},
	}
}

// PresetNoInvent keeps diagrams grounded in the supplied article.
func PresetNoInvent() PromptPreset {
	return PromptPreset{
		Constraints: []string{
			"Use only steps, actors and decisions stated or directly implied by the article; do not invent facts.",
		},
	}
}

// PresetCautious encourages smaller diagrams over guessed structure.
func PresetCautious() PromptPreset {
	return PromptPreset{
		Rules: []string{
			"Avoid guessing; prefer a smaller diagram with certain steps over a larger one with speculative steps.",
		},
	}
}

// PresetGraphIntegrity states the graph invariants the parser enforces.
func PresetGraphIntegrity() PromptPreset {
	return PromptPreset{
		Constraints: []string{
			"Every diagram has at least one node.",
			"Node ids are short, unique within their diagram, and contain only letters, digits and underscores.",
			"Every edge's from and to must be the id of a node in the same diagram.",
		},
	}
}
