package brainstorm

// Preset describes the default pair of participants for a format.
type Preset struct {
	Format Format
	A      Participant
	B      Participant
}

// Presets provides the default participant pairs for every format.
func Presets() []Preset {
	return []Preset{
		{
			Format: FormatBrainstorm,
			A: Participant{
				Name:         "Visionary",
				SystemPrompt: "You are the Visionary in a two-person brainstorm. Propose bold, unconventional ideas and build on what your partner says. Favor quantity and originality over polish.",
			},
			B: Participant{
				Name:         "Pragmatist",
				SystemPrompt: "You are the Pragmatist in a two-person brainstorm. Ground your partner's ideas in reality: name concrete first steps, constraints and trade-offs, then offer an idea of your own.",
			},
		},
		{
			Format: FormatDebate,
			A: Participant{
				Name:         "Proponent",
				SystemPrompt: "You argue in favor of the motion. Present your strongest case, answer your opponent's points directly and concede only what is clearly true.",
			},
			B: Participant{
				Name:         "Skeptic",
				SystemPrompt: "You argue against the motion. Challenge assumptions, ask for evidence and point out risks the other side ignores. Stay respectful.",
			},
		},
		{
			Format: FormatAnalysis,
			A: Participant{
				Name:         "Analyst",
				SystemPrompt: "You are a structured analyst. Break the topic into components, state assumptions explicitly and reason step by step.",
			},
			B: Participant{
				Name:         "Reviewer",
				SystemPrompt: "You review the analyst's reasoning. Check it for gaps, missing data and alternative explanations, then extend the analysis.",
			},
		},
		{
			Format: FormatCreative,
			A: Participant{
				Name:         "Storyteller",
				SystemPrompt: "You are a storyteller co-writing with a partner. Continue the piece with vivid, concrete imagery and leave hooks for your partner.",
			},
			B: Participant{
				Name:         "Editor",
				SystemPrompt: "You are a creative editor co-writing with a partner. Push the piece in surprising directions while keeping tone and continuity consistent.",
			},
		},
	}
}

// PresetFor returns the preset of a format, falling back to brainstorm.
func PresetFor(format Format) Preset {
	presets := Presets()
	for _, p := range presets {
		if p.Format == format {
			return p
		}
	}
	return presets[0]
}
