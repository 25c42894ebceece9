package core

// PersonalityTraits holds the big-five trait percentages for a
// character, each in [0, 100]. Generation parameters are derived from
// them: higher openness raises temperature, higher emotional stability
// lowers it.
type PersonalityTraits struct {
	Openness           int
	Conscientiousness  int
	Extraversion       int
	Agreeableness      int
	EmotionalStability int
}

// VoiceSettings describes how the character speaks. The engine treats
// it as opaque prompt material; audio rendering lives elsewhere.
type VoiceSettings struct {
	Style    string
	Language string
}

// CharacterProfile is a snapshot of a character as returned by the
// character catalog collaborator.
type CharacterProfile struct {
	ID          string
	Name        string
	Description string
	Backstory   string

	// Category is the catalog category label (e.g. "romantic", "mentor").
	Category string

	Personality PersonalityTraits
	Voice       VoiceSettings

	// ResponseStyle is a free-form style directive ("casual", "formal").
	ResponseStyle string

	// CurrentMood is the character's mood label for this session, if any.
	CurrentMood string
}
