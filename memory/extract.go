package memory

import "strings"

// ExtractCandidate applies keyword heuristics to a completed
// user/assistant exchange and produces at most one memory candidate.
// The empty string means the exchange carried nothing worth keeping.
//
// The triggers are intentionally simple: self-introduction, stated
// preference, and explicit "remember this" cues acknowledged by the
// assistant. A real deployment would swap this function, not the
// surrounding curator.
func ExtractCandidate(userMessage, assistantReply string) string {
	lowerUser := strings.ToLower(userMessage)

	if idx := strings.Index(lowerUser, "my name is"); idx >= 0 {
		name := strings.TrimSpace(userMessage[idx+len("my name is"):])
		if name != "" {
			return "User's name: " + name
		}
	}

	if strings.Contains(lowerUser, "i like") || strings.Contains(lowerUser, "i love") {
		return "User preference: " + userMessage
	}

	if strings.Contains(lowerUser, "remember this") || strings.Contains(lowerUser, "don't forget") {
		return "Important: " + userMessage
	}

	lowerReply := strings.ToLower(assistantReply)
	if strings.Contains(lowerReply, "i'll remember") || strings.Contains(lowerReply, "noted") {
		return "Important: " + userMessage
	}

	return ""
}
