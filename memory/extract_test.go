package memory_test

import (
	"testing"

	"github.com/virtualcompanion/companion-sdk/memory"
)

func TestExtractCandidate(t *testing.T) {
	cases := []struct {
		name      string
		user      string
		assistant string
		want      string
	}{
		{
			name: "self introduction",
			user: "Hi, my name is Sam",
			want: "User's name: Sam",
		},
		{
			name: "stated preference",
			user: "I like rainy days",
			want: "User preference: I like rainy days",
		},
		{
			name: "explicit remember cue",
			user: "Remember this: my sister's birthday is in June",
			want: "Important: Remember this: my sister's birthday is in June",
		},
		{
			name:      "assistant acknowledgement",
			user:      "My sister's birthday is in June",
			assistant: "Noted, I'll keep that in mind!",
			want:      "Important: My sister's birthday is in June",
		},
		{
			name:      "nothing worth keeping",
			user:      "What's the weather today?",
			assistant: "Wish I could see the sky from here!",
			want:      "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := memory.ExtractCandidate(tc.user, tc.assistant); got != tc.want {
				t.Errorf("ExtractCandidate(%q, %q) = %q, want %q", tc.user, tc.assistant, got, tc.want)
			}
		})
	}
}

func TestExtractCandidate_AtMostOne(t *testing.T) {
	// A message that trips several triggers still yields one candidate,
	// with self-introduction taking precedence.
	got := memory.ExtractCandidate("My name is Sam and I like hiking, remember this", "")
	if got != "User's name: Sam and I like hiking, remember this" {
		t.Errorf("unexpected candidate: %q", got)
	}
}
