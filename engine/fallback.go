package engine

import "hash/fnv"

// fallbackReplies are the canned replies used when every model attempt
// fails. Neutral enough to pass for any character.
var fallbackReplies = [...]string{
	"I'm sorry, I got a little lost in thought just now. Could you say that again?",
	"Hmm, my mind wandered for a moment there. What were you saying?",
	"I didn't quite catch that, my thoughts drifted. Tell me once more?",
	"Sorry, I spaced out for a second. Can you repeat that for me?",
	"Give me a moment, I lost my train of thought. What was that?",
}

// FallbackReply picks a canned reply for the given user message. The
// choice is a pure function of the message text, so retries of the same
// message land on the same reply.
func FallbackReply(message string) string {
	return fallbackReplies[fallbackIndex(message)]
}

func fallbackIndex(message string) int {
	h := fnv.New64a()
	h.Write([]byte(message))
	return int(h.Sum64() % uint64(len(fallbackReplies)))
}
