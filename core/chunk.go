package core

import "time"

// StreamingChunk is an ordered fragment of a generated reply.
//
// A generation request emits zero or more content chunks followed by
// exactly one terminal chunk: either a completion (Done, empty Error)
// or an error (Done, Error set). Terminal chunks are never duplicated
// and chunks are never reordered within one generation.
type StreamingChunk struct {
	// Content is the text fragment. Empty on terminal chunks.
	Content string

	// Index is the zero-based emission position within the generation.
	Index int

	// Timestamp is when the chunk was produced.
	Timestamp time.Time

	// Done marks the terminal chunk of the generation.
	Done bool

	// Error carries the failure reason on a terminal error chunk.
	Error string
}

// CompletionChunk builds the terminal success chunk for a generation.
func CompletionChunk(index int) StreamingChunk {
	return StreamingChunk{Index: index, Timestamp: time.Now(), Done: true}
}

// ErrorChunk builds the terminal failure chunk for a generation.
func ErrorChunk(index int, reason string) StreamingChunk {
	return StreamingChunk{Index: index, Timestamp: time.Now(), Done: true, Error: reason}
}
