// Package memory implements long-lived per-relationship memory for
// companion conversations. Memories are namespaced by user+character
// pair for multi-tenant isolation.
//
// Architecture:
//   - Store: vector storage backend (local slice for tests/single-node,
//     chromem-go embedded database; pgvector in production)
//   - Embedder: text-to-vector conversion (ONNX local model, or an
//     API-based embedder in production)
//   - Retriever: per-turn top-K similarity queries with access
//     bookkeeping
//   - Curator: post-exchange extraction plus periodic consolidation
//     into the character-scoped shared-memory list
//
// Integration:
//   - Context assembly retrieves relevant records before each turn
//   - The curator observes each completed exchange and stores at most
//     one new record per turn
//
// Extraction and importance scoring are deliberately simple keyword
// heuristics; swapping them does not touch the surrounding plumbing.
package memory
