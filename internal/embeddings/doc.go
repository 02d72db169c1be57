// Package embeddings turns invoice records and search queries into
// fixed-dimension vectors via pluggable providers.
//
// Supports FastEmbed (local ONNX) and TEI (external service) providers.
// Document mode and query mode produce deliberately different vectors for
// the same text; the two must never be compared against each other. Every
// vector is tagged with the id of the provider that produced it, and
// vectors from different providers are never mixed in one similarity
// computation.
package embeddings
