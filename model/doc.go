// Package model defines the provider-neutral contract between the agent loop
// and a language model transport. A Model consumes a normalized Request
// (conversation messages plus tool definitions) and produces a channel of
// Response chunks, so streaming and non-streaming providers share one
// interface. Vendor adapters live in the openai and anthropic subpackages.
package model
