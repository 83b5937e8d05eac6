// Package agent implements the decide / execute-tools loop that binds a
// language model to a registry of callable tools.
//
// One Agent owns one conversation. A run starts with a user message, asks the
// model what to do, executes any requested tool calls (possibly concurrently,
// with results recorded in request order), feeds the results back and repeats
// until the model answers without tool calls or the iteration cap is hit.
// Runs are exposed blocking (Chat), as an awaitable future (ChatAsync) and as
// a pull-based token stream (StreamChat).
package agent
