// Package agentloop binds a language model endpoint to a registry of callable
// tools and drives the multi-turn decide / execute-tools conversation loop.
// Most applications interact with this package by:
//  1. Declaring tools via tool.NewFunctionTool or tool.NewFunctionToolFromStruct
//  2. Constructing an agent with FromTools and a model binding
//     (model/openai, model/anthropic, or any model.Model implementation)
//  3. Running conversations via Chat, ChatAsync or StreamChat
//
// The façade delegates to the agent package while keeping the common setup
// path concise:
//
//	a, err := agentloop.FromTools([]tool.Tool{multiply, add}, openai.NewModel())
//	if err != nil { ... }
//	answer, err := a.Chat(ctx, "What is (121*3)+42?")
package agentloop

import (
	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// Agent is re-exported for callers that only import the root package.
type Agent = agent.Agent

// Options is re-exported for functional option closures.
type Options = agent.Options

// FromTools constructs an agent from a tool set and a model binding. See
// agent.FromTools for the full option surface.
func FromTools(tools []tool.Tool, llm model.Model, optFns ...func(o *Options)) (*Agent, error) {
	return agent.FromTools(tools, llm, optFns...)
}
