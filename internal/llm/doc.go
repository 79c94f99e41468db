// Package llm classifies bank transactions with a generative model. It ships
// OpenAI-compatible and Anthropic chat clients and wraps them with retry,
// rate limiting and response caching behind the engine's AI capability.
package llm
