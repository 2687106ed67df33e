// Package reply generates AI responses for student inquiries.
//
// The Engine interface is the gateway's view of the language model: given
// ordered chat history it returns text and zero or more tool intents
// (escalate to a human, list booking slots, book a slot). Tool intents are
// executed elsewhere; ComposeFinal feeds their results back so the closing
// message can reference real outcomes.
//
// OpenAIEngine is the production implementation. It speaks the
// OpenAI-compatible chat-completions API, which covers both the "openai"
// and "gemini" providers; the process-wide Selector decides which backend
// answers the next call.
package reply
