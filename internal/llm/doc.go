// Package llm is the chat side of the external model runtime. Client is
// implemented over any OpenAI-compatible chat completions endpoint through
// langchaingo, with both blocking and streaming calls.
package llm
