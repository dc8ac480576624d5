// Package openaicompat provides a generic llm.Provider for any backend
// speaking the OpenAI Chat Completions API format.
//
// Hosted services (OpenAI, DeepSeek, Moonshot) and self-hosted runtimes
// (vLLM, Ollama, LiteLLM proxies) share the same wire format and differ
// only in base URL, auth headers, and the occasional extra body field.
// Instead of one adapter per vendor, a single Provider covers them all
// through Config:
//
//   - Provider name and default model
//   - Base URL and endpoint paths
//   - Custom headers via BuildHeaders (if any)
//   - Backend-specific request fields via RequestHook
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openai",
//	    APIKey:       os.Getenv("OPENAI_API_KEY"),
//	    BaseURL:      "https://api.openai.com",
//	    DefaultModel: "gpt-4o-mini",
//	}, logger)
//
// Errors come back as *types.Error with the retryable flag set for rate
// limits and transient upstream failures, which is what the dialogue
// gateway's retry policy keys on.
package openaicompat
