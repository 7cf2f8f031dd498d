// Package openaicompat provides a shared base implementation for any
// provider reachable through an OpenAI-compatible chat-completions endpoint.
//
// Vendors like DeepSeek, Qwen, GLM, and Grok share the same wire format
// (OpenAI Chat Completions). Instead of duplicating HTTP handling, request
// building, and error mapping in each adapter, they construct an
// openaicompat.Provider with a Config tailored to their base URL, default
// model, and (optionally) header scheme:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.deepseek.com",
//	    DefaultModel: "deepseek-chat",
//	}, logger)
package openaicompat
