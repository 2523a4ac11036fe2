package main

import (
	"os"
	"time"

	"github.com/specpipe/core/internal/llmbackend"
	"github.com/specpipe/core/internal/specerr"
)

// providerEnvVar names the well-known credential environment variable for
// each recognized HTTP provider id, per spec.md §6: the tool never reads
// credentials from flags or files.
var providerEnvVar = map[string]string{
	"openrouter": "OPENROUTER_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
}

var providerBaseURL = map[string]string{
	"openrouter": "https://openrouter.ai/api/v1/chat/completions",
	"anthropic":  "https://api.anthropic.com/v1/messages",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta/models/generate",
}

var cliProviderCommand = map[string]string{
	"claude-cli": "claude",
	"gemini-cli": "gemini",
}

// resolveBackend builds a llmbackend.Backend for a provider id recognized
// from EffectiveConfig's llm_provider/llm_fallback. budget is shared
// across every HTTP-variant backend constructed for one run.
func resolveBackend(id string, timeout time.Duration, budget *llmbackend.Budget) (llmbackend.Backend, error) {
	if id == "" {
		return nil, nil
	}
	if cmd, ok := cliProviderCommand[id]; ok {
		return llmbackend.NewCLIBackend(id, "unknown", cmd, nil, "--structured", "--plain", nil), nil
	}
	if baseURL, ok := providerBaseURL[id]; ok {
		envVar := providerEnvVar[id]
		apiKey := os.Getenv(envVar)
		return llmbackend.NewHTTPBackend(id, "unknown", baseURL, apiKey, timeout, budget, nil), nil
	}
	return nil, specerr.New(specerr.KindModelResolution, "unrecognized llm_provider/llm_fallback id "+id, "use one of claude-cli, gemini-cli, openrouter, anthropic, gemini")
}
