package llm

// languageModels maps the short model names accepted on the request to
// full provider identifiers. Anything not listed falls back to the
// configured default model.
var languageModels = map[string]string{
	"deepseek-chat-v3-0324":           "deepseek/deepseek-chat-v3-0324",
	"mistral-small-3.2-24b-instruct":  "mistralai/mistral-small-3.2-24b-instruct",
	"deepseek-r1-0528:free":           "deepseek/deepseek-r1-0528:free",
	"deepseek-r1:free":                "deepseek/deepseek-r1:free",
	"deepseek-chat:free":              "deepseek/deepseek-chat:free",
	"qwen3-32b:free":                  "qwen/qwen3-32b:free",
	"mistral-nemo:free":               "mistralai/mistral-nemo:free",
	"qwen3-235b-a22b:free":            "qwen/qwen3-235b-a22b:free",
	"gemma-3-27b-it:free":             "google/gemma-3-27b-it:free",
	"llama-4-maverick:free":           "meta-llama/llama-4-maverick:free",
}

// ResolveModel returns the provider identifier for name, or def when
// the name is unrecognized or empty.
func ResolveModel(name, def string) string {
	if full, ok := languageModels[name]; ok {
		return full
	}
	return def
}
