package devserver

import (
	"strings"

	"github.com/parley-ai/parley/pkg/assistant"
)

// intentRules maps intents to trigger keywords, checked against the
// lowercased query. Order fixes the intent list order in responses.
var intentRules = []struct {
	intent   string
	keywords []string
}{
	{"greeting", []string{"hello", "hi ", "hey", "good morning", "good evening"}},
	{"weather", []string{"weather", "temperature", "forecast", "rain", "sunny"}},
	{"account", []string{"account", "balance", "invoice", "billing", "subscription"}},
	{"search", []string{"find", "search", "look up", "lookup", "where is"}},
	{"help", []string{"help", "how do i", "how to", "support"}},
}

const fallbackIntent = "smalltalk"

// classify returns the detected intents for a query, in rule order. A
// query matching nothing gets the fallback intent so every turn routes
// to at least one agent.
func classify(query string) []string {
	q := strings.ToLower(query)

	var intents []string
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(q, kw) {
				intents = append(intents, rule.intent)
				break
			}
		}
	}

	if len(intents) == 0 {
		intents = []string{fallbackIntent}
	}
	return intents
}

// synthesize builds the multi-intent summary from the successful agent
// results, in arrival order.
func synthesize(agents []assistant.AgentResponse) string {
	var parts []string
	for _, a := range agents {
		if a.Success && a.Message != "" {
			parts = append(parts, a.Message)
		}
	}
	return strings.Join(parts, " ")
}
