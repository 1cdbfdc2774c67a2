package provider

import "strings"

// USD per one million tokens. Local models cost nothing and are absent.
type modelPrice struct {
	inputPerM  float64
	outputPerM float64
}

var openaiPrices = map[string]modelPrice{
	"gpt-4o":        {inputPerM: 2.50, outputPerM: 10.00},
	"gpt-4o-mini":   {inputPerM: 0.15, outputPerM: 0.60},
	"gpt-4.1":       {inputPerM: 2.00, outputPerM: 8.00},
	"gpt-4.1-mini":  {inputPerM: 0.40, outputPerM: 1.60},
	"gpt-4-turbo":   {inputPerM: 10.00, outputPerM: 30.00},
	"gpt-3.5-turbo": {inputPerM: 0.50, outputPerM: 1.50},
	"o3-mini":       {inputPerM: 1.10, outputPerM: 4.40},
}

var anthropicPrices = map[string]modelPrice{
	"claude-3-5-haiku":  {inputPerM: 0.80, outputPerM: 4.00},
	"claude-3-5-sonnet": {inputPerM: 3.00, outputPerM: 15.00},
	"claude-3-7-sonnet": {inputPerM: 3.00, outputPerM: 15.00},
	"claude-3-opus":     {inputPerM: 15.00, outputPerM: 75.00},
	"claude-sonnet-4":   {inputPerM: 3.00, outputPerM: 15.00},
	"claude-opus-4":     {inputPerM: 15.00, outputPerM: 75.00},
}

var openaiEmbeddingPrices = map[string]float64{
	"text-embedding-3-small": 0.02,
	"text-embedding-3-large": 0.13,
	"text-embedding-ada-002": 0.10,
}

// priceFor matches the model name against the table by longest prefix,
// so dated variants like claude-3-5-sonnet-20241022 still price.
func priceFor(table map[string]modelPrice, model string) (modelPrice, bool) {
	if p, ok := table[model]; ok {
		return p, true
	}
	var bestKey string
	for key := range table {
		if strings.HasPrefix(model, key) && len(key) > len(bestKey) {
			bestKey = key
		}
	}
	if bestKey == "" {
		return modelPrice{}, false
	}
	return table[bestKey], true
}

// CompletionCost returns the USD cost of one completion, 0 for unknown
// or local models.
func CompletionCost(providerName, model string, tokensIn, tokensOut int) float64 {
	var table map[string]modelPrice
	switch providerName {
	case NameOpenAI:
		table = openaiPrices
	case NameAnthropic:
		table = anthropicPrices
	default:
		return 0
	}
	price, ok := priceFor(table, model)
	if !ok {
		return 0
	}
	return float64(tokensIn)/1e6*price.inputPerM + float64(tokensOut)/1e6*price.outputPerM
}

// EmbeddingCost returns the USD cost of one embedding call.
func EmbeddingCost(providerName, model string, tokens int) float64 {
	if providerName != NameOpenAI {
		return 0
	}
	perM, ok := openaiEmbeddingPrices[model]
	if !ok {
		return 0
	}
	return float64(tokens) / 1e6 * perM
}
