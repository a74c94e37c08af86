package market

import "strings"

type assetIDs struct {
	coinGecko string
	yahoo     string
}

var assetCatalog = map[string]assetIDs{
	"BTC": {coinGecko: "bitcoin", yahoo: "BTC-USD"},
	"ETH": {coinGecko: "ethereum", yahoo: "ETH-USD"},
	"SOL": {coinGecko: "solana", yahoo: "SOL-USD"},
}

var assetAliases = map[string]string{
	"btc":      "BTC",
	"bitcoin":  "BTC",
	"eth":      "ETH",
	"ethereum": "ETH",
	"sol":      "SOL",
	"solana":   "SOL",
}

// NormalizeAsset maps a symbol or coin name onto its canonical ticker.
func NormalizeAsset(asset string) (string, bool) {
	sym, ok := assetAliases[strings.ToLower(strings.TrimSpace(asset))]
	return sym, ok
}

// SupportedAssets lists the canonical tickers in a stable order.
func SupportedAssets() []string {
	return []string{"BTC", "ETH", "SOL"}
}
