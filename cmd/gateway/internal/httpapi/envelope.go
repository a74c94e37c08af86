package httpapi

import (
	"encoding/json"
	"net/http"
)

// Error codes of the HTTP contract.
const (
	CodeInvalidAsset          = "INVALID_ASSET"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeStaleMarketData       = "STALE_MARKET_DATA"
	CodeMarketDataUnavailable = "MARKET_DATA_UNAVAILABLE"
	CodeLLMProviderError      = "LLM_PROVIDER_ERROR"
	CodeDebateNotFound        = "DEBATE_NOT_FOUND"
	CodeInternalError         = "INTERNAL_ERROR"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Data  interface{} `json:"data"`
	Error *APIError   `json:"error"`
	Meta  interface{} `json:"meta"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	if env.Meta == nil {
		env.Meta = struct{}{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, data, meta interface{}) {
	writeJSON(w, http.StatusOK, Envelope{Data: data, Meta: meta})
}

func writeError(w http.ResponseWriter, status int, code, message string, meta interface{}) {
	writeJSON(w, status, Envelope{Error: &APIError{Code: code, Message: message}, Meta: meta})
}
