package rpc

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// requestID tags every request with an identifier so log lines from one
// request can be correlated. An inbound id is honoured; otherwise one is
// minted.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// formatRat renders a rational as a decimal string without trailing zeros.
// Rates on the 1/100 multiplier grid always terminate within a few places;
// eight digits cover any base rate a client can express in the query.
func formatRat(value *big.Rat) string {
	if value == nil {
		return "0"
	}
	rendered := value.FloatString(8)
	if strings.Contains(rendered, ".") {
		rendered = strings.TrimRight(rendered, "0")
		rendered = strings.TrimRight(rendered, ".")
	}
	if rendered == "" || rendered == "-" {
		return "0"
	}
	return rendered
}
