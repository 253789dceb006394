package eventbridge

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/KaioH3/negotiation-agent/internal/negotiation"
)

// ProtocolVersion identifies the bridge contract version exposed via /health.
const ProtocolVersion = "2.0.0"

// Runner starts negotiation runs. *negotiation.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, req negotiation.Request, sink negotiation.Emitter) (*negotiation.Result, error)
}

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

// ParseRequest reads run parameters from a stream query string. A
// quantities value that is not a JSON object of integers is reported as an
// error alongside a request that uses catalog defaults.
func ParseRequest(query url.Values) (negotiation.Request, error) {
	req := negotiation.Request{Note: strings.TrimSpace(query.Get("note"))}
	raw := strings.TrimSpace(query.Get("quantities"))
	if raw == "" {
		return req, nil
	}
	var quantities map[string]int
	if err := json.Unmarshal([]byte(raw), &quantities); err != nil {
		return req, err
	}
	req.Quantities = quantities
	return req, nil
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	RouterReady   bool   `json:"router_ready"`
	ActiveRuns    int64  `json:"active_runs"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
