package routing

import (
	"net/http"
	"strings"

	snet "github.com/vercel-solutions/blue-green-deployments-vercel-3/net"
)

const (
	// ModeProduction is the runtime mode required for routing.
	ModeProduction = "production"

	fetchDestHeader   = "Sec-Fetch-Dest"
	fetchDestDocument = "document"
	userAgentHeader   = "User-Agent"

	// platformAgentToken identifies requests issued by the hosting
	// platform's own deployment and health-check system.
	platformAgentToken = "vercel"
)

// Environment carries the process-wide deployment facts of the running
// instance. It is injected at construction, the routing code never
// reads the process environment itself.
type Environment struct {
	// Mode is the runtime mode, routing requires ModeProduction.
	Mode string

	// ServingHost is the deployment hostname of this instance.
	ServingHost string

	// ProductionHost is the canonical production hostname. Only
	// traffic targeting it is split.
	ProductionHost string

	// DeploymentID is the release identifier of this instance,
	// matching one of the configured variant IDs.
	DeploymentID string

	// BypassSecret authorizes forwarded requests to skip platform
	// protection on the target deployment.
	BypassSecret string
}

// Eligible reports whether the routing logic applies to the request at
// all. Only GET requests for top-level HTML documents, sent by a real
// client to the canonical production host of a production instance,
// are routed. Everything else, APIs, assets, health checks and
// same-origin re-entrant fetches, passes through untouched.
func Eligible(r *http.Request, env Environment) bool {
	if env.Mode != ModeProduction {
		return false
	}

	host := snet.NormalizeHost(r.Host)
	if host == "" {
		return false
	}

	// a request already targeting this instance's own hostname must
	// not be routed again
	if host == snet.NormalizeHost(env.ServingHost) {
		return false
	}

	if host != snet.NormalizeHost(env.ProductionHost) {
		return false
	}

	if r.Method != http.MethodGet {
		return false
	}

	if r.Header.Get(fetchDestHeader) != fetchDestDocument {
		return false
	}

	if isPlatformAgent(r.Header.Get(userAgentHeader)) {
		return false
	}

	return true
}

func isPlatformAgent(userAgent string) bool {
	return strings.Contains(strings.ToLower(userAgent), platformAgentToken)
}
