package routing

import "net/http"

const (
	// AffinityCookieName is the session cookie carrying the affinity
	// token, the ID of the variant the client was routed to.
	AffinityCookieName = "__vdpl"

	// OverrideHeader marks a request as already routed by this
	// system. It is set exclusively by the forwarder and carries the
	// target hostname. A request bearing it is terminated locally
	// without running affinity or split logic again.
	OverrideHeader = "X-Deployment-Override"
)

// Rerouted reports whether the request was already routed by this
// system once and re-entered through the forward.
func Rerouted(r *http.Request) bool {
	return r.Header.Get(OverrideHeader) != ""
}

// AffinityToken returns the session affinity token of the request, if
// any.
func AffinityToken(r *http.Request) string {
	c, err := r.Cookie(AffinityCookieName)
	if err != nil {
		return ""
	}

	return c.Value
}

// ResolveAffinity returns the variant a prior routing decision bound
// the request to. There is a hit only when sticky sessions are
// configured and the request's token exactly equals one of the two
// configured variant IDs. A token from a since-rotated configuration
// matches neither ID and is treated as no token.
func ResolveAffinity(r *http.Request, c *Config) (Variant, bool) {
	if !c.StickySession {
		return 0, false
	}

	return c.VariantByID(AffinityToken(r))
}
