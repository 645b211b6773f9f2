package routing

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	snet "github.com/vercel-solutions/blue-green-deployments-vercel-3/net"
)

// Decision is the outcome of routing one request.
type Decision struct {
	// Variant is the deployment variant chosen for the request. Not
	// meaningful for re-entered requests, which are always local.
	Variant Variant

	// Host is the normalized hostname of the chosen deployment's
	// origin, the forward target when Local is false.
	Host string

	// Scheme of the chosen deployment's origin when its URL was
	// absolute, empty otherwise. The forwarder defaults to https.
	Scheme string

	// Local indicates that the chosen deployment is the one serving
	// this process, so the request terminates here and only the
	// affinity cookie is written.
	Local bool

	// Sticky indicates that an existing valid affinity token
	// produced the decision. The cookie writer then re-asserts the
	// existing token instead of the instance's own ID.
	Sticky bool

	// Token is the affinity token to set on locally terminated
	// responses.
	Token string

	// Reentry indicates a request that was forwarded by this system
	// once and came back through the routing logic.
	Reentry bool
}

// Selector performs the weighted random choice between the two
// variants. The draw is independent per request, no sequence state is
// shared beyond the locked generator, and the random source can be
// replaced for deterministic tests.
type Selector struct {
	randFloat64 func() float64
}

// NewSelector creates a selector with a uniform random source.
func NewSelector() *Selector {
	src := &lockedSource{s: rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano()/2))}
	return &Selector{randFloat64: rand.New(src).Float64}
}

// NewSelectorWithRand creates a selector drawing values in [0, 1) from
// the given source.
func NewSelectorWithRand(randFloat64 func() float64) *Selector {
	return &Selector{randFloat64: randFloat64}
}

// Select draws one uniform value r in [0, 100) and picks Green if r is
// below the configured green traffic percentage, Blue otherwise.
func (s *Selector) Select(c *Config) Variant {
	if s.randFloat64()*100 < c.TrafficGreenPercent {
		return Green
	}

	return Blue
}

// ReentryDecision terminates a request that this system already
// forwarded once. No affinity or split logic executes, the request is
// served locally with the instance's own deployment ID as the cookie
// token, or with the existing token when sticky sessions are on and
// the token is still valid against the given snapshot. The snapshot
// may be nil when none could be loaded.
func ReentryDecision(r *http.Request, c *Config, env Environment) Decision {
	d := Decision{Local: true, Reentry: true, Token: env.DeploymentID}

	if c != nil {
		if v, ok := ResolveAffinity(r, c); ok {
			d.Variant = v
			d.Sticky = true
			d.Token = c.Deployment(v).ID
		}
	}

	return d
}

// Decide runs the full decision for one eligible request against a
// valid configuration snapshot: marker check, affinity resolution and,
// when no affinity applies, the weighted split. The error return means
// the selection could not be resolved to any origin and the request
// must pass through unrouted.
func (s *Selector) Decide(r *http.Request, c *Config, env Environment) (Decision, error) {
	if Rerouted(r) {
		return ReentryDecision(r, c, env), nil
	}

	v, sticky := ResolveAffinity(r, c)
	if !sticky {
		v = s.Select(c)
	}

	dep := c.Deployment(v)

	scheme, host := snet.ParseOrigin(dep.URL)
	if host == "" {
		scheme, host = snet.ParseOrigin(env.ServingHost)
	}

	if host == "" {
		return Decision{}, fmt.Errorf("no resolvable origin for variant %v", v)
	}

	return Decision{
		Variant: v,
		Host:    host,
		Scheme:  scheme,
		Local:   dep.ID == env.DeploymentID,
		Sticky:  sticky,
		Token:   dep.ID,
	}, nil
}

type lockedSource struct {
	mu sync.Mutex
	s  rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s.Uint64()
}
