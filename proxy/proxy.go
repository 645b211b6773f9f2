/*
Package proxy implements the blue/green routing HTTP handler.

The handler wraps the local application handler. Requests that are not
eligible for routing, or for which no valid configuration snapshot can
be loaded, pass through to the application unchanged (fail open).
Routed requests either terminate locally, with the session affinity
cookie set on the response, or are forwarded to the other deployment's
origin and the origin's response is relayed verbatim.
*/
package proxy

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"

	"github.com/vercel-solutions/blue-green-deployments-vercel-3/metrics"
	snet "github.com/vercel-solutions/blue-green-deployments-vercel-3/net"
	"github.com/vercel-solutions/blue-green-deployments-vercel-3/routing"
)

const (
	// DefaultForwardTimeout is the default timeout applied to the
	// outbound forward transport.
	DefaultForwardTimeout = 30 * time.Second

	// affinityCookieMaxAge is the lifetime of the session affinity
	// cookie.
	affinityCookieMaxAge = 24 * time.Hour

	forwardSpanName = "forward"
)

// Transport executes the outbound forward roundtrip. *net.Transport
// implements it. Redirects must not be followed, the origin's exact
// response is relayed.
type Transport interface {
	Do(req *http.Request, spanName string) (*http.Response, error)
}

// Params to create a routing proxy handler.
type Params struct {
	// DataClient reads the blue/green configuration from the
	// external store. When nil, the feature is unconfigured and
	// every request passes through.
	DataClient routing.DataClient

	// Environment of the running instance.
	Environment routing.Environment

	// Next is the local application handler serving requests that
	// terminate on this instance.
	Next http.Handler

	// Selector overrides the weighted random selector, used by
	// tests to inject deterministic draws.
	Selector *routing.Selector

	// Transport overrides the forward transport.
	Transport Transport

	// ForwardTimeout applies when no Transport is given, defaults
	// to DefaultForwardTimeout.
	ForwardTimeout time.Duration

	// Tracer for the forward spans of the default transport, may be
	// nil.
	Tracer opentracing.Tracer

	// Metrics may be nil to disable instrumentation.
	Metrics *metrics.Metrics
}

// Proxy is the routing handler.
type Proxy struct {
	client    routing.DataClient
	env       routing.Environment
	next      http.Handler
	selector  *routing.Selector
	transport Transport
	metrics   *metrics.Metrics
	quit      chan struct{}
}

// New creates a routing proxy handler.
func New(p Params) *Proxy {
	if p.Next == nil {
		p.Next = http.NotFoundHandler()
	}

	if p.Selector == nil {
		p.Selector = routing.NewSelector()
	}

	quit := make(chan struct{})
	if p.Transport == nil {
		timeout := p.ForwardTimeout
		if timeout == 0 {
			timeout = DefaultForwardTimeout
		}

		p.Transport = snet.NewTransport(snet.Options{Timeout: timeout, Tracer: p.Tracer}, quit)
	}

	return &Proxy{
		client:    p.DataClient,
		env:       p.Environment,
		next:      p.Next,
		selector:  p.Selector,
		transport: p.Transport,
		metrics:   p.Metrics,
		quit:      quit,
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.client == nil {
		p.incDecision(metrics.DecisionBypass, "")
		p.next.ServeHTTP(w, r)
		return
	}

	// the re-routing marker is checked before any other branch: a
	// forwarded request targets the deployment's own hostname and
	// would never pass the eligibility filter
	if routing.Rerouted(r) {
		cfg := p.loadConfig(r)
		d := routing.ReentryDecision(r, cfg, p.env)
		p.incDecision(metrics.DecisionReentry, d.Variant.String())
		p.serveLocal(w, r, d)
		return
	}

	if !routing.Eligible(r, p.env) {
		p.incDecision(metrics.DecisionBypass, "")
		p.next.ServeHTTP(w, r)
		return
	}

	cfg := p.loadConfig(r)
	if cfg == nil {
		p.incDecision(metrics.DecisionBypass, "")
		p.next.ServeHTTP(w, r)
		return
	}

	d, err := p.selector.Decide(r, cfg, p.env)
	if err != nil {
		log.Warnf("skipping blue/green routing: %v", err)
		p.incDecision(metrics.DecisionError, "")
		p.next.ServeHTTP(w, r)
		return
	}

	if d.Local {
		p.incDecision(metrics.DecisionLocal, d.Variant.String())
		p.serveLocal(w, r, d)
		return
	}

	p.incDecision(metrics.DecisionForward, d.Variant.String())
	p.forward(w, r, d)
}

// loadConfig fetches the current snapshot, nil when the store has none
// or it cannot be used.
func (p *Proxy) loadConfig(r *http.Request) *routing.Config {
	cfg, err := routing.Load(r.Context(), p.client)
	if err != nil {
		if errors.Is(err, routing.ErrNotFound) {
			p.incConfigLoad(metrics.ConfigAbsent)
		} else {
			p.incConfigLoad(metrics.ConfigInvalid)
			log.Warnf("skipping blue/green routing: %v", err)
		}

		return nil
	}

	p.incConfigLoad(metrics.ConfigOK)
	return cfg
}

// Close stops the background machinery of the default transport.
func (p *Proxy) Close() {
	close(p.quit)
}

// serveLocal terminates the request on this instance, writing the
// session affinity cookie and passing the request to the application
// unchanged.
func (p *Proxy) serveLocal(w http.ResponseWriter, r *http.Request, d routing.Decision) {
	log.WithFields(log.Fields{
		"decision": "local",
		"variant":  d.Variant.String(),
		"sticky":   d.Sticky,
	}).Debug("blue/green routing")

	http.SetCookie(w, &http.Cookie{
		Name:     routing.AffinityCookieName,
		Value:    d.Token,
		Path:     "/",
		MaxAge:   int(affinityCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	p.next.ServeHTTP(w, r)
}

// forward proxies the request to the chosen deployment's origin and
// relays the origin's response verbatim, redirects included. Transport
// level failures map to 502, everything else is the origin's own
// response.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, d routing.Decision) {
	req, err := mapRequest(r, d, p.env)
	if err != nil {
		log.Errorf("failed to map forward request to %s: %v", d.Host, err)
		p.incForwardError(d.Host)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	log.WithFields(log.Fields{
		"decision": "forward",
		"variant":  d.Variant.String(),
		"host":     d.Host,
	}).Debug("blue/green routing")

	start := time.Now()
	rsp, err := p.transport.Do(req, forwardSpanName)
	if err != nil {
		log.Errorf("forward to %s failed: %v", d.Host, err)
		p.incForwardError(d.Host)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer rsp.Body.Close()

	p.measureForward(d.Host, start)

	copyHeader(w.Header(), rsp.Header)
	w.WriteHeader(rsp.StatusCode)
	if _, err := io.Copy(w, rsp.Body); err != nil {
		log.Errorf("error streaming forwarded response from %s: %v", d.Host, err)
	}
}

func (p *Proxy) incDecision(decision, variant string) {
	if p.metrics != nil {
		p.metrics.IncDecision(decision, variant)
	}
}

func (p *Proxy) incConfigLoad(outcome string) {
	if p.metrics != nil {
		p.metrics.IncConfigLoad(outcome)
	}
}

func (p *Proxy) incForwardError(host string) {
	if p.metrics != nil {
		p.metrics.IncForwardError(host)
	}
}

func (p *Proxy) measureForward(host string, start time.Time) {
	if p.metrics != nil {
		p.metrics.MeasureForward(host, start)
	}
}
