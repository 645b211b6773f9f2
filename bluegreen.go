/*
Package bluegreen wires the per-request blue/green traffic router into
a runnable sidecar daemon.

The router fronts a local application origin. For each eligible
request it decides between the blue and the green deployment, honors
session affinity once a choice was made, and transparently proxies
cross-deployment requests while marking them against re-routing. See
the routing and proxy packages for the decision and forwarding logic.

Platform-reserved path prefixes (API routes, built-in static assets,
the favicon) are dispatched straight to the application, upstream of
the routing logic.
*/
package bluegreen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"

	"github.com/vercel-solutions/blue-green-deployments-vercel-3/configstore"
	"github.com/vercel-solutions/blue-green-deployments-vercel-3/logging"
	"github.com/vercel-solutions/blue-green-deployments-vercel-3/metrics"
	"github.com/vercel-solutions/blue-green-deployments-vercel-3/proxy"
	"github.com/vercel-solutions/blue-green-deployments-vercel-3/routing"
)

// Options to start the router daemon.
type Options struct {
	// Address the router listens on.
	Address string

	// ApplicationURL is the base URL of the local application
	// origin served behind the router.
	ApplicationURL string

	// MetricsListener is the network address exposing the /metrics
	// endpoint, empty disables it.
	MetricsListener string

	// RuntimeMetrics enables the Go runtime and process collectors.
	RuntimeMetrics bool

	// ExcludedPrefixes are dispatched to the application without
	// routing.
	ExcludedPrefixes []string

	// ForwardTimeout of the cross-deployment forward.
	ForwardTimeout time.Duration

	// ApplicationLogPrefix for application log entries.
	ApplicationLogPrefix string

	// ApplicationLogLevel, one of the logrus level names.
	ApplicationLogLevel string

	// ApplicationLogJSONEnabled switches the log format to JSON.
	ApplicationLogJSONEnabled bool

	// EdgeConfigURL is the edge config endpoint holding the
	// blue/green configuration. When set, it takes precedence over
	// Redis.
	EdgeConfigURL string

	// EdgeConfigToken is the bearer token for the edge config
	// endpoint.
	EdgeConfigToken string

	// RedisAddr is the host:port of a Redis instance holding the
	// blue/green configuration.
	RedisAddr string

	// RedisPassword of the Redis instance.
	RedisPassword string

	// RedisDB holding the blue/green configuration.
	RedisDB int

	// Environment of the running instance.
	Environment routing.Environment

	// Tracer for the outbound forward spans, may be nil.
	Tracer opentracing.Tracer
}

// Dispatch returns a handler sending requests under one of the
// reserved path prefixes to the application directly, everything else
// to the routed handler. A prefix with a trailing slash matches the
// subtree, one without matches the exact path or its subtree.
func Dispatch(prefixes []string, application, routed http.Handler) http.Handler {
	if len(prefixes) == 0 {
		return routed
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range prefixes {
			if matchesPrefix(r.URL.Path, prefix) {
				application.ServeHTTP(w, r)
				return
			}
		}

		routed.ServeHTTP(w, r)
	})
}

func matchesPrefix(path, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}

	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// createDataClient selects the configuration store client from the
// options. The returned close function may be called on shutdown. A
// nil client disables routing entirely.
func createDataClient(o Options) (routing.DataClient, func()) {
	if o.EdgeConfigURL != "" {
		return configstore.NewHTTP(configstore.HTTPOptions{
			BaseURL: o.EdgeConfigURL,
			Token:   o.EdgeConfigToken,
		}), func() {}
	}

	if o.RedisAddr != "" {
		c := configstore.NewRedis(configstore.RedisOptions{
			Addr:     o.RedisAddr,
			Password: o.RedisPassword,
			DB:       o.RedisDB,
		})

		return c, func() {
			if err := c.Close(); err != nil {
				log.Errorf("failed to close redis client: %v", err)
			}
		}
	}

	return nil, func() {}
}

// Run starts the router daemon and blocks until the process receives
// SIGINT or SIGTERM.
func Run(o Options) error {
	if err := logging.Init(logging.Options{
		ApplicationLogPrefix:      o.ApplicationLogPrefix,
		ApplicationLogLevel:       o.ApplicationLogLevel,
		ApplicationLogJSONEnabled: o.ApplicationLogJSONEnabled,
	}); err != nil {
		return err
	}

	appURL, err := url.Parse(o.ApplicationURL)
	if err != nil {
		return err
	}

	client, closeClient := createDataClient(o)
	defer closeClient()

	if client == nil {
		log.Warn("no configuration store bound, blue/green routing is disabled")
	}

	m := metrics.New(metrics.Options{EnableRuntimeMetrics: o.RuntimeMetrics})

	application := httputil.NewSingleHostReverseProxy(appURL)
	router := proxy.New(proxy.Params{
		DataClient:     client,
		Environment:    o.Environment,
		Next:           application,
		ForwardTimeout: o.ForwardTimeout,
		Tracer:         o.Tracer,
		Metrics:        m,
	})
	defer router.Close()

	handler := Dispatch(o.ExcludedPrefixes, application, router)

	if o.MetricsListener != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())

			if err := http.ListenAndServe(o.MetricsListener, mux); err != nil {
				log.Errorf("metrics listener failed: %v", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              o.Address,
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	idle := make(chan struct{})
	go func() {
		sig := <-sigs
		log.Infof("received %v, shutting down", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Errorf("graceful shutdown failed: %v", err)
		}

		close(idle)
	}()

	log.Infof("listening on %s, serving application at %s", o.Address, o.ApplicationURL)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-idle
	return nil
}
