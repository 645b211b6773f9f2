package net

import (
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// Options are mostly passed to the http.Transport of the same name.
// Options.Timeout can be used as default for all timeouts that are not
// set. The Tracer may be nil to get the opentracing NoopTracer.
type Options struct {
	// DisableKeepAlives see https://golang.org/pkg/net/http/#Transport.DisableKeepAlives
	DisableKeepAlives bool
	// ForceAttemptHTTP2 see https://golang.org/pkg/net/http/#Transport.ForceAttemptHTTP2
	ForceAttemptHTTP2 bool
	// MaxIdleConns see https://golang.org/pkg/net/http/#Transport.MaxIdleConns
	MaxIdleConns int
	// MaxIdleConnsPerHost see https://golang.org/pkg/net/http/#Transport.MaxIdleConnsPerHost
	MaxIdleConnsPerHost int
	// Timeout sets all Timeouts, that are set to 0, to the given
	// value. Basically it's the default timeout value.
	Timeout time.Duration
	// TLSHandshakeTimeout see
	// https://golang.org/pkg/net/http/#Transport.TLSHandshakeTimeout,
	// if not set or set to 0, its using Options.Timeout.
	TLSHandshakeTimeout time.Duration
	// IdleConnTimeout see
	// https://golang.org/pkg/net/http/#Transport.IdleConnTimeout,
	// if not set or set to 0, its using Options.Timeout.
	IdleConnTimeout time.Duration
	// ResponseHeaderTimeout see
	// https://golang.org/pkg/net/http/#Transport.ResponseHeaderTimeout,
	// if not set or set to 0, its using Options.Timeout.
	ResponseHeaderTimeout time.Duration
	// ExpectContinueTimeout see
	// https://golang.org/pkg/net/http/#Transport.ExpectContinueTimeout,
	// if not set or set to 0, its using Options.Timeout.
	ExpectContinueTimeout time.Duration
	// Tracer
	Tracer opentracing.Tracer
}

// Transport is an http.RoundTripper for the cross-deployment forward.
// It never follows redirects, so origin responses, including redirects,
// are observed by the caller exactly as produced.
type Transport struct {
	tr     *http.Transport
	tracer opentracing.Tracer
}

func NewTransport(options Options, quit <-chan struct{}) *Transport {
	if options.Tracer == nil {
		options.Tracer = &opentracing.NoopTracer{}
	}

	if options.TLSHandshakeTimeout == 0 {
		options.TLSHandshakeTimeout = options.Timeout
	}
	if options.IdleConnTimeout == 0 {
		options.IdleConnTimeout = options.Timeout
	}
	if options.ResponseHeaderTimeout == 0 {
		options.ResponseHeaderTimeout = options.Timeout
	}
	if options.ExpectContinueTimeout == 0 {
		options.ExpectContinueTimeout = options.Timeout
	}

	htransport := &http.Transport{
		DisableKeepAlives:     options.DisableKeepAlives,
		ForceAttemptHTTP2:     options.ForceAttemptHTTP2,
		MaxIdleConns:          options.MaxIdleConns,
		MaxIdleConnsPerHost:   options.MaxIdleConnsPerHost,
		TLSHandshakeTimeout:   options.TLSHandshakeTimeout,
		IdleConnTimeout:       options.IdleConnTimeout,
		ResponseHeaderTimeout: options.ResponseHeaderTimeout,
		ExpectContinueTimeout: options.ExpectContinueTimeout,
	}

	if options.IdleConnTimeout > 0 {
		go func() {
			for {
				select {
				case <-time.After(options.IdleConnTimeout):
					htransport.CloseIdleConnections()
				case <-quit:
					htransport.CloseIdleConnections()
					return
				}
			}
		}()
	}

	return &Transport{
		tr:     htransport,
		tracer: options.Tracer,
	}
}

// implement RoundTripper interface
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.tr.RoundTrip(req)
}

func (t *Transport) CloseIdleConnections() {
	t.tr.CloseIdleConnections()
}

// Do executes the request roundtrip wrapped in a span with the given
// name, as a child of a span found in the request context, if any. The
// span context is injected into the outgoing headers.
func (t *Transport) Do(req *http.Request, spanName string) (*http.Response, error) {
	var span opentracing.Span
	if parent := opentracing.SpanFromContext(req.Context()); parent != nil {
		span = t.tracer.StartSpan(spanName, opentracing.ChildOf(parent.Context()))
	} else {
		span = t.tracer.StartSpan(spanName)
	}
	defer span.Finish()

	ext.SpanKindRPCClient.Set(span)
	ext.HTTPMethod.Set(span, req.Method)
	ext.HTTPUrl.Set(span, req.URL.String())
	_ = t.tracer.Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))

	req = req.WithContext(opentracing.ContextWithSpan(req.Context(), span))

	rsp, err := t.tr.RoundTrip(req)
	if err != nil {
		ext.Error.Set(span, true)
		return nil, err
	}

	ext.HTTPStatusCode.Set(span, uint16(rsp.StatusCode))
	return rsp, nil
}
