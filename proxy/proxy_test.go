package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/AlexanderYastrebov/noleak"

	"github.com/vercel-solutions/blue-green-deployments-vercel-3/configstore"
	"github.com/vercel-solutions/blue-green-deployments-vercel-3/routing"
)

func TestMain(m *testing.M) {
	os.Exit(noleak.CheckMain(m))
}

func testEnv() routing.Environment {
	return routing.Environment{
		Mode:           routing.ModeProduction,
		ServingHost:    "blue.example",
		ProductionHost: "www.example.org",
		DeploymentID:   "b1",
	}
}

func testStore(blueURL, greenURL string, greenPercent float64, sticky bool) configstore.Static {
	return configstore.Static{
		routing.ConfigKey: []byte(fmt.Sprintf(
			`{"blue":{"id":"b1","url":%q},"green":{"id":"g1","url":%q},"trafficGreenPercent":%v,"stickySession":%v}`,
			blueURL, greenURL, greenPercent, sticky,
		)),
	}
}

func eligibleRequest() *http.Request {
	r := httptest.NewRequest("GET", "https://www.example.org/", nil)
	r.Header.Set("Sec-Fetch-Dest", "document")
	r.Header.Set("User-Agent", "Mozilla/5.0")
	return r
}

func affinityCookie(rsp *http.Response) *http.Cookie {
	for _, c := range rsp.Cookies() {
		if c.Name == routing.AffinityCookieName {
			return c
		}
	}

	return nil
}

func failingNext(t *testing.T) http.Handler {
	return http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("application handler invoked unexpectedly")
	})
}

func TestForwardToGreen(t *testing.T) {
	var received *http.Request
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Clone(r.Context())
		w.Header().Set("X-Backend", "green")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("green content"))
	}))
	defer backend.Close()

	p := New(Params{
		DataClient:  testStore("blue.example", backend.URL, 100, true),
		Environment: testEnv(),
		Next:        failingNext(t),
	})
	defer p.Close()

	r := eligibleRequest()
	r.Header.Set("X-Custom", "kept")
	r.Header.Set("Connection", "keep-alive")
	r.Header.Set("Te", "trailers")

	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	rsp := w.Result()
	if rsp.StatusCode != http.StatusTeapot {
		t.Fatalf("got status %d, expected %d", rsp.StatusCode, http.StatusTeapot)
	}

	if rsp.Header.Get("X-Backend") != "green" {
		t.Error("backend response headers not relayed")
	}

	if w.Body.String() != "green content" {
		t.Errorf("got body %q", w.Body.String())
	}

	if c := affinityCookie(rsp); c != nil {
		t.Error("affinity cookie set on the forwarding hop")
	}

	if received == nil {
		t.Fatal("backend not called")
	}

	backendHost := received.Host
	if got := received.Header.Get(routing.OverrideHeader); got != backendHost {
		t.Errorf("override header: got %q, expected %q", got, backendHost)
	}

	if got := received.Header.Get("X-Vercel-Protection-Bypass"); got != "unknown" {
		t.Errorf("bypass header: got %q, expected the unknown sentinel", got)
	}

	if received.Header.Get("X-Custom") != "kept" {
		t.Error("end-to-end header not forwarded")
	}

	for _, h := range []string{"Connection", "Te"} {
		if received.Header.Get(h) != "" {
			t.Errorf("hop header %s forwarded", h)
		}
	}
}

func TestForwardCarriesBypassSecret(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Vercel-Protection-Bypass"); got != "s3cr3t" {
			t.Errorf("bypass header: got %q", got)
		}
	}))
	defer backend.Close()

	env := testEnv()
	env.BypassSecret = "s3cr3t"

	p := New(Params{
		DataClient:  testStore("blue.example", backend.URL, 100, false),
		Environment: env,
		Next:        failingNext(t),
	})
	defer p.Close()

	w := httptest.NewRecorder()
	p.ServeHTTP(w, eligibleRequest())

	if w.Code != http.StatusOK {
		t.Errorf("got status %d", w.Code)
	}
}

func TestForwardDoesNotFollowRedirects(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.example/", http.StatusFound)
	}))
	defer backend.Close()

	p := New(Params{
		DataClient:  testStore("blue.example", backend.URL, 100, false),
		Environment: testEnv(),
		Next:        failingNext(t),
	})
	defer p.Close()

	w := httptest.NewRecorder()
	p.ServeHTTP(w, eligibleRequest())

	rsp := w.Result()
	if rsp.StatusCode != http.StatusFound {
		t.Fatalf("got status %d, expected the redirect itself", rsp.StatusCode)
	}

	if got := rsp.Header.Get("Location"); got != "https://elsewhere.example/" {
		t.Errorf("location: got %q", got)
	}
}

func TestForwardFailureMapsToBadGateway(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	backend.Close()

	p := New(Params{
		DataClient:  testStore("blue.example", backend.URL, 100, false),
		Environment: testEnv(),
		Next:        failingNext(t),
	})
	defer p.Close()

	w := httptest.NewRecorder()
	p.ServeHTTP(w, eligibleRequest())

	if w.Code != http.StatusBadGateway {
		t.Errorf("got status %d, expected %d", w.Code, http.StatusBadGateway)
	}
}

func TestStickyTokenServesLocally(t *testing.T) {
	var served bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
		w.Write([]byte("blue content"))
	})

	p := New(Params{
		DataClient:  testStore("blue.example", "green.example", 100, true),
		Environment: testEnv(),
		Next:        next,
		Transport: transportFunc(func(*http.Request) (*http.Response, error) {
			t.Error("forward attempted for the already-serving variant")
			return nil, nil
		}),
	})
	defer p.Close()

	r := eligibleRequest()
	r.AddCookie(&http.Cookie{Name: routing.AffinityCookieName, Value: "b1"})

	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	if !served {
		t.Fatal("application handler not invoked")
	}

	c := affinityCookie(w.Result())
	if c == nil {
		t.Fatal("affinity cookie not refreshed")
	}

	if c.Value != "b1" {
		t.Errorf("cookie value: got %q, expected the existing token", c.Value)
	}

	if c.MaxAge != 86400 || !c.HttpOnly || c.SameSite != http.SameSiteStrictMode || c.Path != "/" {
		t.Errorf("unexpected cookie attributes: %s", c.String())
	}

	if !c.Secure {
		t.Error("cookie not secure on a TLS request")
	}
}

func TestReentryTerminatesLocally(t *testing.T) {
	var served bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
	})

	p := New(Params{
		DataClient:  testStore("blue.example", "green.example", 100, true),
		Environment: testEnv(),
		Next:        next,
		Selector: routing.NewSelectorWithRand(func() float64 {
			t.Error("split executed on a re-entered request")
			return 0
		}),
	})
	defer p.Close()

	// a forwarded request targets the deployment's own hostname
	r := eligibleRequest()
	r.Host = "blue.example"
	r.Header.Set(routing.OverrideHeader, "blue.example")

	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	if !served {
		t.Fatal("application handler not invoked")
	}

	c := affinityCookie(w.Result())
	if c == nil || c.Value != "b1" {
		t.Errorf("expected cookie with own deployment id, got %v", c)
	}
}

func TestReentryWithStickyTokenKeepsToken(t *testing.T) {
	p := New(Params{
		DataClient:  testStore("blue.example", "green.example", 100, true),
		Environment: testEnv(),
		Next:        http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
	})
	defer p.Close()

	r := eligibleRequest()
	r.Host = "blue.example"
	r.Header.Set(routing.OverrideHeader, "blue.example")
	r.AddCookie(&http.Cookie{Name: routing.AffinityCookieName, Value: "g1"})

	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	c := affinityCookie(w.Result())
	if c == nil || c.Value != "g1" {
		t.Errorf("expected existing valid token to be re-asserted, got %v", c)
	}
}

func TestReentryWithoutConfiguration(t *testing.T) {
	p := New(Params{
		DataClient:  configstore.Static{},
		Environment: testEnv(),
		Next:        http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
	})
	defer p.Close()

	r := eligibleRequest()
	r.Host = "blue.example"
	r.Header.Set(routing.OverrideHeader, "blue.example")

	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	c := affinityCookie(w.Result())
	if c == nil || c.Value != "b1" {
		t.Errorf("expected cookie with own deployment id, got %v", c)
	}
}

func TestConfigurationAbsentPassesThrough(t *testing.T) {
	var served bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
	})

	p := New(Params{
		DataClient:  configstore.Static{},
		Environment: testEnv(),
		Next:        next,
		Transport: transportFunc(func(*http.Request) (*http.Response, error) {
			t.Error("forward attempted without configuration")
			return nil, nil
		}),
	})
	defer p.Close()

	w := httptest.NewRecorder()
	p.ServeHTTP(w, eligibleRequest())

	if !served {
		t.Fatal("application handler not invoked")
	}

	if affinityCookie(w.Result()) != nil {
		t.Error("cookie set without configuration")
	}
}

func TestInvalidConfigurationPassesThrough(t *testing.T) {
	var served bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
	})

	p := New(Params{
		DataClient: configstore.Static{
			routing.ConfigKey: []byte(`{"blue":{"id":"d1"},"green":{"id":"d1"},"trafficGreenPercent":50}`),
		},
		Environment: testEnv(),
		Next:        next,
	})
	defer p.Close()

	w := httptest.NewRecorder()
	p.ServeHTTP(w, eligibleRequest())

	if !served {
		t.Fatal("application handler not invoked")
	}

	if affinityCookie(w.Result()) != nil {
		t.Error("cookie set for invalid configuration")
	}
}

func TestIneligibleRequestBypassesRouting(t *testing.T) {
	store := countingStore{Static: testStore("blue.example", "green.example", 100, true)}

	var served bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
	})

	p := New(Params{
		DataClient:  &store,
		Environment: testEnv(),
		Next:        next,
	})
	defer p.Close()

	r := eligibleRequest()
	r.Method = "POST"

	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	if !served {
		t.Fatal("application handler not invoked")
	}

	if store.calls != 0 {
		t.Error("configuration fetched for an ineligible request")
	}

	if affinityCookie(w.Result()) != nil {
		t.Error("cookie set for an ineligible request")
	}
}

func TestNilDataClientDisablesRouting(t *testing.T) {
	var served bool
	p := New(Params{
		Environment: testEnv(),
		Next: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			served = true
		}),
	})
	defer p.Close()

	w := httptest.NewRecorder()
	p.ServeHTTP(w, eligibleRequest())

	if !served {
		t.Fatal("application handler not invoked")
	}
}

type transportFunc func(*http.Request) (*http.Response, error)

func (f transportFunc) Do(req *http.Request, _ string) (*http.Response, error) {
	return f(req)
}

type countingStore struct {
	configstore.Static
	calls int
}

func (s *countingStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.calls++
	return s.Static.Get(ctx, key)
}
