package configstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPGet(t *testing.T) {
	const value = `{"trafficGreenPercent":30}`

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected authorization header: %q", auth)
		}

		switch r.URL.Path {
		case "/item/blue-green-configuration":
			w.Write([]byte(value))
		case "/item/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer backend.Close()

	c := NewHTTP(HTTPOptions{BaseURL: backend.URL + "/", Token: "secret"})

	t.Run("found", func(t *testing.T) {
		raw, found, err := c.Get(context.Background(), "blue-green-configuration")
		if err != nil {
			t.Fatal(err)
		}

		if !found {
			t.Fatal("item not found")
		}

		if string(raw) != value {
			t.Errorf("got %q, expected %q", raw, value)
		}
	})

	t.Run("absent on 404", func(t *testing.T) {
		_, found, err := c.Get(context.Background(), "gone")
		if err != nil {
			t.Fatal(err)
		}

		if found {
			t.Error("missing item reported as found")
		}
	})

	t.Run("error on unexpected status", func(t *testing.T) {
		if _, _, err := c.Get(context.Background(), "boom"); err == nil {
			t.Error("expected error for 500 response")
		}
	})
}

func TestHTTPGetUnreachable(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	c := NewHTTP(HTTPOptions{BaseURL: backend.URL})
	if _, _, err := c.Get(context.Background(), "any"); err == nil {
		t.Error("expected transport error")
	}
}

func TestStaticGet(t *testing.T) {
	s := Static{"blue-green-configuration": []byte(`{}`)}

	if _, found, err := s.Get(context.Background(), "blue-green-configuration"); err != nil || !found {
		t.Errorf("got found=%v, err=%v", found, err)
	}

	if _, found, _ := s.Get(context.Background(), "other"); found {
		t.Error("missing key reported as found")
	}
}
