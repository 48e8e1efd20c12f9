package lineoauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Lumos-Programming/profile-api/internal/ports/out/accountlink"
)

type fakeLINE struct {
	tokenStatus   int
	profileStatus int
	form          url.Values
	bearer        string
}

func (f *fakeLINE) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v2.1/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.form = r.PostForm
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"at-1","expires_in":2592000,"refresh_token":"rt-1"}`)
	})
	mux.HandleFunc("/v2/profile", func(w http.ResponseWriter, r *http.Request) {
		f.bearer = r.Header.Get("Authorization")
		if f.profileStatus != 0 {
			w.WriteHeader(f.profileStatus)
			return
		}
		_, _ = io.WriteString(w, `{"userId":"U4af4980629","displayName":"たろう"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{
		ChannelID:     "1650000000",
		ChannelSecret: "secret",
		RedirectURI:   "https://profile.example.org/cb",
		TokenURL:      srv.URL + "/oauth2/v2.1/token",
		ProfileURL:    srv.URL + "/v2/profile",
	})
}

func TestClient_Exchange(t *testing.T) {
	t.Parallel()

	f := &fakeLINE{}
	id, err := newTestClient(f.server(t)).Exchange(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("Exchange() err=%v", err)
	}
	if id.ExternalID != "U4af4980629" || id.DisplayName != "たろう" {
		t.Fatalf("Identity=%+v", id)
	}
	if f.form.Get("grant_type") != "authorization_code" || f.form.Get("code") != "code-1" ||
		f.form.Get("client_id") != "1650000000" || f.form.Get("client_secret") != "secret" ||
		f.form.Get("redirect_uri") != "https://profile.example.org/cb" {
		t.Fatalf("token form=%v", f.form)
	}
	if f.bearer != "Bearer at-1" {
		t.Fatalf("profile Authorization=%q", f.bearer)
	}
}

func TestClient_Exchange_Errors(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		_, err := New(Options{ChannelID: "1"}).Exchange(context.Background(), "code")
		if !errors.Is(err, accountlink.ErrNotConfigured) {
			t.Fatalf("Exchange() err=%v", err)
		}
	})

	t.Run("token rejected", func(t *testing.T) {
		t.Parallel()
		f := &fakeLINE{tokenStatus: http.StatusBadRequest}
		_, err := newTestClient(f.server(t)).Exchange(context.Background(), "used")
		var re *accountlink.RejectedError
		if !errors.As(err, &re) || re.Step != "token" || re.StatusCode != http.StatusBadRequest {
			t.Fatalf("Exchange() err=%v", err)
		}
	})

	t.Run("profile rejected", func(t *testing.T) {
		t.Parallel()
		f := &fakeLINE{profileStatus: http.StatusUnauthorized}
		_, err := newTestClient(f.server(t)).Exchange(context.Background(), "code")
		var re *accountlink.RejectedError
		if !errors.As(err, &re) || re.Step != "profile" {
			t.Fatalf("Exchange() err=%v", err)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		t.Parallel()
		f := &fakeLINE{tokenStatus: http.StatusBadGateway}
		_, err := newTestClient(f.server(t)).Exchange(context.Background(), "code")
		var re *accountlink.RejectedError
		if err == nil || errors.As(err, &re) {
			t.Fatalf("Exchange() err=%v, want a plain upstream error", err)
		}
	})
}
