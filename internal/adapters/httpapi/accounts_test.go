package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Lumos-Programming/profile-api/internal/adapters/httpclient/lineoauth"
	memclock "github.com/Lumos-Programming/profile-api/internal/adapters/memory/clock"
	memprofilerepo "github.com/Lumos-Programming/profile-api/internal/adapters/memory/profilerepo"
	"github.com/Lumos-Programming/profile-api/internal/app/profiles"
	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/accountlink"
)

// newLinkRouter serves the API with LINE linking against a fake LINE platform
// that accepts only the code "good".
func newLinkRouter(t *testing.T) *testAPI {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("code") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"at","expires_in":60}`)
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"userId":"U-alice","displayName":"alice"}`)
	})
	line := httptest.NewServer(mux)
	t.Cleanup(line.Close)

	clk := memclock.NewManualClock(time.Unix(100, 0).UTC())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := profiles.NewService(memprofilerepo.NewRepo(), clk, profiles.Options{
		Logger: log,
		AccountProviders: map[domain.ServiceID]accountlink.Provider{
			domain.ServiceLINE: lineoauth.New(lineoauth.Options{
				ChannelID:     "1650000000",
				ChannelSecret: "secret",
				RedirectURI:   "https://profile.example.org/cb",
				TokenURL:      line.URL + "/token",
				ProfileURL:    line.URL + "/profile",
			}),
		},
	})
	api := NewServer(svc, nil, clk, log, nil)
	api.LinkStates = map[domain.ServiceID]string{domain.ServiceLINE: "st-1"}
	return &testAPI{h: NewRouterWithOptions(api, RouterOptions{AuthMiddleware: NewDevAuthMiddleware("")})}
}

func TestLinkAccountCallback_ConnectsLINE(t *testing.T) {
	t.Parallel()

	api := newLinkRouter(t)
	if put := api.do(t, http.MethodPut, "/api/profile/basic-info", "alice", aliceBody, nil); put.Code != http.StatusOK {
		t.Fatalf("PUT status=%d body=%s", put.Code, put.Body.String())
	}
	rec := api.do(t, http.MethodGet, "/api/accounts/line/callback?code=good&state=st-1", "alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status=%d body=%s", rec.Code, rec.Body.String())
	}
	got := mustUnmarshal[struct {
		LastName string `json:"last_name"`
		Accounts map[string]struct {
			Connected  bool   `json:"connected"`
			ExternalID string `json:"external_id"`
		} `json:"accounts"`
	}](t, rec.Body.Bytes())
	if got.LastName != "田中" || !got.Accounts["line"].Connected || got.Accounts["line"].ExternalID != "U-alice" {
		t.Fatalf("callback body=%s", rec.Body.String())
	}

	// A save without accounts keeps the link.
	body := aliceBody[:strings.Index(aliceBody, `,
  "accounts"`)] + "\n}"
	if put := api.do(t, http.MethodPut, "/api/profile/basic-info", "alice", body, nil); put.Code != http.StatusOK {
		t.Fatalf("PUT without accounts status=%d body=%s", put.Code, put.Body.String())
	}
	get := api.do(t, http.MethodGet, "/api/profile/basic-info", "alice", "", nil)
	if !strings.Contains(get.Body.String(), `"external_id":"U-alice"`) {
		t.Fatalf("link lost after save without accounts: %s", get.Body.String())
	}
}

func TestLinkAccountCallback_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		path    string
		subject string
		status  int
		code    string
	}{
		{"missing code", "/api/accounts/line/callback?state=st-1", "alice", http.StatusBadRequest, "INVALID_PARAMETER"},
		{"wrong state", "/api/accounts/line/callback?code=good&state=forged", "alice", http.StatusBadRequest, "INVALID_STATE"},
		{"rejected code", "/api/accounts/line/callback?code=reused&state=st-1", "alice", http.StatusBadRequest, "LINK_REJECTED"},
		{"unlinkable service", "/api/accounts/github/callback?code=good", "alice", http.StatusNotFound, "SERVICE_NOT_LINKABLE"},
		{"no subject", "/api/accounts/line/callback?code=good&state=st-1", "", http.StatusUnauthorized, "UNAUTHORIZED"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			api := newLinkRouter(t)
			rec := api.do(t, http.MethodGet, tc.path, tc.subject, "", nil)
			if rec.Code != tc.status {
				t.Fatalf("status=%d, want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			env := mustUnmarshal[ErrorResponse](t, rec.Body.Bytes())
			if env.Error.Code != tc.code {
				t.Fatalf("code=%q, want %q", env.Error.Code, tc.code)
			}
		})
	}
}
