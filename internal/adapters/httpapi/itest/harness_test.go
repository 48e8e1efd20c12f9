package itest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Lumos-Programming/profile-api/internal/adapters/httpapi"
	memclock "github.com/Lumos-Programming/profile-api/internal/adapters/memory/clock"
	memidempotency "github.com/Lumos-Programming/profile-api/internal/adapters/memory/idempotency"
	memprofilerepo "github.com/Lumos-Programming/profile-api/internal/adapters/memory/profilerepo"
	pgidempotency "github.com/Lumos-Programming/profile-api/internal/adapters/postgres/idempotency"
	pgprofilerepo "github.com/Lumos-Programming/profile-api/internal/adapters/postgres/profilerepo"
	postgres_testutil "github.com/Lumos-Programming/profile-api/internal/adapters/postgres/testutil"
	"github.com/Lumos-Programming/profile-api/internal/app/profiles"
	"github.com/Lumos-Programming/profile-api/internal/platform/markdown"
	idempotencyport "github.com/Lumos-Programming/profile-api/internal/ports/out/idempotency"
	profilerepoport "github.com/Lumos-Programming/profile-api/internal/ports/out/profilerepo"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	const issuer = "itest-issuer"
	clk := memclock.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var (
		profileRepo profilerepoport.Repository
		idemStore   idempotencyport.Store
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		profileRepo = pgprofilerepo.NewRepo(pool, issuer)
		idemStore = pgidempotency.NewStore(pool, issuer, clk, 24*time.Hour)
	case backendMemory:
		profileRepo = memprofilerepo.NewRepo()
		idemStore = memidempotency.NewStore(clk, 24*time.Hour)
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := profiles.NewService(profileRepo, clk, profiles.Options{Capabilities: markdown.Minimal, Logger: log})
	api := httpapi.NewServer(svc, idemStore, clk, log, nil)

	// Empty default subject: requests MUST provide X-Debug-Subject.
	authMW := httpapi.NewDevAuthMiddleware("")
	handler := httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{AuthMiddleware: authMW})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, subject string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, s.url(path), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", status, wantStatus, string(body))
	}
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}
