package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Lumos-Programming/profile-api/internal/adapters/httpapi"
	memclock "github.com/Lumos-Programming/profile-api/internal/adapters/memory/clock"
	memidempotency "github.com/Lumos-Programming/profile-api/internal/adapters/memory/idempotency"
	memprofilerepo "github.com/Lumos-Programming/profile-api/internal/adapters/memory/profilerepo"
	"github.com/Lumos-Programming/profile-api/internal/app/profiles"
)

func newTestAPI(t *testing.T) string {
	t.Helper()
	clk := memclock.NewManualClock(time.Unix(100, 0).UTC())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := profiles.NewService(memprofilerepo.NewRepo(), clk, profiles.Options{Logger: log})
	api := httpapi.NewServer(svc, memidempotency.NewStore(clk, time.Hour), clk, log, nil)
	srv := httptest.NewServer(httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{
		AuthMiddleware: httpapi.NewDevAuthMiddleware(""),
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/api/profile/basic-info"
}

func run(t *testing.T, endpoint string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--endpoint", endpoint, "--subject", "cli|alice"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestProfilectl_EditThenShow(t *testing.T) {
	endpoint := newTestAPI(t)

	out, err := run(t, endpoint, "edit",
		"--set", "last_name=田中", "--set", "firstName=太郎", "--set", "nickname=たろう",
		"--show", "nickname", "--connect", "line=U-1")
	if err != nil {
		t.Fatalf("edit err=%v", err)
	}
	if !strings.HasPrefix(out, "saved (status 200") {
		t.Fatalf("edit out=%q", out)
	}

	out, err = run(t, endpoint, "show", "--as", "other")
	if err != nil {
		t.Fatalf("show err=%v", err)
	}
	for _, want := range []string{"viewer: other", "name         非公開", "nickname     たろう", "line         非公開"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, endpoint, "show")
	if err != nil || !strings.Contains(out, "name         田中 太郎") || !strings.Contains(out, "connected (U-1)") {
		t.Fatalf("owner show err=%v out:\n%s", err, out)
	}

	out, err = run(t, endpoint, "status")
	if err != nil || strings.TrimSpace(out) != "incomplete: connect discord" {
		t.Fatalf("status err=%v out=%q", err, out)
	}
}

func TestProfilectl_EditIsAllOrNothing(t *testing.T) {
	endpoint := newTestAPI(t)

	if _, err := run(t, endpoint, "edit", "--set", "nickname=x", "--set", "faculty=魔法学部"); err == nil {
		t.Fatalf("expected error for invalid faculty")
	}
	if _, err := run(t, endpoint, "edit", "--set", "nickname=x", "--show", "no_such_group"); err == nil {
		t.Fatalf("expected error for unknown group")
	}
	out, err := run(t, endpoint, "show")
	if err != nil || strings.Contains(out, "nickname     x") {
		t.Fatalf("partial edit saved: err=%v\n%s", err, out)
	}
}

func TestProfilectl_Bio(t *testing.T) {
	endpoint := newTestAPI(t)

	if _, err := run(t, endpoint, "edit", "--set", "bio=**hi** ~~old~~"); err != nil {
		t.Fatalf("edit err=%v", err)
	}
	out, err := run(t, endpoint, "bio", "--tree")
	if err != nil {
		t.Fatalf("bio err=%v", err)
	}
	if !strings.Contains(out, "strong") || strings.Contains(out, "strikethrough") {
		t.Fatalf("minimal tree:\n%s", out)
	}
	out, err = run(t, endpoint, "bio", "--tree", "--caps", "extended")
	if err != nil || !strings.Contains(out, "strikethrough") {
		t.Fatalf("extended tree err=%v:\n%s", err, out)
	}
}

func TestProfilectl_LoadFailure(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	if _, err := run(t, url, "show"); err == nil || !strings.Contains(err.Error(), "load profile") {
		t.Fatalf("err=%v", err)
	}
}
