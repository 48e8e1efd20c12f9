package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Lumos-Programming/profile-api/internal/domain"
	idempotencyport "github.com/Lumos-Programming/profile-api/internal/ports/out/idempotency"
	profilerepoport "github.com/Lumos-Programming/profile-api/internal/ports/out/profilerepo"
)

type CleanupFunc = func()

type ProfileRepoFactory func(t *testing.T) (profilerepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:     idempotencyport.Key("k-" + uuid.NewString()),
		Subject: domain.SubjectID("sub-1"),
		Method:  "PUT",
		Route:   "/api/profile/basic-info",
	}
	rec := idempotencyport.Record{
		BodyHash:    "hash-abc",
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"nickname":"taro"}`),
		CreatedAt:   time.Unix(1000, 0).UTC(),
	}

	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v", ok, err)
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if got.BodyHash != "hash-abc" || string(got.Body) != `{"nickname":"taro"}` ||
		got.ContentType != "application/json" || got.StatusCode != 200 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Scoped by subject and route.
	other := fp
	other.Subject = "sub-2"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get other subject: ok=%v err=%v", ok, err)
	}
	other = fp
	other.Route = "/api/members"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get other route: ok=%v err=%v", ok, err)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.BodyHash = "hash-def"
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || got.BodyHash != "hash-def" {
		t.Fatalf("expected overwritten record, got ok=%v err=%v hash=%q", ok, err, got.BodyHash)
	}
}

func newProfile(sub string, created time.Time, values map[domain.FieldID]string) profilerepoport.Profile {
	return profilerepoport.Profile{
		MemberID:   domain.MemberID(uuid.NewString()),
		Subject:    domain.SubjectID(sub),
		Values:     values,
		Visibility: map[domain.GroupID]bool{domain.GroupName: true, domain.GroupNickname: false},
		Accounts: []domain.AccountConnection{
			{Service: domain.ServiceLINE, Connected: true, ExternalID: "U-" + sub},
			{Service: domain.ServiceDiscord},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func RunProfileRepo(t *testing.T, newRepo ProfileRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	// Subjects are unique per run so shared databases do not collide.
	run := uuid.NewString()[:8]
	t0 := time.Unix(1000, 0).UTC()

	a := newProfile("sub-a-"+run, t0, map[domain.FieldID]string{
		domain.FieldLastName:  "田中",
		domain.FieldFirstName: "太郎",
		domain.FieldNickname:  "たろう",
	})
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	got, err := repo.GetByID(ctx, a.MemberID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Subject != a.Subject || got.Values[domain.FieldLastName] != "田中" ||
		!got.Visibility[domain.GroupName] || got.Visibility[domain.GroupNickname] {
		t.Fatalf("GetByID()=%+v", got)
	}
	if len(got.Accounts) != 2 || !got.Accounts[0].Connected || got.Accounts[0].ExternalID != "U-"+string(a.Subject) {
		t.Fatalf("accounts=%+v", got.Accounts)
	}
	if !got.CreatedAt.Equal(t0) {
		t.Fatalf("CreatedAt=%v, want %v", got.CreatedAt, t0)
	}
	bySub, err := repo.GetBySubject(ctx, a.Subject)
	if err != nil {
		t.Fatalf("GetBySubject: %v", err)
	}
	if bySub.MemberID != a.MemberID {
		t.Fatalf("GetBySubject().MemberID=%q, want %q", bySub.MemberID, a.MemberID)
	}

	// Not found.
	if _, err := repo.GetByID(ctx, domain.MemberID(uuid.NewString())); !errors.Is(err, profilerepoport.ErrNotFound) {
		t.Fatalf("GetByID(unknown) err=%v", err)
	}
	if _, err := repo.GetBySubject(ctx, domain.SubjectID("nobody-"+run)); !errors.Is(err, profilerepoport.ErrNotFound) {
		t.Fatalf("GetBySubject(unknown) err=%v", err)
	}

	// Subject uniqueness.
	dup := newProfile(string(a.Subject), t0, nil)
	if err := repo.Create(ctx, dup); !errors.Is(err, profilerepoport.ErrSubjectAlreadyBound) {
		t.Fatalf("Create duplicate subject err=%v", err)
	}
	// ID uniqueness.
	sameID := newProfile("sub-x-"+run, t0, nil)
	sameID.MemberID = a.MemberID
	if err := repo.Create(ctx, sameID); !errors.Is(err, profilerepoport.ErrAlreadyExists) {
		t.Fatalf("Create duplicate id err=%v", err)
	}

	// Whole-record replace.
	repl := a.Clone()
	repl.Values = map[domain.FieldID]string{domain.FieldNickname: "じろう"}
	repl.Visibility = map[domain.GroupID]bool{domain.GroupNickname: true}
	repl.Accounts = nil
	repl.UpdatedAt = t0.Add(time.Hour)
	if err := repo.Replace(ctx, repl); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err = repo.GetByID(ctx, a.MemberID)
	if err != nil {
		t.Fatalf("GetByID after Replace: %v", err)
	}
	if got.Values[domain.FieldNickname] != "じろう" || got.Values[domain.FieldLastName] != "" {
		t.Fatalf("values after Replace=%+v", got.Values)
	}
	if !got.Visibility[domain.GroupNickname] || got.Visibility[domain.GroupName] {
		t.Fatalf("visibility after Replace=%+v", got.Visibility)
	}
	if len(got.Accounts) != 0 {
		t.Fatalf("accounts after Replace=%+v", got.Accounts)
	}
	if !got.CreatedAt.Equal(t0) || !got.UpdatedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("timestamps after Replace created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}

	// Replace cannot rebind the subject or create.
	rebind := repl.Clone()
	rebind.Subject = domain.SubjectID("sub-other-" + run)
	if err := repo.Replace(ctx, rebind); !errors.Is(err, profilerepoport.ErrSubjectAlreadyBound) {
		t.Fatalf("Replace rebind err=%v", err)
	}
	missing := newProfile("sub-m-"+run, t0, nil)
	if err := repo.Replace(ctx, missing); !errors.Is(err, profilerepoport.ErrNotFound) {
		t.Fatalf("Replace missing err=%v", err)
	}

	// List ordering: CreatedAt ascending.
	b := newProfile("sub-b-"+run, t0.Add(-time.Minute), map[domain.FieldID]string{domain.FieldNickname: "b"})
	c := newProfile("sub-c-"+run, t0.Add(time.Minute), map[domain.FieldID]string{domain.FieldNickname: "c"})
	for _, p := range []profilerepoport.Profile{c, b} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create %s: %v", p.Subject, err)
		}
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var order []domain.MemberID
	for _, p := range list {
		switch p.MemberID {
		case a.MemberID, b.MemberID, c.MemberID:
			order = append(order, p.MemberID)
		}
	}
	want := []domain.MemberID{b.MemberID, a.MemberID, c.MemberID}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Fatalf("List order=%v, want %v", order, want)
	}
}
