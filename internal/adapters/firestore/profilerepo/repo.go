// Package profilerepo stores profiles in Cloud Firestore. Each profile is one
// document keyed by member id; a second collection maps subjects to member ids so
// that subject uniqueness can be checked inside a transaction.
package profilerepo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/profilerepo"
)

const DefaultCollection = "profiles"

type Repo struct {
	client   *firestore.Client
	profiles string
	subjects string
}

// NewRepo uses collection for profile documents and collection+"_subjects" for the
// subject index. An empty collection means DefaultCollection.
func NewRepo(client *firestore.Client, collection string) *Repo {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Repo{client: client, profiles: collection, subjects: collection + "_subjects"}
}

type accountDoc struct {
	Service    string `firestore:"service"`
	Connected  bool   `firestore:"connected"`
	ExternalID string `firestore:"external_id,omitempty"`
}

type profileDoc struct {
	Subject    string            `firestore:"subject"`
	Values     map[string]string `firestore:"values"`
	Visibility map[string]bool   `firestore:"visibility"`
	Accounts   []accountDoc      `firestore:"accounts"`
	CreatedAt  time.Time         `firestore:"created_at"`
	UpdatedAt  time.Time         `firestore:"updated_at"`
}

type subjectDoc struct {
	MemberID string `firestore:"member_id"`
}

func (r *Repo) Create(ctx context.Context, p profilerepo.Profile) error {
	if r.client == nil {
		return errors.New("nil firestore client")
	}
	if p.MemberID == "" {
		return profilerepo.ErrAlreadyExists
	}
	profRef := r.client.Collection(r.profiles).Doc(string(p.MemberID))
	subRef := r.client.Collection(r.subjects).Doc(subjectKey(p.Subject))

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(profRef); err == nil {
			return profilerepo.ErrAlreadyExists
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if _, err := tx.Get(subRef); err == nil {
			return profilerepo.ErrSubjectAlreadyBound
		} else if status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Create(subRef, subjectDoc{MemberID: string(p.MemberID)}); err != nil {
			return err
		}
		return tx.Create(profRef, toDoc(p))
	})
}

func (r *Repo) Replace(ctx context.Context, p profilerepo.Profile) error {
	if r.client == nil {
		return errors.New("nil firestore client")
	}
	if p.MemberID == "" {
		return profilerepo.ErrNotFound
	}
	ref := r.client.Collection(r.profiles).Doc(string(p.MemberID))

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return profilerepo.ErrNotFound
			}
			return err
		}
		existing, err := fromSnapshot(snap)
		if err != nil {
			return err
		}
		if existing.Subject != p.Subject {
			return profilerepo.ErrSubjectAlreadyBound
		}
		p.CreatedAt = existing.CreatedAt
		return tx.Set(ref, toDoc(p))
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (profilerepo.Profile, error) {
	if r.client == nil {
		return profilerepo.Profile{}, errors.New("nil firestore client")
	}
	if id == "" {
		return profilerepo.Profile{}, profilerepo.ErrNotFound
	}
	snap, err := r.client.Collection(r.profiles).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return profilerepo.Profile{}, profilerepo.ErrNotFound
		}
		return profilerepo.Profile{}, err
	}
	return fromSnapshot(snap)
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (profilerepo.Profile, error) {
	if r.client == nil {
		return profilerepo.Profile{}, errors.New("nil firestore client")
	}
	snap, err := r.client.Collection(r.subjects).Doc(subjectKey(subject)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return profilerepo.Profile{}, profilerepo.ErrNotFound
		}
		return profilerepo.Profile{}, err
	}
	var sd subjectDoc
	if err := snap.DataTo(&sd); err != nil {
		return profilerepo.Profile{}, fmt.Errorf("%w: subject index: %v", profilerepo.ErrInvalidRecord, err)
	}
	return r.GetByID(ctx, domain.MemberID(sd.MemberID))
}

func (r *Repo) List(ctx context.Context) ([]profilerepo.Profile, error) {
	if r.client == nil {
		return nil, errors.New("nil firestore client")
	}
	iter := r.client.Collection(r.profiles).OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := make([]profilerepo.Profile, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		p, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	// Firestore orders ties by document name; match the port's MemberID tie-break.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return string(out[i].MemberID) < string(out[j].MemberID)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// subjectKey makes a subject safe as a document id ("/" is not allowed).
func subjectKey(s domain.SubjectID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func toDoc(p profilerepo.Profile) profileDoc {
	d := profileDoc{
		Subject:    string(p.Subject),
		Values:     make(map[string]string, len(p.Values)),
		Visibility: make(map[string]bool, len(p.Visibility)),
		Accounts:   make([]accountDoc, 0, len(p.Accounts)),
		CreatedAt:  p.CreatedAt.UTC(),
		UpdatedAt:  p.UpdatedAt.UTC(),
	}
	for k, v := range p.Values {
		d.Values[string(k)] = v
	}
	for k, v := range p.Visibility {
		d.Visibility[string(k)] = v
	}
	for _, a := range p.Accounts {
		d.Accounts = append(d.Accounts, accountDoc{Service: string(a.Service), Connected: a.Connected, ExternalID: a.ExternalID})
	}
	return d
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (profilerepo.Profile, error) {
	var d profileDoc
	if err := snap.DataTo(&d); err != nil {
		return profilerepo.Profile{}, fmt.Errorf("%w: %s: %v", profilerepo.ErrInvalidRecord, snap.Ref.ID, err)
	}
	p := profilerepo.Profile{
		MemberID:   domain.MemberID(snap.Ref.ID),
		Subject:    domain.SubjectID(d.Subject),
		Values:     make(map[domain.FieldID]string, len(d.Values)),
		Visibility: make(map[domain.GroupID]bool, len(d.Visibility)),
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
	for k, v := range d.Values {
		p.Values[domain.FieldID(k)] = v
	}
	for k, v := range d.Visibility {
		p.Visibility[domain.GroupID(k)] = v
	}
	for _, a := range d.Accounts {
		p.Accounts = append(p.Accounts, domain.AccountConnection{Service: domain.ServiceID(a.Service), Connected: a.Connected, ExternalID: a.ExternalID})
	}
	return p, nil
}
