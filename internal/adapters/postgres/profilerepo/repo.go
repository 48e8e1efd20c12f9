package profilerepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Lumos-Programming/profile-api/internal/adapters/postgres"
	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/profilerepo"
)

// Repo is a Postgres implementation of profilerepo.Repository. Values, visibility
// and accounts are stored as jsonb keyed by registry id, so a registry change needs
// no migration.
type Repo struct {
	pool   *pgxpool.Pool
	issuer string
}

func NewRepo(pool *pgxpool.Pool, jwtIssuer string) *Repo {
	return &Repo{pool: pool, issuer: jwtIssuer}
}

type accountRow struct {
	Service    domain.ServiceID `json:"service"`
	Connected  bool             `json:"connected"`
	ExternalID string           `json:"external_id,omitempty"`
}

const selectColumns = `
	SELECT
		external_id,
		subject_sub,
		field_values,
		visibility,
		accounts,
		created_at,
		updated_at
	FROM profiles
`

func (r *Repo) Create(ctx context.Context, p profilerepo.Profile) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(p.MemberID))
	if err != nil {
		return fmt.Errorf("invalid member id: %w", err)
	}
	values, visibility, accounts, err := encodeColumns(p)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO profiles (
			external_id,
			subject_iss,
			subject_sub,
			field_values,
			visibility,
			accounts,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		id,
		r.issuer,
		string(p.Subject),
		values,
		visibility,
		accounts,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			switch pe.ConstraintName {
			case "profiles_subject_unique":
				return profilerepo.ErrSubjectAlreadyBound
			case "profiles_external_id_unique":
				return profilerepo.ErrAlreadyExists
			}
		}
		return err
	}
	return nil
}

func (r *Repo) Replace(ctx context.Context, p profilerepo.Profile) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(p.MemberID))
	if err != nil {
		return profilerepo.ErrNotFound
	}
	values, visibility, accounts, err := encodeColumns(p)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		existing, err := getByExternalID(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing.Subject != p.Subject {
			return profilerepo.ErrSubjectAlreadyBound
		}

		ct, err := tx.Exec(ctx, `
			UPDATE profiles
			SET field_values = $2,
			    visibility = $3,
			    accounts = $4,
			    updated_at = $5
			WHERE external_id = $1
		`,
			id,
			values,
			visibility,
			accounts,
			p.UpdatedAt.UTC(),
		)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return profilerepo.ErrNotFound
		}
		return nil
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (profilerepo.Profile, error) {
	if r.pool == nil {
		return profilerepo.Profile{}, errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return profilerepo.Profile{}, profilerepo.ErrNotFound
	}
	return getByExternalID(ctx, r.pool, uid)
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (profilerepo.Profile, error) {
	if r.pool == nil {
		return profilerepo.Profile{}, errors.New("nil postgres pool")
	}
	row := r.pool.QueryRow(ctx, selectColumns+`
		WHERE subject_iss = $1 AND subject_sub = $2
	`, r.issuer, string(subject))
	return scanProfile(row)
}

func (r *Repo) List(ctx context.Context) ([]profilerepo.Profile, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, selectColumns+`
		ORDER BY created_at ASC, external_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]profilerepo.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// --- helpers ---

func encodeColumns(p profilerepo.Profile) (values, visibility, accounts []byte, err error) {
	if p.Values == nil {
		p.Values = map[domain.FieldID]string{}
	}
	if p.Visibility == nil {
		p.Visibility = map[domain.GroupID]bool{}
	}
	rows := make([]accountRow, 0, len(p.Accounts))
	for _, a := range p.Accounts {
		rows = append(rows, accountRow{Service: a.Service, Connected: a.Connected, ExternalID: a.ExternalID})
	}
	if values, err = json.Marshal(p.Values); err != nil {
		return nil, nil, nil, err
	}
	if visibility, err = json.Marshal(p.Visibility); err != nil {
		return nil, nil, nil, err
	}
	if accounts, err = json.Marshal(rows); err != nil {
		return nil, nil, nil, err
	}
	return values, visibility, accounts, nil
}

func scanProfile(row interface {
	Scan(dest ...any) error
}) (profilerepo.Profile, error) {
	var (
		externalID uuid.UUID
		sub        string
		values     []byte
		visibility []byte
		accounts   []byte
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(
		&externalID,
		&sub,
		&values,
		&visibility,
		&accounts,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profilerepo.Profile{}, profilerepo.ErrNotFound
		}
		return profilerepo.Profile{}, err
	}

	p := profilerepo.Profile{
		MemberID:  domain.MemberID(externalID.String()),
		Subject:   domain.SubjectID(sub),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	if err := json.Unmarshal(values, &p.Values); err != nil {
		return profilerepo.Profile{}, fmt.Errorf("%w: field_values: %v", profilerepo.ErrInvalidRecord, err)
	}
	if err := json.Unmarshal(visibility, &p.Visibility); err != nil {
		return profilerepo.Profile{}, fmt.Errorf("%w: visibility: %v", profilerepo.ErrInvalidRecord, err)
	}
	var rows []accountRow
	if err := json.Unmarshal(accounts, &rows); err != nil {
		return profilerepo.Profile{}, fmt.Errorf("%w: accounts: %v", profilerepo.ErrInvalidRecord, err)
	}
	for _, a := range rows {
		p.Accounts = append(p.Accounts, domain.AccountConnection{Service: a.Service, Connected: a.Connected, ExternalID: a.ExternalID})
	}
	return p, nil
}

func getByExternalID(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, id uuid.UUID) (profilerepo.Profile, error) {
	row := q.QueryRow(ctx, selectColumns+`
		WHERE external_id = $1
	`, id)
	return scanProfile(row)
}
