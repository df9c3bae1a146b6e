package couples

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	id "attune/pkg/domain"
	"attune/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists couple links in the couple_links table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, link Link) error {
	query := `
		INSERT INTO couple_links (
			id, partner_a, partner_b, therapist_id, status,
			invite_code_hash, created_at, activated_at, revoked_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		uuid.UUID(link.ID),
		uuid.UUID(link.PartnerA),
		uuid.UUID(link.PartnerB),
		uuid.UUID(link.TherapistID),
		string(link.Status),
		link.InviteCodeHash,
		link.CreatedAt,
		link.ActivatedAt,
		link.RevokedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert couple link: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, link Link) error {
	query := `
		UPDATE couple_links
		SET status = $2, invite_code_hash = $3, activated_at = $4, revoked_at = $5
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		uuid.UUID(link.ID),
		string(link.Status),
		link.InviteCodeHash,
		link.ActivatedAt,
		link.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("update couple link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, coupleID id.CoupleID) (Link, error) {
	query := `
		SELECT id, partner_a, partner_b, therapist_id, status,
			   invite_code_hash, created_at, activated_at, revoked_at
		FROM couple_links
		WHERE id = $1
	`
	link, err := scanLink(s.pool.QueryRow(ctx, query, uuid.UUID(coupleID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Link{}, sentinel.ErrNotFound
		}
		return Link{}, fmt.Errorf("query couple link: %w", err)
	}
	return link, nil
}

func (s *PostgresStore) ListByTherapist(ctx context.Context, therapistID id.TherapistID) ([]Link, error) {
	query := `
		SELECT id, partner_a, partner_b, therapist_id, status,
			   invite_code_hash, created_at, activated_at, revoked_at
		FROM couple_links
		WHERE therapist_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, query, uuid.UUID(therapistID))
	if err != nil {
		return nil, fmt.Errorf("query couple links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan couple link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate couple links: %w", err)
	}
	return links, nil
}

func scanLink(row pgx.Row) (Link, error) {
	var (
		link        Link
		linkID      uuid.UUID
		partnerA    uuid.UUID
		partnerB    uuid.UUID
		therapistID uuid.UUID
		status      string
	)
	err := row.Scan(
		&linkID,
		&partnerA,
		&partnerB,
		&therapistID,
		&status,
		&link.InviteCodeHash,
		&link.CreatedAt,
		&link.ActivatedAt,
		&link.RevokedAt,
	)
	if err != nil {
		return Link{}, err
	}
	link.ID = id.CoupleID(linkID)
	link.PartnerA = id.ClientID(partnerA)
	link.PartnerB = id.ClientID(partnerB)
	link.TherapistID = id.TherapistID(therapistID)
	link.Status = LinkStatus(status)
	return link, nil
}
