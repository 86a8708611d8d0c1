package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/arbfarm/swarm/internal/domain/graduation"
	"github.com/arbfarm/swarm/internal/platform/apperr"
)

const trackedTokensTable = "tracked_tokens"

// TrackedTokenStore implements graduation.Repository over the
// tracked_tokens table.
type TrackedTokenStore struct {
	db *sql.DB
}

// NewTrackedTokenStore constructs a TrackedTokenStore.
func NewTrackedTokenStore(db *sql.DB) *TrackedTokenStore {
	return &TrackedTokenStore{db: db}
}

// Upsert inserts a newly-seen token or refreshes an already-tracked one's
// polling state.
func (s *TrackedTokenStore) Upsert(ctx context.Context, t graduation.TrackedToken) (err error) {
	start := time.Now()
	defer func() { observe(trackedTokensTable, "upsert", start, err) }()

	var graduatedAt sql.NullTime
	if t.GraduatedAt != nil {
		graduatedAt = sql.NullTime{Time: *t.GraduatedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctxOrBackground(ctx), `
		INSERT INTO tracked_tokens (
			mint, bonding_curve_addr, tier, graduation_progress, velocity, last_polled_at,
			last_progress_at, first_seen_at, graduated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (mint) DO UPDATE SET
			tier = EXCLUDED.tier,
			graduation_progress = EXCLUDED.graduation_progress,
			velocity = EXCLUDED.velocity,
			last_polled_at = EXCLUDED.last_polled_at,
			last_progress_at = EXCLUDED.last_progress_at,
			graduated_at = EXCLUDED.graduated_at
	`,
		t.Mint, t.BondingCurveAddr, t.Tier, t.GraduationProgress, t.Velocity, t.LastPolledAt,
		t.LastProgressAt, t.FirstSeenAt, graduatedAt,
	)
	if err != nil {
		return apperr.Database("upsert_tracked_token", err)
	}
	return nil
}

// Get retrieves a tracked token by mint, reporting found=false rather than
// an error when absent (callers treat an unknown mint as "not yet tracked",
// not a failure).
func (s *TrackedTokenStore) Get(ctx context.Context, mint string) (token graduation.TrackedToken, found bool, err error) {
	start := time.Now()
	defer func() { observe(trackedTokensTable, "get", start, err) }()

	row := s.db.QueryRowContext(ctxOrBackground(ctx), trackedTokenSelectQuery+" WHERE mint = $1", mint)
	token, scanErr := scanTrackedToken(row)
	if scanErr == sql.ErrNoRows {
		return graduation.TrackedToken{}, false, nil
	}
	if scanErr != nil {
		err = apperr.Database("get_tracked_token", scanErr)
		return graduation.TrackedToken{}, false, err
	}
	return token, true, nil
}

// ByTier returns every token currently in tier.
func (s *TrackedTokenStore) ByTier(ctx context.Context, tier graduation.Tier) (tokens []graduation.TrackedToken, err error) {
	start := time.Now()
	defer func() { observe(trackedTokensTable, "by_tier", start, err) }()

	rows, queryErr := s.db.QueryContext(ctxOrBackground(ctx), trackedTokenSelectQuery+" WHERE tier = $1", tier)
	if queryErr != nil {
		err = apperr.Database("tracked_tokens_by_tier", queryErr)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		token, scanErr := scanTrackedToken(rows)
		if scanErr != nil {
			err = apperr.Database("scan_tracked_token", scanErr)
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = apperr.Database("tracked_tokens_by_tier", rowsErr)
		return nil, err
	}
	return tokens, nil
}

// Evict marks a token evicted (spec.md §4.C's stale-progress eviction).
func (s *TrackedTokenStore) Evict(ctx context.Context, mint string) (err error) {
	start := time.Now()
	defer func() { observe(trackedTokensTable, "evict", start, err) }()

	result, execErr := s.db.ExecContext(ctxOrBackground(ctx), `
		UPDATE tracked_tokens SET tier = $2 WHERE mint = $1
	`, mint, graduation.TierEvicted)
	if execErr != nil {
		err = apperr.Database("evict_tracked_token", execErr)
		return err
	}

	n, rowsErr := result.RowsAffected()
	if rowsErr == nil && n == 0 {
		err = apperr.NotFound("tracked_token", mint)
		return err
	}
	return nil
}

const trackedTokenSelectQuery = `
	SELECT mint, bonding_curve_addr, tier, graduation_progress, velocity, last_polled_at,
		last_progress_at, first_seen_at, graduated_at
	FROM tracked_tokens`

func scanTrackedToken(row rowScanner) (graduation.TrackedToken, error) {
	var (
		t           graduation.TrackedToken
		graduatedAt sql.NullTime
	)

	if err := row.Scan(
		&t.Mint, &t.BondingCurveAddr, &t.Tier, &t.GraduationProgress, &t.Velocity, &t.LastPolledAt,
		&t.LastProgressAt, &t.FirstSeenAt, &graduatedAt,
	); err != nil {
		return graduation.TrackedToken{}, err
	}

	if graduatedAt.Valid {
		t.GraduatedAt = &graduatedAt.Time
	}

	return t, nil
}
