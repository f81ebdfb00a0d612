package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// QuestionStore implements domain.QuestionStore using PostgreSQL.
type QuestionStore struct {
	pool *pgxpool.Pool
}

var _ domain.QuestionStore = (*QuestionStore)(nil)

// NewQuestionStore creates a new QuestionStore backed by the given connection pool.
func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

// Reward and bond amounts are NUMERIC(78,0) in the schema, wide enough for a
// full uint256. They travel to and from the database as decimal strings.
const questionCols = `question_id, creator, ancillary_data, reward_token,
	reward::text, proposal_bond::text, liveness,
	request_timestamp, resolution_time, early_resolution_enabled,
	paused, resolved, settled_time, settled_price::text, was_reset,
	emergency_resolution_timestamp, payouts, created_at, updated_at`

// Create inserts a new question record. Returns domain.ErrAlreadyExists when
// a record with the same ID is already present.
func (s *QuestionStore) Create(ctx context.Context, q domain.QuestionData) error {
	const query = `
		INSERT INTO questions (
			question_id, creator, ancillary_data, reward_token,
			reward, proposal_bond, liveness,
			request_timestamp, resolution_time, early_resolution_enabled,
			paused, resolved, settled_time, settled_price, was_reset,
			emergency_resolution_timestamp, payouts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7,
			$8, $9, $10,
			$11, $12, $13, $14::numeric, $15,
			$16, $17, $18, $19
		)`

	_, err := s.pool.Exec(ctx, query,
		q.QuestionID[:], q.Creator.Hex(), q.AncillaryData, q.RewardToken.Hex(),
		bigString(q.Reward), bigString(q.ProposalBond), int64(q.Liveness),
		q.RequestTimestamp, q.ResolutionTime, q.EarlyResolutionEnabled,
		q.Paused, q.Resolved, q.SettledTime, nullableBigString(q.SettledPrice), q.Reset,
		q.EmergencyResolutionTimestamp, payoutsToInt64(q.Payouts), q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create question %s: %w", q.QuestionID.Hex(), err)
	}
	return nil
}

// Update replaces every mutable field of an existing record. Returns
// domain.ErrNotFound when the record does not exist.
func (s *QuestionStore) Update(ctx context.Context, q domain.QuestionData) error {
	const query = `
		UPDATE questions SET
			ancillary_data                 = $2,
			reward_token                   = $3,
			reward                         = $4::numeric,
			proposal_bond                  = $5::numeric,
			liveness                       = $6,
			request_timestamp              = $7,
			resolution_time                = $8,
			early_resolution_enabled       = $9,
			paused                         = $10,
			resolved                       = $11,
			settled_time                   = $12,
			settled_price                  = $13::numeric,
			was_reset                      = $14,
			emergency_resolution_timestamp = $15,
			payouts                        = $16,
			updated_at                     = $17
		WHERE question_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		q.QuestionID[:],
		q.AncillaryData, q.RewardToken.Hex(),
		bigString(q.Reward), bigString(q.ProposalBond), int64(q.Liveness),
		q.RequestTimestamp, q.ResolutionTime, q.EarlyResolutionEnabled,
		q.Paused, q.Resolved, q.SettledTime, nullableBigString(q.SettledPrice), q.Reset,
		q.EmergencyResolutionTimestamp, payoutsToInt64(q.Payouts), q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update question %s: %w", q.QuestionID.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves a question by its ID.
func (s *QuestionStore) Get(ctx context.Context, id domain.QuestionID) (domain.QuestionData, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+questionCols+` FROM questions WHERE question_id = $1`, id[:])
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.QuestionData{}, domain.ErrNotFound
		}
		return domain.QuestionData{}, fmt.Errorf("postgres: get question %s: %w", id.Hex(), err)
	}
	return q, nil
}

// ListUnresolved returns unresolved questions, newest first.
func (s *QuestionStore) ListUnresolved(ctx context.Context, opts domain.ListOpts) ([]domain.QuestionData, error) {
	query := `SELECT ` + questionCols + ` FROM questions WHERE NOT resolved`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.list(ctx, query, args)
}

// ListResolvedBefore returns resolved questions whose last update is older
// than the cutoff, oldest first. Used by the archiver.
func (s *QuestionStore) ListResolvedBefore(ctx context.Context, before time.Time, opts domain.ListOpts) ([]domain.QuestionData, error) {
	query := `SELECT ` + questionCols + ` FROM questions WHERE resolved AND updated_at < $1 ORDER BY updated_at ASC`
	args := []any{before}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.list(ctx, query, args)
}

// Count returns the total number of question records.
func (s *QuestionStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count questions: %w", err)
	}
	return count, nil
}

func (s *QuestionStore) list(ctx context.Context, query string, args []any) ([]domain.QuestionData, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.QuestionData
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list questions rows: %w", err)
	}
	return questions, nil
}

// scanQuestion scans a single row into a domain.QuestionData.
func scanQuestion(row pgx.Row) (domain.QuestionData, error) {
	var (
		q            domain.QuestionData
		rawID        []byte
		creator      string
		rewardToken  string
		reward       string
		bond         string
		liveness     int64
		settledPrice *string
		payouts      []int64
	)
	err := row.Scan(
		&rawID, &creator, &q.AncillaryData, &rewardToken,
		&reward, &bond, &liveness,
		&q.RequestTimestamp, &q.ResolutionTime, &q.EarlyResolutionEnabled,
		&q.Paused, &q.Resolved, &q.SettledTime, &settledPrice, &q.Reset,
		&q.EmergencyResolutionTimestamp, &payouts, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return domain.QuestionData{}, err
	}

	copy(q.QuestionID[:], rawID)
	q.Creator = common.HexToAddress(creator)
	q.RewardToken = common.HexToAddress(rewardToken)

	if q.Reward, err = parseBig(reward); err != nil {
		return domain.QuestionData{}, err
	}
	if q.ProposalBond, err = parseBig(bond); err != nil {
		return domain.QuestionData{}, err
	}
	if settledPrice != nil {
		if q.SettledPrice, err = parseBig(*settledPrice); err != nil {
			return domain.QuestionData{}, err
		}
	}
	q.Liveness = uint64(liveness)
	if payouts != nil {
		q.Payouts = make([]uint64, len(payouts))
		for i, p := range payouts {
			q.Payouts[i] = uint64(p)
		}
	}
	return q, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func nullableBigString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func payoutsToInt64(payouts []uint64) []int64 {
	if payouts == nil {
		return nil
	}
	out := make([]int64, len(payouts))
	for i, p := range payouts {
		out[i] = int64(p)
	}
	return out
}
