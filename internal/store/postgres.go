package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Analysis Requests ---

func (s *PostgresStore) UpsertAnalysisRequest(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisRequest, error) {
	var r models.AnalysisRequest
	err := s.pool.QueryRow(ctx,
		`INSERT INTO analysis_requests (correlation_id, content_hash, bucket, video_key, label_job_id, moderation_job_id, person_job_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (content_hash) DO UPDATE SET
		   label_job_id      = COALESCE(NULLIF(EXCLUDED.label_job_id, ''), analysis_requests.label_job_id),
		   moderation_job_id = COALESCE(NULLIF(EXCLUDED.moderation_job_id, ''), analysis_requests.moderation_job_id),
		   person_job_id     = COALESCE(NULLIF(EXCLUDED.person_job_id, ''), analysis_requests.person_job_id),
		   updated_at        = NOW()
		 RETURNING correlation_id, content_hash, bucket, video_key, label_job_id, moderation_job_id, person_job_id, created_at`,
		req.CorrelationID, req.ContentHash, req.Bucket, req.Key,
		req.LabelJobID, req.ModerationJobID, req.PersonJobID, req.CreatedAt,
	).Scan(&r.CorrelationID, &r.ContentHash, &r.Bucket, &r.Key,
		&r.LabelJobID, &r.ModerationJobID, &r.PersonJobID, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis request: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) GetAnalysisRequestByHash(ctx context.Context, contentHash string) (*models.AnalysisRequest, error) {
	var r models.AnalysisRequest
	err := s.pool.QueryRow(ctx,
		`SELECT correlation_id, content_hash, bucket, video_key, label_job_id, moderation_job_id, person_job_id, created_at
		 FROM analysis_requests WHERE content_hash = $1`, contentHash,
	).Scan(&r.CorrelationID, &r.ContentHash, &r.Bucket, &r.Key,
		&r.LabelJobID, &r.ModerationJobID, &r.PersonJobID, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis request: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT job_id, kind, status, correlation_id, completed_at, created_at, updated_at
		 FROM jobs WHERE correlation_id = $1 ORDER BY created_at, job_id`, r.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.JobID, &j.Kind, &j.Status, &j.CorrelationID,
			&j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		r.Jobs = append(r.Jobs, &j)
	}
	return &r, rows.Err()
}

// --- Jobs ---

// CreateJob records a dispatched job. Recording the same job id again is a
// no-op, so redelivered dispatches stay idempotent.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (job_id, kind, status, correlation_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id) DO NOTHING`,
		job.JobID, job.Kind, job.Status, job.CorrelationID, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT job_id, kind, status, correlation_id, completed_at, created_at, updated_at
		 FROM jobs WHERE job_id = $1`, jobID,
	).Scan(&j.JobID, &j.Kind, &j.Status, &j.CorrelationID, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// UpdateJobStatus moves a job to status. Repeating the current status is a
// no-op; changing a terminal status is ErrInvalidTransition.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status string) error {
	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE job_id = $1`, jobID).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	if currentStatus == status {
		return nil
	}
	if !slices.Contains(validTransitions[currentStatus], status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	if models.IsTerminalStatus(status) {
		query += `, completed_at = $3`
	}
	// Guard on the observed status so concurrent deliveries cannot both win.
	query += ` WHERE job_id = $1 AND status = $4`

	tag, err := s.pool.Exec(ctx, query, jobID, status, now, currentStatus)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.UpdateJobStatus(ctx, jobID, status)
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
