package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const jobColumns = `id, sequence, owner, playlist_id, status, attempts, fetched, removed_entries, removed_files,
	error_message, started_at, finished_at, created_at, updated_at`

// JobRepository persists [models.SyncJob] records for dispatched reconciliations.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job with generated ID and sequence
func (r *JobRepository) Create(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(r.db, "sync_jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	job.SetID(id)
	job.SetSequence(sequence)

	query := `
		INSERT INTO sync_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		job.Owner(),
		job.PlaylistID(),
		string(job.Status()),
		job.Attempts(),
		job.Fetched(),
		job.RemovedEntries(),
		job.RemovedFiles(),
		nullableString(job.ErrorMessage()),
		job.StartedAt(),
		job.FinishedAt(),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Get retrieves a job by ID
func (r *JobRepository) Get(id string) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = ?`
	return r.scanJob(r.db.QueryRow(query, id), id)
}

// Update writes the job's status, counters and timestamps.
func (r *JobRepository) Update(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	query := `
		UPDATE sync_jobs
		SET status = ?, attempts = ?, fetched = ?, removed_entries = ?, removed_files = ?,
			error_message = ?, started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		string(job.Status()),
		job.Attempts(),
		job.Fetched(),
		job.RemovedEntries(),
		job.RemovedFiles(),
		nullableString(job.ErrorMessage()),
		job.StartedAt(),
		job.FinishedAt(),
		now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrJobNotFound, job.ID()))
}

// Delete removes a job record
func (r *JobRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sync_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id))
}

// List retrieves jobs newest first.
//
// Supported criteria: "owner" (string), "playlist_id" (string), "status" ([models.JobStatus]), "limit" (int).
func (r *JobRepository) List(criteria map[string]any) ([]*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE 1 = 1`
	args := []any{}

	if owner, ok := criteria["owner"].(string); ok && owner != "" {
		query += " AND owner = ?"
		args = append(args, owner)
	}

	if playlistID, ok := criteria["playlist_id"].(string); ok && playlistID != "" {
		query += " AND playlist_id = ?"
		args = append(args, playlistID)
	}

	if status, ok := criteria["status"].(models.JobStatus); ok && status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := r.scanJob(rows, "")
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

func (r *JobRepository) scanJob(row rowScanner, lookup string) (*models.SyncJob, error) {
	var (
		id             string
		sequence       int
		owner          string
		playlistID     string
		status         string
		attempts       int
		fetched        int
		removedEntries int
		removedFiles   int
		errorMessage   sql.NullString
		startedAt      sql.NullTime
		finishedAt     sql.NullTime
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&id, &sequence, &owner, &playlistID, &status, &attempts, &fetched, &removedEntries,
		&removedFiles, &errorMessage, &startedAt, &finishedAt, &createdAt, &updatedAt)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, lookup)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job := models.NewSyncJob(sequence, models.PlaylistKey{Owner: owner, PlaylistID: playlistID})
	job.SetID(id)
	job.SetStatus(models.JobStatus(status))
	job.SetAttempts(attempts)
	job.SetCounts(fetched, removedEntries, removedFiles)
	job.SetErrorMessage(errorMessage.String)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)
	if startedAt.Valid {
		job.SetStartedAt(&startedAt.Time)
	}
	if finishedAt.Valid {
		job.SetFinishedAt(&finishedAt.Time)
	}

	return job, nil
}
