package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	BuildStatusRunning   = "running"
	BuildStatusSucceeded = "succeeded"
	BuildStatusFailed    = "failed"
)

// Build is one image build attempt recorded in the ledger.
type Build struct {
	ID           string
	ManifestPath string
	ImageDir     string
	Status       string
	BundleDigest *string
	BaseDigest   *string
	Error        *string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// InsertBuild records a build that is starting now.
func InsertBuild(ctx context.Context, handle *sql.DB, manifestPath, imageDir string) (*Build, error) {
	buildID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("error generating build uuid: %w", err)
	}
	now := time.Now().Unix()

	query := `
		INSERT INTO builds (id, manifest_path, image_dir, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = handle.ExecContext(ctx, query, buildID.String(), manifestPath, imageDir, BuildStatusRunning, now)
	if err != nil {
		return nil, err
	}

	return &Build{
		ID:           buildID.String(),
		ManifestPath: manifestPath,
		ImageDir:     imageDir,
		Status:       BuildStatusRunning,
		StartedAt:    time.Unix(now, 0),
	}, nil
}

// CompleteBuild marks a build succeeded with its digests.
func CompleteBuild(ctx context.Context, handle *sql.DB, id, bundleDigest, baseDigest string) error {
	query := `
		UPDATE builds SET status = ?, bundle_digest = ?, base_digest = ?, completed_at = ?
		WHERE id = ?
	`
	_, err := handle.ExecContext(ctx, query, BuildStatusSucceeded, bundleDigest, baseDigest, time.Now().Unix(), id)
	return err
}

// FailBuild marks a build failed with its error.
func FailBuild(ctx context.Context, handle *sql.DB, id string, buildErr error) error {
	query := `
		UPDATE builds SET status = ?, error = ?, completed_at = ?
		WHERE id = ?
	`
	_, err := handle.ExecContext(ctx, query, BuildStatusFailed, buildErr.Error(), time.Now().Unix(), id)
	return err
}

// GetBuildByID retrieves one build record.
func GetBuildByID(ctx context.Context, handle *sql.DB, id string) (*Build, error) {
	query := `
		SELECT id, manifest_path, image_dir, status, bundle_digest, base_digest, error, started_at, completed_at
		FROM builds WHERE id = ?
	`
	return scanBuild(handle.QueryRowContext(ctx, query, id))
}

// ListBuilds returns the most recent builds, newest first.
func ListBuilds(ctx context.Context, handle *sql.DB, limit int) ([]*Build, error) {
	query := `
		SELECT id, manifest_path, image_dir, status, bundle_digest, base_digest, error, started_at, completed_at
		FROM builds ORDER BY started_at DESC, id DESC LIMIT ?
	`
	rows, err := handle.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		build, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, build)
	}
	return builds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(row rowScanner) (*Build, error) {
	var (
		build       Build
		startedAt   int64
		completedAt *int64
	)
	err := row.Scan(&build.ID, &build.ManifestPath, &build.ImageDir, &build.Status,
		&build.BundleDigest, &build.BaseDigest, &build.Error, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	build.StartedAt = time.Unix(startedAt, 0)
	if completedAt != nil {
		t := time.Unix(*completedAt, 0)
		build.CompletedAt = &t
	}
	return &build, nil
}
