package db

import (
	"context"
	"database/sql"
	"time"
)

// Instance is one launched server process recorded in the ledger.
type Instance struct {
	ID        string
	ImageDir  string
	PID       int
	Port      int
	Phase     string
	Health    string
	StartedAt time.Time
	StoppedAt *time.Time
}

// InsertInstance records a freshly launched instance.
func InsertInstance(ctx context.Context, handle *sql.DB, inst *Instance) error {
	query := `
		INSERT INTO instances (id, image_dir, pid, port, phase, health, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := handle.ExecContext(ctx, query,
		inst.ID, inst.ImageDir, inst.PID, inst.Port, inst.Phase, inst.Health, inst.StartedAt.Unix())
	return err
}

// UpdateInstanceState records the current phase and health classification.
func UpdateInstanceState(ctx context.Context, handle *sql.DB, id, phase, health string) error {
	query := `UPDATE instances SET phase = ?, health = ? WHERE id = ?`
	_, err := handle.ExecContext(ctx, query, phase, health, id)
	return err
}

// StopInstance records the instance's terminal phase and stop time.
func StopInstance(ctx context.Context, handle *sql.DB, id, phase string) error {
	query := `UPDATE instances SET phase = ?, stopped_at = ? WHERE id = ?`
	_, err := handle.ExecContext(ctx, query, phase, time.Now().Unix(), id)
	return err
}

// ListInstances returns the most recent instances, newest first.
func ListInstances(ctx context.Context, handle *sql.DB, limit int) ([]*Instance, error) {
	query := `
		SELECT id, image_dir, pid, port, phase, health, started_at, stopped_at
		FROM instances ORDER BY started_at DESC, id DESC LIMIT ?
	`
	rows, err := handle.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*Instance
	for rows.Next() {
		var (
			inst      Instance
			startedAt int64
			stoppedAt *int64
		)
		if err := rows.Scan(&inst.ID, &inst.ImageDir, &inst.PID, &inst.Port,
			&inst.Phase, &inst.Health, &startedAt, &stoppedAt); err != nil {
			return nil, err
		}
		inst.StartedAt = time.Unix(startedAt, 0)
		if stoppedAt != nil {
			t := time.Unix(*stoppedAt, 0)
			inst.StoppedAt = &t
		}
		instances = append(instances, &inst)
	}
	return instances, rows.Err()
}
