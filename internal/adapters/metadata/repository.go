// Package metadata is the read-only view of machines and tags in the
// relational store. Results are snapshots handed out by value; callers
// decide about retries.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

const machineColumns = "id, name, opc_endpoint, automate_type, is_active"
const tagColumns = "id, machine_id, name, node_id, data_type, unit, min_value, max_value, allowed_values, is_active"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListActiveMachines loads active machines and their active tags with two
// queries joined in memory.
func (r *Repository) ListActiveMachines(ctx context.Context) ([]domain.Machine, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+machineColumns+" FROM machines WHERE is_active = true ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var machines []domain.Machine
	var ids []int32
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	if len(machines) == 0 {
		return machines, nil
	}

	tagRows, err := r.db.QueryContext(ctx,
		"SELECT "+tagColumns+" FROM tags WHERE is_active = true AND machine_id = ANY($1) ORDER BY id",
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer tagRows.Close()

	byMachine := make(map[int32][]domain.Tag, len(machines))
	for tagRows.Next() {
		t, err := scanTag(tagRows)
		if err != nil {
			return nil, err
		}
		byMachine[t.MachineID] = append(byMachine[t.MachineID], t)
	}
	if err := tagRows.Err(); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	for i := range machines {
		machines[i].Tags = byMachine[machines[i].ID]
	}
	return machines, nil
}

func (r *Repository) GetMachine(ctx context.Context, id int32) (domain.Machine, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+machineColumns+" FROM machines WHERE id = $1", id)
	m, err := scanMachine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Machine{}, fmt.Errorf("machine %d: %w", id, ports.ErrNotFound)
		}
		return domain.Machine{}, err
	}

	tags, err := r.listTags(ctx, "machine_id = $1", id)
	if err != nil {
		return domain.Machine{}, err
	}
	m.Tags = tags
	return m, nil
}

// GetTagByNodeID resolves a single tag through the node id index.
func (r *Repository) GetTagByNodeID(ctx context.Context, nodeID string) (domain.Tag, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+tagColumns+" FROM tags WHERE node_id = $1", nodeID)
	t, err := scanTag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tag{}, fmt.Errorf("tag %q: %w", nodeID, ports.ErrNotFound)
		}
		return domain.Tag{}, err
	}
	return t, nil
}

func (r *Repository) ListActiveTagsByMachine(ctx context.Context, machineID int32) ([]domain.Tag, error) {
	return r.listTags(ctx, "is_active = true AND machine_id = $1", machineID)
}

func (r *Repository) listTags(ctx context.Context, where string, args ...any) ([]domain.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+tagColumns+" FROM tags WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []domain.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMachine(s scanner) (domain.Machine, error) {
	var m domain.Machine
	var automateType sql.NullString
	if err := s.Scan(&m.ID, &m.Name, &m.OpcEndpoint, &automateType, &m.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Machine{}, err
		}
		return domain.Machine{}, fmt.Errorf("scan machine: %w", err)
	}
	if automateType.Valid {
		m.AutomateType = automateType.String
	}
	return m, nil
}

func scanTag(s scanner) (domain.Tag, error) {
	var t domain.Tag
	var unit, allowed sql.NullString
	var minVal, maxVal sql.NullFloat64
	err := s.Scan(&t.ID, &t.MachineID, &t.Name, &t.NodeID, &t.DataType,
		&unit, &minVal, &maxVal, &allowed, &t.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tag{}, err
		}
		return domain.Tag{}, fmt.Errorf("scan tag: %w", err)
	}
	if unit.Valid {
		t.Unit = unit.String
	}
	if allowed.Valid {
		t.AllowedValues = allowed.String
	}
	if minVal.Valid {
		v := minVal.Float64
		t.MinValue = &v
	}
	if maxVal.Valid {
		v := maxVal.Float64
		t.MaxValue = &v
	}
	return t, nil
}

var _ ports.MetadataRepository = (*Repository)(nil)
