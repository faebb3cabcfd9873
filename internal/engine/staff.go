package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"retentionline/internal/domain"
	"retentionline/internal/repo"
)

// SyncUnit makes sure the configured unit exists and mirrors the
// department members listed in config into the staff directory.
func (e Engine) SyncUnit(ctx context.Context) (domain.Unit, error) {
	if e.Config == nil || e.UnitID == "" {
		return domain.Unit{}, fmt.Errorf("config not loaded")
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unit{}, err
	}
	defer tx.Rollback()
	unit := domain.Unit{ID: e.UnitID, Name: e.Config.Unit.Name, CreatedAt: now}
	if err := e.Repo.EnsureUnit(ctx, tx, unit); err != nil {
		return unit, fmt.Errorf("ensure unit: %w", err)
	}
	for dept, d := range e.Config.Departments {
		for _, m := range d.Members {
			if err := e.Repo.EnsureStaff(ctx, tx, domain.Staff{ID: m.ID, Name: m.Name, Handle: m.Handle, CreatedAt: now}); err != nil {
				return unit, fmt.Errorf("ensure staff %s: %w", m.ID, err)
			}
			if err := e.Repo.AssignDepartment(ctx, tx, e.UnitID, dept, m.ID, now); err != nil {
				return unit, fmt.Errorf("assign %s to %s: %w", m.ID, dept, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return unit, err
	}
	return e.Repo.GetUnit(ctx, e.UnitID)
}

// AddStaff registers a staff member, optionally in a department.
func (e Engine) AddStaff(ctx context.Context, s domain.Staff, dept string) (domain.Staff, error) {
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		return s, invalid("id", "staff id is required")
	}
	var d domain.Department
	if dept != "" {
		d = domain.Department(dept)
		if !d.Valid() {
			return s, invalid("department", "unknown department %q", dept)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	s.CreatedAt = now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureStaff(ctx, tx, s); err != nil {
		return s, err
	}
	if dept != "" {
		if err := e.Repo.AssignDepartment(ctx, tx, e.UnitID, d, s.ID, now); err != nil {
			return s, err
		}
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	stored, err := e.Repo.GetStaff(ctx, s.ID)
	if err != nil {
		return s, notFound("staff", s.ID, err)
	}
	return stored, nil
}

func (e Engine) DepartmentMembers(ctx context.Context, dept string) ([]domain.Staff, error) {
	d := domain.Department(dept)
	if !d.Valid() {
		return nil, invalid("department", "unknown department %q", dept)
	}
	return e.Repo.DepartmentMembers(ctx, e.UnitID, d)
}

// RemoveFromDepartment drops a staff member from a department; their
// activities keep the department they were routed to.
func (e Engine) RemoveFromDepartment(ctx context.Context, staffID, dept string) error {
	d := domain.Department(dept)
	if !d.Valid() {
		return invalid("department", "unknown department %q", dept)
	}
	return e.Repo.RemoveFromDepartment(ctx, nil, e.UnitID, d, staffID)
}

// IssueAPIKey creates a key for a staff member. The plain key is returned
// once; only its hash is stored.
func (e Engine) IssueAPIKey(ctx context.Context, staffID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetStaff(ctx, staffID); err != nil {
		return domain.APIKey{}, "", notFound("staff", staffID, err)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "rl_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        newID(),
		StaffID:   staffID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return key, "", err
	}
	return key, plain, nil
}

// RevokeAPIKey deletes a key by id.
func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	return notFound("api key", id, e.Repo.DeleteAPIKey(ctx, id))
}
