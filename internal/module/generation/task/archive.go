package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/reelforge/server/internal/shared/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the persisted form of a terminal task.
type Record struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Status    string    `gorm:"size:16;index"`
	Prompt    string    `gorm:"size:2048"`
	Request   []byte    `gorm:"type:jsonb"`
	Result    []byte    `gorm:"type:jsonb"`
	Error     string    `gorm:"size:2048"`
	Guidance  string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName sets the table name for GORM.
func (Record) TableName() string { return "generation_tasks" }

// Archive persists terminal tasks so history survives process restarts and
// registry eviction.
type Archive struct {
	db *gorm.DB
}

// NewArchive creates the archive and migrates its table.
func NewArchive(db *gorm.DB) (*Archive, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate task archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Save upserts the task. Only terminal tasks are archived; redispatch after
// a failure overwrites the earlier record.
func (a *Archive) Save(ctx context.Context, t *Task) error {
	if !t.Status.Terminal() {
		return fmt.Errorf("archive task %s: status %s is not terminal", t.ID, t.Status)
	}

	reqJSON, err := json.Marshal(t.Request)
	if err != nil {
		return fmt.Errorf("archive task %s: %w", t.ID, err)
	}

	var resultJSON []byte
	if t.Result != nil {
		resultJSON, err = json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("archive task %s: %w", t.ID, err)
		}
	}

	rec := Record{
		ID:        t.ID.String(),
		Status:    string(t.Status),
		Prompt:    t.Request.Prompt,
		Request:   reqJSON,
		Result:    resultJSON,
		Error:     t.Error,
		Guidance:  t.Guidance,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}

	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
}

// Find returns the archived record for a task id.
func (a *Archive) Find(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rec Record
	err := a.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("archived task")
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent returns the newest archived records, up to limit.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []Record
	err := a.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
