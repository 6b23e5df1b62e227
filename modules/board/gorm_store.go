package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/taskboard/domain/task"
)

// taskRecord is the GORM model for a task. History and attachments are
// embedded as JSON columns.
type taskRecord struct {
	ID            string              `gorm:"primarykey;size:36"`
	Title         string              `gorm:"size:200;not null"`
	Description   string              `gorm:"type:text"`
	Status        string              `gorm:"size:20;not null;index"`
	Priority      string              `gorm:"size:10;not null"`
	Category      string              `gorm:"size:20;not null"`
	Assignee      *string             `gorm:"size:100"`
	Attachments   []task.Attachment   `gorm:"serializer:json"`
	StartedAt     *time.Time
	CompletedAt   *time.Time
	StatusHistory []task.StatusChange `gorm:"serializer:json"`
	CreatedAt     time.Time           `gorm:"index;autoCreateTime:false"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for taskRecord.
func (taskRecord) TableName() string {
	return "tasks"
}

func recordFromTask(t task.Task) taskRecord {
	return taskRecord{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		Category:      string(t.Category),
		Assignee:      t.Assignee,
		Attachments:   t.Attachments,
		StartedAt:     t.StartedAt,
		CompletedAt:   t.CompletedAt,
		StatusHistory: t.StatusHistory,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (r taskRecord) toTask() task.Task {
	t := task.Task{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Status:        task.Status(r.Status),
		Priority:      task.Priority(r.Priority),
		Category:      task.Category(r.Category),
		Assignee:      r.Assignee,
		Attachments:   r.Attachments,
		StartedAt:     utcPtr(r.StartedAt),
		CompletedAt:   utcPtr(r.CompletedAt),
		StatusHistory: r.StatusHistory,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if t.Attachments == nil {
		t.Attachments = []task.Attachment{}
	}
	return t
}

// OpenSQLite opens the SQLite database at path and migrates the schema.
func OpenSQLite(path string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases shared across goroutines.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&taskRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// GormStore implements task.Store on GORM.
type GormStore struct {
	db *gorm.DB
}

var _ task.Store = (*GormStore)(nil)

// NewGormStore creates a store over an open, migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Find retrieves all tasks, newest first.
func (s *GormStore) Find(ctx context.Context) ([]task.Task, error) {
	var records []taskRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find tasks: %w", err)
	}
	tasks := make([]task.Task, len(records))
	for i, r := range records {
		tasks[i] = r.toTask()
	}
	return tasks, nil
}

// FindByID retrieves a task by its ID.
func (s *GormStore) FindByID(ctx context.Context, id string) (task.Task, error) {
	var r taskRecord
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, fmt.Errorf("failed to find task: %w", err)
	}
	return r.toTask(), nil
}

// Create saves a new task.
func (s *GormStore) Create(ctx context.Context, t task.Task) (task.Task, error) {
	r := recordFromTask(t)
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return task.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	return r.toTask(), nil
}

// UpdateByID applies p inside a transaction.
func (s *GormStore) UpdateByID(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	var updated taskRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r taskRecord
		if err := tx.First(&r, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return task.ErrNotFound
			}
			return fmt.Errorf("failed to load task: %w", err)
		}

		t := r.toTask()
		p.Apply(&t)
		updated = recordFromTask(t)
		if err := tx.Save(&updated).Error; err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}
	return updated.toTask(), nil
}

// DeleteByID removes a task and returns it as it was.
func (s *GormStore) DeleteByID(ctx context.Context, id string) (task.Task, error) {
	var deleted taskRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&deleted, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return task.ErrNotFound
			}
			return fmt.Errorf("failed to load task: %w", err)
		}
		result := tx.Delete(&taskRecord{}, "id = ?", id)
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		if result.RowsAffected == 0 {
			return task.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}
	return deleted.toTask(), nil
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
