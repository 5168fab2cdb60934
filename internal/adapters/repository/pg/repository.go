package pg

import (
	"context"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"picpic.transcode/internal/core/domain"
)

// Repository stores the transcode attempt history in Postgres.
type Repository struct {
	db *gorm.DB
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewRepositoryFromDB(db)
}

// NewRepositoryFromDB migrates the schema on an already opened connection.
func NewRepositoryFromDB(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&domain.Attempt{}); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Create(ctx context.Context, attempt *domain.Attempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *Repository) Update(ctx context.Context, attempt *domain.Attempt) error {
	return r.db.WithContext(ctx).Save(attempt).Error
}

func (r *Repository) GetAttempt(ctx context.Context, id string) (*domain.Attempt, error) {
	var attempt domain.Attempt
	if err := r.db.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *Repository) ListAttempts(ctx context.Context, offset, limit int) ([]*domain.Attempt, error) {
	var attempts []*domain.Attempt
	if err := r.db.WithContext(ctx).Order("started_at desc").Offset(offset).Limit(limit).Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// ListAttemptsByLabel returns the history of a single file, newest first.
func (r *Repository) ListAttemptsByLabel(ctx context.Context, label string, offset, limit int) ([]*domain.Attempt, error) {
	var attempts []*domain.Attempt
	if err := r.db.WithContext(ctx).Where("label = ?", label).Order("started_at desc").Offset(offset).Limit(limit).Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *Repository) CountAttempts(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Attempt{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) CountAttemptsByLabel(ctx context.Context, label string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Attempt{}).Where("label = ?", label).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DB returns the underlying gorm DB instance
func (r *Repository) DB() *gorm.DB {
	return r.db
}
