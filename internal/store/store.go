// Package store persists project snapshots: the raw response, the parsed
// files in order, and publication records.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"apex-preview/internal/cache"
	"apex-preview/internal/logging"
	"apex-preview/internal/workspace"
	"apex-preview/pkg/models"
)

// ErrProjectNotFound is returned for names with no stored snapshot.
var ErrProjectNotFound = errors.New("store: project not found")

// DefaultDSN is the sqlite database used when no DSN is configured.
const DefaultDSN = "apex-preview.db"

// Store wraps the gorm database and an optional project cache.
type Store struct {
	DB    *gorm.DB
	cache *cache.ProjectCache
	log   *zap.Logger
}

// Snapshot is the input to SaveSnapshot.
type Snapshot struct {
	Name     string
	Response string
	Strategy string
	RootPath string
	Files    *workspace.Files
}

// Open connects to dsn. DSNs starting with postgres:// or postgresql:// use
// Postgres; anything else is a sqlite path (":memory:" included).
func Open(dsn string, projectCache *cache.ProjectCache) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db       *gorm.DB
		err      error
		isSQLite bool
	)
	if isPostgresDSN(dsn) {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	} else {
		isSQLite = true
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if isSQLite {
		// Each sqlite connection to ":memory:" is its own database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	s := &Store{DB: db, cache: projectCache, log: logging.Named("store")}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	s.log.Info("database connected", zap.Bool("sqlite", isSQLite))
	return s, nil
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	if err := s.DB.AutoMigrate(&models.Project{}, &models.ProjectFile{}, &models.Publication{}); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSnapshot creates or replaces the project named snap.Name.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) (*models.Project, error) {
	name := strings.TrimSpace(snap.Name)
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	files := snap.Files
	if files == nil {
		files = workspace.New()
	}

	var project models.Project
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Unscoped().Where("name = ?", name).First(&project).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			project = models.Project{Name: name}
		case err != nil:
			return err
		default:
			if err := tx.Where("project_id = ?", project.ID).Delete(&models.ProjectFile{}).Error; err != nil {
				return fmt.Errorf("failed to clear files: %w", err)
			}
		}

		project.DeletedAt = gorm.DeletedAt{}
		project.Strategy = snap.Strategy
		project.RootPath = snap.RootPath
		project.Response = snap.Response
		project.Hash = files.Hash()
		project.FileCount = files.Len()
		if err := tx.Unscoped().Save(&project).Error; err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}

		list := files.List()
		if len(list) == 0 {
			return nil
		}
		rows := make([]models.ProjectFile, len(list))
		for i, f := range list {
			rows[i] = models.ProjectFile{
				ProjectID: project.ID,
				Position:  i,
				Path:      f.Path,
				Content:   f.Content,
				Size:      int64(len(f.Content)),
			}
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("failed to save files: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, name, files.List()); err != nil {
			s.log.Warn("failed to cache project", zap.String("project", name), zap.Error(err))
		}
	}
	s.log.Info("snapshot saved", zap.String("project", name), zap.Int("files", project.FileCount))
	return &project, nil
}

// Get returns the project without its files.
func (s *Store) Get(ctx context.Context, name string) (*models.Project, error) {
	var project models.Project
	err := s.DB.WithContext(ctx).Where("name = ?", name).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return &project, nil
}

// LoadFiles returns the project's files in their stored order.
func (s *Store) LoadFiles(ctx context.Context, name string) (*workspace.Files, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, name); err == nil {
			return workspace.FromList(cached.Files), nil
		}
	}

	project, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	var rows []models.ProjectFile
	if err := s.DB.WithContext(ctx).
		Where("project_id = ?", project.ID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load files: %w", err)
	}

	files := workspace.New()
	for _, r := range rows {
		files.Set(r.Path, r.Content)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, name, files.List()); err != nil {
			s.log.Warn("failed to cache project", zap.String("project", name), zap.Error(err))
		}
	}
	return files, nil
}

// List returns all projects, most recently updated first.
func (s *Store) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := s.DB.WithContext(ctx).Order("updated_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Delete removes a project and its files.
func (s *Store) Delete(ctx context.Context, name string) error {
	project, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", project.ID).Delete(&models.ProjectFile{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(project).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, name); err != nil {
			s.log.Warn("failed to invalidate project cache", zap.String("project", name), zap.Error(err))
		}
	}
	return nil
}

// RecordPublication stores a publish result.
func (s *Store) RecordPublication(ctx context.Context, p *models.Publication) error {
	if err := s.DB.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to record publication: %w", err)
	}
	return nil
}

// Publications lists the publications of a project, newest first.
func (s *Store) Publications(ctx context.Context, project string) ([]models.Publication, error) {
	var out []models.Publication
	if err := s.DB.WithContext(ctx).
		Where("project = ?", project).
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list publications: %w", err)
	}
	return out, nil
}
