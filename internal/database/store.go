package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abdala981br/automacao/internal/domain"
)

// Store 基于 GORM 实现身份、资料与投递记录的持久化，所有查询都按身份分区。
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore wraps an opened and migrated database.
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateAnonymousUser 创建新的匿名身份并返回其 UID。
func (s *Store) CreateAnonymousUser(ctx context.Context) (string, error) {
	user := User{UID: uuid.NewString(), Anonymous: true}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return "", fmt.Errorf("create anonymous user: %w", err)
	}
	return user.UID, nil
}

// UserExists reports whether the identity is known.
func (s *Store) UserExists(ctx context.Context, uid string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("uid = ?", uid).Count(&count).Error; err != nil {
		return false, fmt.Errorf("lookup user %s: %w", uid, err)
	}
	return count > 0, nil
}

// GetProfile 返回身份的资料；不存在时返回 nil, nil，由调用方决定默认值。
func (s *Store) GetProfile(ctx context.Context, uid string) (*domain.UserProfile, error) {
	var row Profile
	err := s.db.WithContext(ctx).Where("user_uid = ?", uid).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &domain.UserProfile{
		FullName:    row.FullName,
		Email:       row.Email,
		LinkedinURL: row.LinkedinURL,
		Bio:         row.Bio,
		Experience:  row.Experience,
		Skills:      row.Skills,
	}, nil
}

// SaveProfile 整体覆盖资料行（不存在则插入）。
func (s *Store) SaveProfile(ctx context.Context, uid string, profile domain.UserProfile) error {
	row := Profile{
		UserUID:     uid,
		FullName:    profile.FullName,
		Email:       profile.Email,
		LinkedinURL: profile.LinkedinURL,
		Bio:         profile.Bio,
		Experience:  profile.Experience,
		Skills:      profile.Skills,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// CreateApplication 写入新的投递记录；ID 与 CreatedAt 由存储层分配并回填。
func (s *Store) CreateApplication(ctx context.Context, uid string, app domain.JobApplication) (domain.JobApplication, error) {
	status, notes, question := domain.Fields(app.Detail)
	row := Application{
		UserUID:          uid,
		Company:          app.Company,
		Role:             app.Role,
		Platform:         string(app.Platform),
		Date:             app.Date.UTC(),
		Status:           string(status),
		Notes:            notes,
		QuestionToAnswer: question,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.JobApplication{}, fmt.Errorf("create application: %w", err)
	}
	return toDomain(row)
}

// ListApplications 返回身份的全部投递记录，按日期倒序。
// 不满足状态约束的行会被跳过并记录日志。
func (s *Store) ListApplications(ctx context.Context, uid string) ([]domain.JobApplication, error) {
	var rows []Application
	err := s.db.WithContext(ctx).
		Where("user_uid = ?", uid).
		Order("date DESC").
		Order("created_at DESC").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	apps := make([]domain.JobApplication, 0, len(rows))
	for _, row := range rows {
		app, err := toDomain(row)
		if err != nil {
			s.logger.Warn("skipping inconsistent application row",
				slog.String("application_id", row.ID),
				slog.Any("error", err),
			)
			continue
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// ResolveApplication 仅当记录仍处于 needs_input 时才将其改为 applied。
// 条件更新保证并发的两次调用只有一次成功。
func (s *Store) ResolveApplication(ctx context.Context, uid, id string, resolved domain.Applied) error {
	status, notes, question := domain.Fields(resolved)
	res := s.db.WithContext(ctx).
		Model(&Application{}).
		Where("id = ? AND user_uid = ? AND status = ?", id, uid, string(domain.StatusNeedsInput)).
		Updates(map[string]any{
			"status":             string(status),
			"notes":              notes,
			"question_to_answer": question,
		})
	if res.Error != nil {
		return fmt.Errorf("resolve application %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Application{}).
		Where("id = ? AND user_uid = ?", id, uid).
		Count(&count).Error; err != nil {
		return fmt.Errorf("lookup application %s: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", domain.ErrApplicationNotFound, id)
	}
	return fmt.Errorf("%w: %s", domain.ErrNotAwaitingInput, id)
}

func toDomain(row Application) (domain.JobApplication, error) {
	platform, err := domain.ParsePlatform(row.Platform)
	if err != nil {
		return domain.JobApplication{}, err
	}
	detail, err := domain.DetailFromFields(domain.Status(row.Status), row.Notes, row.QuestionToAnswer)
	if err != nil {
		return domain.JobApplication{}, err
	}
	app := domain.JobApplication{
		ID:       row.ID,
		Company:  row.Company,
		Role:     row.Role,
		Platform: platform,
		Date:     row.Date,
		Detail:   detail,
	}
	if !row.CreatedAt.IsZero() {
		createdAt := row.CreatedAt
		app.CreatedAt = &createdAt
	}
	return app, nil
}
