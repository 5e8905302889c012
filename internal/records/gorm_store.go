package records

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/Aaditya4007/AI-interviewer/internal/db"
	"github.com/Aaditya4007/AI-interviewer/internal/ids"
)

// GormStore keeps subjects and session records in sqlite or postgres. The unique index
// on room_sid turns a concurrent second insert into ErrDuplicateSession.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(driver, dsn string, logger *log.Logger) (*GormStore, error) {
	gormDB, err := dbpkg.OpenGorm(driver, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	store := &GormStore{db: gormDB}
	if err := gormDB.AutoMigrate(&subjectRow{}, &sessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate record store: %w", err)
	}
	return store, nil
}

func (s *GormStore) FindSessionBySID(ctx context.Context, roomSID string) (SessionRecord, error) {
	roomSID = strings.TrimSpace(roomSID)
	if roomSID == "" {
		return SessionRecord{}, fmt.Errorf("room sid is required")
	}
	var row sessionRow
	err := s.db.WithContext(ctx).Where("room_sid = ?", roomSID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SessionRecord{}, ErrNotFound
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) FindSubjectByTextID(ctx context.Context, textID string) (Subject, error) {
	textID = strings.TrimSpace(textID)
	if textID == "" {
		return Subject{}, ErrNotFound
	}
	var row subjectRow
	err := s.db.WithContext(ctx).Where("text_id = ?", textID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Subject{}, ErrNotFound
		}
		return Subject{}, fmt.Errorf("get subject: %w", err)
	}
	return row.toSubject(), nil
}

func (s *GormStore) CreateSessionRecord(ctx context.Context, in NewSessionRecord) (SessionRecord, error) {
	now := time.Now().UTC()
	in = in.normalized(now)
	if strings.TrimSpace(in.RoomSID) == "" {
		return SessionRecord{}, fmt.Errorf("room sid is required")
	}
	row := sessionRow{
		ID:              ids.NewWithPrefix("rec"),
		RoomSID:         in.RoomSID,
		RequestedName:   in.RequestedName,
		SubjectRecordID: in.SubjectRecordID,
		SubjectTextID:   in.SubjectTextID,
		StartedAt:       in.StartedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return SessionRecord{}, fmt.Errorf("%w: %s", ErrDuplicateSession, in.RoomSID)
		}
		return SessionRecord{}, fmt.Errorf("create session: %w", err)
	}
	return row.toRecord(), nil
}

// UpsertSubject seeds or updates the subject roster keyed by text id.
func (s *GormStore) UpsertSubject(ctx context.Context, subject Subject) (Subject, error) {
	subject.TextID = strings.TrimSpace(subject.TextID)
	if subject.TextID == "" {
		return Subject{}, fmt.Errorf("subject text id is required")
	}
	if subject.ID == "" {
		subject.ID = ids.NewWithPrefix("rec")
	}
	now := time.Now().UTC()
	row := subjectRow{
		ID:          subject.ID,
		TextID:      subject.TextID,
		DisplayName: subject.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "text_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return Subject{}, fmt.Errorf("upsert subject: %w", err)
	}
	return s.FindSubjectByTextID(ctx, subject.TextID)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}
