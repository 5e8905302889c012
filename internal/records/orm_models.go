package records

import "time"

type subjectRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	TextID      string    `gorm:"size:191;not null;uniqueIndex"`
	DisplayName string    `gorm:"size:256"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (subjectRow) TableName() string {
	return "subjects"
}

func (r subjectRow) toSubject() Subject {
	return Subject{ID: r.ID, TextID: r.TextID, DisplayName: r.DisplayName}
}

type sessionRow struct {
	ID              string    `gorm:"primaryKey;size:64"`
	RoomSID         string    `gorm:"column:room_sid;size:191;not null;uniqueIndex"`
	RequestedName   string    `gorm:"size:512;not null"`
	SubjectRecordID string    `gorm:"size:64"`
	SubjectTextID   string    `gorm:"size:191;not null;index"`
	StartedAt       time.Time `gorm:"not null"`
	Transcript      string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (sessionRow) TableName() string {
	return "session_records"
}

func (r sessionRow) toRecord() SessionRecord {
	return SessionRecord{
		ID:              r.ID,
		RoomSID:         r.RoomSID,
		RequestedName:   r.RequestedName,
		SubjectRecordID: r.SubjectRecordID,
		SubjectTextID:   r.SubjectTextID,
		StartedAt:       r.StartedAt.UTC(),
		Transcript:      r.Transcript,
	}
}
