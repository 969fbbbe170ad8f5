package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Session is a server-side login record. The cookie only carries a signed
// reference to it, so deleting the row logs the client out.
type Session struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;size:36"`
	UserID    uuid.UUID `json:"user_id" gorm:"size:36;not null;index"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		s.ID = id
	}
	return nil
}

func (s *Session) IsExpired() bool {
	return !time.Now().Before(s.ExpiresAt)
}
