package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// MaxTaskLength bounds Todo.Task, counted in characters.
const MaxTaskLength = 180

type Todo struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;size:36"`
	Task      string     `json:"task" gorm:"size:180;not null"`
	Completed bool       `json:"completed" gorm:"not null;default:false"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	OwnerID   *uuid.UUID `json:"owner" gorm:"size:36;index"`
}

func (t *Todo) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	return nil
}

// OwnedBy reports whether the todo belongs to ownerID. Orphaned todos
// belong to nobody.
func (t *Todo) OwnedBy(ownerID uuid.UUID) bool {
	return t.OwnerID != nil && *t.OwnerID == ownerID
}
