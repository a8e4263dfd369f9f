package subscriber

import (
	"time"

	"leetmail/internal/slot"
)

// Subscriber is one email address following the daily problem.
// LastSentDate/LastSentSlot form the dedup marker: at most one email per
// (local date, slot).
type Subscriber struct {
	ID                uint64     `gorm:"primaryKey"`
	LeetcodeUsername  string     `gorm:"type:text;not null"`
	Email             string     `gorm:"type:text;uniqueIndex;not null"`
	Timezone          string     `gorm:"type:text;not null"`
	EmailVerified     bool       `gorm:"not null;default:false"`
	Unsubscribed      bool       `gorm:"not null;default:false"`
	VerificationToken string     `gorm:"type:text;uniqueIndex;not null"`
	LastSentDate      *time.Time `gorm:"type:date"`
	LastSentSlot      *string    `gorm:"type:text"`
	CreatedAt         time.Time  `gorm:"not null;default:now()"`
	UpdatedAt         time.Time  `gorm:"not null;default:now()"`
}

func (Subscriber) TableName() string { return "subscribers" }

func (s Subscriber) Eligible() bool {
	return s.EmailVerified && !s.Unsubscribed
}

// Notified reports whether the marker already covers (date, slotName).
func (s Subscriber) Notified(date time.Time, slotName string) bool {
	if s.LastSentDate == nil || s.LastSentSlot == nil {
		return false
	}
	return *s.LastSentSlot == slotName && slot.SameDate(*s.LastSentDate, date)
}
