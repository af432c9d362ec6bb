package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/auracommerce/aura-backend/pkg/enums"
)

// Notification is a customer-facing message about an order, return, or
// promotion. Rows are immutable apart from the read flag.
type Notification struct {
	ID      uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID  uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Type    enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title   string                 `gorm:"column:title;not null"`
	Message string                 `gorm:"column:message;not null"`
	Link    *string                `gorm:"column:link"`
	IsRead  bool                   `gorm:"column:is_read;not null;default:false;index"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
