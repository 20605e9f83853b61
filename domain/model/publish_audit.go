package model

import "time"

// PublishAudit is an append-only log of publish attempts.
type PublishAudit struct {
	ID           int64     `json:"id"            gorm:"primaryKey;autoIncrement"`
	RecordID     int64     `json:"record_id"     gorm:"index"`
	ContentID    string    `json:"content_id"    gorm:"size:128;index"`
	Platform     string    `json:"platform"      gorm:"size:32"`
	AccountID    *int64    `json:"account_id"`
	Status       string    `json:"status"        gorm:"size:48"`
	ErrorMessage *string   `json:"error_message" gorm:"type:text"`
	Attempt      int       `json:"attempt"`
	CreatedAt    time.Time `json:"created_at"    gorm:"autoCreateTime;index"`
}

func (PublishAudit) TableName() string { return "publish_audits" }
