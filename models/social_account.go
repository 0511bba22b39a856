package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConnectionState string

const (
	ConnectionConnected    ConnectionState = "connected"
	ConnectionError        ConnectionState = "error"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// SocialAccount is a linked external platform identity.
// Created on successful connect, refreshed by the sync worker, removed on disconnect.
type SocialAccount struct {
	ID             string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string          `gorm:"not null;uniqueIndex:idx_social_user_platform" json:"user_id"`
	Platform       Platform        `gorm:"type:varchar(16);not null;uniqueIndex:idx_social_user_platform" json:"platform"`
	ExternalID     string          `json:"external_id,omitempty"`
	Username       string          `gorm:"not null" json:"username"`
	FollowerCount  int64           `gorm:"default:0" json:"follower_count"`
	FollowingCount int64           `gorm:"default:0" json:"following_count"`
	Verified       bool            `gorm:"default:false" json:"verified"`
	State          ConnectionState `gorm:"type:varchar(16);default:'connected'" json:"connection_state"`
	LastSyncAt     *time.Time      `gorm:"index" json:"last_sync_at,omitempty"`
	LastSyncError  string          `json:"last_sync_error,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (a *SocialAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
