package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Feed is one Threads account that can be served as RSS
type Feed struct {
	Id              int64      `json:"-"`
	PublicId        string     `json:"id"`
	Handle          string     `json:"handle"`
	RemoteAccountId string     `json:"remoteAccountId,omitempty"`
	DisplayName     string     `json:"displayName,omitempty"`
	AvatarUrl       string     `json:"avatarUrl,omitempty"`
	Language        string     `json:"language,omitempty"`
	LastFetchedAt   *time.Time `json:"lastFetchedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Username is the handle without the domain suffix
func (f Feed) Username() string {
	username, _, _ := strings.Cut(f.Handle, "@")
	return username
}

// Name returns the upstream display name, or @username if the account has none.
func (f Feed) Name() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return "@" + f.Username()
}

// Entry is a single ingested upstream status
type Entry struct {
	Id               int64            `json:"-"`
	FeedId           int64            `json:"-"`
	ExternalId       string           `json:"externalId"`
	Content          string           `json:"content"`
	Url              string           `json:"url,omitempty"`
	MediaAttachments MediaAttachments `json:"mediaAttachments,omitempty"`
	PublishedAt      time.Time        `json:"publishedAt"`
	CreatedAt        time.Time        `json:"createdAt"`
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaGifv  MediaType = "gifv"
	MediaAudio MediaType = "audio"
)

// Known reports whether t is one of the media types we keep
func (t MediaType) Known() bool {
	switch t {
	case MediaImage, MediaVideo, MediaGifv, MediaAudio:
		return true
	}
	return false
}

type MediaAttachment struct {
	Type        MediaType `json:"type"`
	Url         string    `json:"url"`
	PreviewUrl  string    `json:"previewUrl,omitempty"`
	Description string    `json:"description,omitempty"`
}

// MediaAttachments is stored as a JSON column. A nil value is stored as NULL.
type MediaAttachments []MediaAttachment

func (m MediaAttachments) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal([]MediaAttachment(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *MediaAttachments) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported media attachments type %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	var out []MediaAttachment
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode media attachments: %w", err)
	}
	if len(out) == 0 {
		*m = nil
		return nil
	}
	*m = out
	return nil
}

// SyncResult summarises one sync of a feed
type SyncResult struct {
	NewEntries int `json:"newEntries"`
	Skipped    int `json:"skipped"`
}
