package models

import "time"

// Attachment is one uploaded object appended to an article.
type Attachment struct {
	Name       string `json:"name"`
	Reference  string `json:"reference"`
	RemotePath string `json:"remote_path"`
	Size       int64  `json:"size"`
}

// Article is the part of a portal article the router touches.
type Article struct {
	ID          string
	Fields      map[string]string
	Attachments []Attachment
	Draft       bool
}

// User is the part of a portal user record the router touches.
type User struct {
	ID         string
	PictureRef string
}

// Notification is a pending cross-page notice about a finished upload.
type Notification struct {
	ID          string
	TaskID      string
	OwnerID     string
	FileName    string
	Reference   string
	RemotePath  string
	CreatedAt   time.Time
	DeliveredAt *time.Time
}
