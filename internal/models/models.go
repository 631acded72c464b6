package models

import (
	"time"

	"github.com/google/uuid"
)

// Description is the recorded outcome of one pipeline run
type Description struct {
	ID           uuid.UUID `json:"id"`
	VideoName    string    `json:"video_name"`
	FrameCount   int       `json:"frame_count"`
	StitchedPath string    `json:"stitched_path"`
	ImageURL     string    `json:"image_url"`
	Model        string    `json:"model"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewDescription stamps a fresh record with an id and creation time
func NewDescription(videoName string) *Description {
	return &Description{
		ID:        uuid.New(),
		VideoName: videoName,
		CreatedAt: time.Now().UTC(),
	}
}

// SearchResult is a stored description ranked against a query
type SearchResult struct {
	VideoName  string  `json:"video_name"`
	ImageURL   string  `json:"image_url"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}
