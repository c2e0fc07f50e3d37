package database

import (
	"time"

	"github.com/lysyi3m/rss-harvest/app/content"
)

type Source struct {
	ID           int64
	URL          string
	Name         string
	Category     string
	ContentMode  content.Mode
	IsActive     bool
	SortOrder    int
	ErrorCount   int
	LastError    string
	LastFetchAt  *time.Time
	ArticleCount int
	UnreadCount  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Article struct {
	ID                 int64
	SourceID           int64
	SourceName         string
	GUID               string
	Title              string
	URL                string
	Author             string
	ContentHTML        string
	Summary            string
	WordCount          int
	ReadingTimeMinutes int
	PublishedAt        time.Time
	ImageURL           string
	ImageCaption       string
	ImageCredit        string
	IsRead             bool
	IsFavorite         bool
	ReadProgress       float64
	Tags               []string
	CreatedAt          time.Time
}

type Stats struct {
	Sources       int
	ActiveSources int
	Articles      int
	Unread        int
}
