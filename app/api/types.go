package api

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-harvest/app/database"
	"github.com/lysyi3m/rss-harvest/app/fetch"
	"github.com/lysyi3m/rss-harvest/app/tasks"
)

type SourceStore interface {
	ListSources(ctx context.Context, activeOnly bool) ([]database.Source, error)
	GetSource(ctx context.Context, id int64) (*database.Source, error)
	GetStats(ctx context.Context) (database.Stats, error)
}

type ArticleLister interface {
	GetArticles(ctx context.Context, sourceID int64, limit, offset int) ([]database.Article, error)
}

type SourceRefresher interface {
	RefreshSource(ctx context.Context, source database.Source) ([]database.Article, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetch.Options) ([]byte, error)
}

var (
	_ SourceRefresher = (*tasks.Orchestrator)(nil)
	_ Fetcher         = (*fetch.Client)(nil)
)

type Handler struct {
	sources   SourceStore
	articles  ArticleLister
	refresher SourceRefresher
	scheduler tasks.TaskSchedulerInterface
	transport string
	version   string
	startedAt time.Time
}

type sourceResponse struct {
	ID           int64      `json:"id"`
	URL          string     `json:"url"`
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	ContentMode  string     `json:"content_mode"`
	IsActive     bool       `json:"is_active"`
	SortOrder    int        `json:"sort_order"`
	ErrorCount   int        `json:"error_count"`
	LastError    string     `json:"last_error,omitempty"`
	LastFetchAt  *time.Time `json:"last_fetch_at"`
	ArticleCount int        `json:"article_count"`
	UnreadCount  int        `json:"unread_count"`
}

type articleResponse struct {
	ID                 int64     `json:"id"`
	SourceID           int64     `json:"source_id"`
	SourceName         string    `json:"source_name"`
	Title              string    `json:"title"`
	URL                string    `json:"url"`
	Author             string    `json:"author,omitempty"`
	ContentHTML        string    `json:"content_html"`
	Summary            string    `json:"summary"`
	WordCount          int       `json:"word_count"`
	ReadingTimeMinutes int       `json:"reading_time_minutes"`
	PublishedAt        time.Time `json:"published_at"`
	ImageURL           string    `json:"image_url,omitempty"`
	ImageCaption       string    `json:"image_caption,omitempty"`
	ImageCredit        string    `json:"image_credit,omitempty"`
	IsRead             bool      `json:"is_read"`
	IsFavorite         bool      `json:"is_favorite"`
	ReadProgress       float64   `json:"read_progress"`
	Tags               []string  `json:"tags"`
}

func toSourceResponse(s database.Source) sourceResponse {
	return sourceResponse{
		ID:           s.ID,
		URL:          s.URL,
		Name:         s.Name,
		Category:     s.Category,
		ContentMode:  string(s.ContentMode),
		IsActive:     s.IsActive,
		SortOrder:    s.SortOrder,
		ErrorCount:   s.ErrorCount,
		LastError:    s.LastError,
		LastFetchAt:  s.LastFetchAt,
		ArticleCount: s.ArticleCount,
		UnreadCount:  s.UnreadCount,
	}
}

func toArticleResponses(articles []database.Article) []articleResponse {
	out := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		tags := a.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, articleResponse{
			ID:                 a.ID,
			SourceID:           a.SourceID,
			SourceName:         a.SourceName,
			Title:              a.Title,
			URL:                a.URL,
			Author:             a.Author,
			ContentHTML:        a.ContentHTML,
			Summary:            a.Summary,
			WordCount:          a.WordCount,
			ReadingTimeMinutes: a.ReadingTimeMinutes,
			PublishedAt:        a.PublishedAt,
			ImageURL:           a.ImageURL,
			ImageCaption:       a.ImageCaption,
			ImageCredit:        a.ImageCredit,
			IsRead:             a.IsRead,
			IsFavorite:         a.IsFavorite,
			ReadProgress:       a.ReadProgress,
			Tags:               tags,
		})
	}
	return out
}
