package subscriptions

import "github.com/lysyi3m/rss-harvest/app/content"

// Subscription is one feeds/<name>.yml file.
type Subscription struct {
	Name        string       `yaml:"name" validate:"max=200"`
	URL         string       `yaml:"url" validate:"required,feedurl"`
	Category    string       `yaml:"category" validate:"max=100"`
	ContentMode content.Mode `yaml:"content_mode" validate:"omitempty,oneof=text image_text"`
	Enabled     *bool        `yaml:"enabled"`
	SortOrder   int          `yaml:"sort_order" validate:"min=0"`

	// File is the config file name without extension.
	File string `yaml:"-"`
}

func (s *Subscription) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}
