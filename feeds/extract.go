package feeds

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"threadsrss/mastodon"
	"threadsrss/models"
)

// Extract maps one upstream status onto the fields of an Entry. Content is
// kept verbatim. Attachments of unknown type are dropped and an empty list
// becomes nil. An unparseable timestamp is returned as malformed upstream
// data so the caller can abort the batch.
func Extract(status mastodon.Status) (models.Entry, error) {
	if status.Id == "" {
		return models.Entry{}, mastodon.Malformed("extract status", fmt.Errorf("status has no id"))
	}

	publishedAt, err := time.Parse(time.RFC3339Nano, status.CreatedAt)
	if err != nil {
		return models.Entry{}, mastodon.Malformed("extract status", fmt.Errorf("status %s created_at %q: %w", status.Id, status.CreatedAt, err))
	}

	return models.Entry{
		ExternalId:       status.Id,
		Content:          status.Content,
		Url:              status.Url,
		MediaAttachments: extractMedia(status.MediaAttachments),
		PublishedAt:      publishedAt.UTC(),
	}, nil
}

func extractMedia(attachments []mastodon.MediaAttachment) models.MediaAttachments {
	media := lo.FilterMap(attachments, func(a mastodon.MediaAttachment, _ int) (models.MediaAttachment, bool) {
		t := models.MediaType(a.Type)
		if !t.Known() {
			return models.MediaAttachment{}, false
		}
		return models.MediaAttachment{
			Type:        t,
			Url:         a.Url,
			PreviewUrl:  a.PreviewUrl,
			Description: a.Description,
		}, true
	})

	if len(media) == 0 {
		return nil
	}
	return media
}
