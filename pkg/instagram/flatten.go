package instagram

import (
	"time"

	"feedharvest/pkg/models"
)

// bestImage returns the URL of the largest candidate, the first one on ties
func bestImage(iv *ImageVersions) string {
	if iv == nil {
		return ""
	}
	best, bestArea := "", -1
	for _, c := range iv.Candidates {
		if c.URL == "" {
			continue
		}
		if area := c.Width * c.Height; area > bestArea {
			best, bestArea = c.URL, area
		}
	}
	return best
}

// mediaURL picks the video URL when present, else the best image
func mediaURL(videos []VideoVersion, images *ImageVersions) (string, models.MediaKind) {
	for _, v := range videos {
		if v.URL != "" {
			return v.URL, models.MediaVideo
		}
	}
	return bestImage(images), models.MediaImage
}

// flattenMedia turns an item into ordered media items. Carousel slides keep
// their carousel position as order even when a slide before them is dropped.
func flattenMedia(item Item) []models.MediaItem {
	if len(item.CarouselMedia) > 0 {
		media := make([]models.MediaItem, 0, len(item.CarouselMedia))
		for i, cm := range item.CarouselMedia {
			url, kind := mediaURL(cm.VideoVersions, cm.ImageVersions2)
			if url == "" {
				continue
			}
			media = append(media, models.MediaItem{Kind: kind, SourceURL: url, Order: i})
		}
		return media
	}

	url, kind := mediaURL(item.VideoVersions, item.ImageVersions2)
	if url == "" {
		return nil
	}
	return []models.MediaItem{{Kind: kind, SourceURL: url, Order: 0}}
}

func takenAt(unix int64) time.Time {
	if unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

// FlattenPost converts a feed item. ok is false when the item carries no
// id or no usable media.
func FlattenPost(item Item, owner string) (post models.CanonicalPost, ok bool) {
	media := flattenMedia(item)
	if item.PK == "" || len(media) == 0 {
		return models.CanonicalPost{}, false
	}

	kind := models.KindPost
	if item.MediaType == mediaTypeVideo && len(item.VideoVersions) > 0 {
		kind = models.KindReel
	}

	var text string
	if item.Caption != nil {
		text = item.Caption.Text
	}

	return models.CanonicalPost{
		ID:        string(item.PK),
		Platform:  models.PlatformInstagram,
		Owner:     owner,
		Kind:      kind,
		Author:    owner,
		Text:      text,
		Timestamp: takenAt(item.TakenAt),
		Permalink: PostURL(item.Code),
		Media:     media,
	}, true
}

// FlattenStory converts a story item. Stories carry exactly one media item.
func FlattenStory(item Item, owner string) (post models.CanonicalPost, ok bool) {
	url, kind := mediaURL(item.VideoVersions, item.ImageVersions2)
	if item.PK == "" || url == "" {
		return models.CanonicalPost{}, false
	}

	return models.CanonicalPost{
		ID:        string(item.PK),
		Platform:  models.PlatformInstagram,
		Owner:     owner,
		Kind:      models.KindStory,
		Author:    owner,
		Timestamp: takenAt(item.TakenAt),
		Permalink: StoryURL(owner, string(item.PK)),
		Media:     []models.MediaItem{{Kind: kind, SourceURL: url, Order: 0}},
	}, true
}
