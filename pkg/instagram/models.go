package instagram

import (
	"bytes"
	"encoding/json"
)

// ID decodes identifiers the API sends either as JSON numbers or strings
type ID string

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// ProfileResponse is the body of web_profile_info
type ProfileResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Status          string `json:"status"`
	Data            struct {
		User *Profile `json:"user"`
	} `json:"data"`
}

// Profile is the subset of a user profile the harvester reads
type Profile struct {
	ID            ID     `json:"id"`
	Username      string `json:"username"`
	ProfilePicURL string `json:"profile_pic_url"`
}

// FollowingResponse is one page of the following list
type FollowingResponse struct {
	Users     []FollowingUser `json:"users"`
	NextMaxID ID              `json:"next_max_id"`
}

// FollowingUser is one followed account
type FollowingUser struct {
	PK       ID     `json:"pk"`
	Username string `json:"username"`
}

// FeedResponse is one page of a user's feed
type FeedResponse struct {
	Items         []Item `json:"items"`
	NextMaxID     ID     `json:"next_max_id"`
	MoreAvailable bool   `json:"more_available"`
}

// ReelsResponse is the stories payload keyed by user id
type ReelsResponse struct {
	Reels map[string]Reel `json:"reels"`
}

// Reel holds the story items of one user
type Reel struct {
	Items []Item `json:"items"`
}

// Item is a raw feed or story item
type Item struct {
	PK             ID              `json:"pk"`
	Code           string          `json:"code"`
	TakenAt        int64           `json:"taken_at"`
	MediaType      int             `json:"media_type"`
	Caption        *Caption        `json:"caption"`
	ImageVersions2 *ImageVersions  `json:"image_versions2"`
	VideoVersions  []VideoVersion  `json:"video_versions"`
	CarouselMedia  []CarouselMedia `json:"carousel_media"`
}

// CarouselMedia is one slide of a carousel post
type CarouselMedia struct {
	MediaType      int            `json:"media_type"`
	ImageVersions2 *ImageVersions `json:"image_versions2"`
	VideoVersions  []VideoVersion `json:"video_versions"`
}

// Caption wraps the text of a post
type Caption struct {
	Text string `json:"text"`
}

// ImageVersions lists the renditions of an image
type ImageVersions struct {
	Candidates []ImageCandidate `json:"candidates"`
}

// ImageCandidate is one image rendition
type ImageCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// VideoVersion is one video rendition
type VideoVersion struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// mediaTypeVideo is the media_type of a video item
const mediaTypeVideo = 2
