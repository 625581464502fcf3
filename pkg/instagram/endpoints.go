package instagram

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// AppID is the web app id the site sends with every API call
	AppID = "936619743392459"

	ProfileEndpoint    = "/api/v1/users/web_profile_info/"
	FollowingEndpoint  = "/api/v1/friendships/%s/following/"
	UserFeedEndpoint   = "/api/v1/feed/user/%s/username/"
	ReelsMediaEndpoint = "/api/v1/feed/reels_media/"

	// FollowingPageSize is the page size requested for the following list
	FollowingPageSize = 100

	// FeedPageSize is the largest page the user feed endpoint serves
	FeedPageSize = 12

	// probeUsername is a public profile that always exists
	probeUsername = "instagram"
)

// ProfileURL constructs the URL for a user's profile info
func ProfileURL(base, username string) string {
	params := url.Values{}
	params.Set("username", username)

	return fmt.Sprintf("%s%s?%s", base, ProfileEndpoint, params.Encode())
}

// FollowingURL constructs one page of the following list of userID
func FollowingURL(base, userID, maxID string) string {
	params := url.Values{}
	params.Set("count", strconv.Itoa(FollowingPageSize))
	if maxID != "" {
		params.Set("max_id", maxID)
	}

	path := fmt.Sprintf(FollowingEndpoint, url.PathEscape(userID))
	return fmt.Sprintf("%s%s?%s", base, path, params.Encode())
}

// UserFeedURL constructs one page of a user's feed. count is clamped to
// [1, FeedPageSize].
func UserFeedURL(base, username string, count int, maxID string) string {
	if count <= 0 || count > FeedPageSize {
		count = FeedPageSize
	}

	params := url.Values{}
	params.Set("count", strconv.Itoa(count))
	if maxID != "" {
		params.Set("max_id", maxID)
	}

	path := fmt.Sprintf(UserFeedEndpoint, url.PathEscape(username))
	return fmt.Sprintf("%s%s?%s", base, path, params.Encode())
}

// ReelsMediaURL constructs the stories request for userID
func ReelsMediaURL(base, userID string) string {
	params := url.Values{}
	params.Set("reel_ids", userID)

	return fmt.Sprintf("%s%s?%s", base, ReelsMediaEndpoint, params.Encode())
}

// PostURL constructs the public permalink of a post
func PostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// StoryURL constructs the public permalink of a story item
func StoryURL(username, pk string) string {
	return fmt.Sprintf("%s/stories/%s/%s/", BaseURL, username, pk)
}
