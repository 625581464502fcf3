package facebook

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"feedharvest/pkg/models"
	"feedharvest/pkg/session"
)

// Extractor isolates the markup heuristics from the transport. The basic
// page variant changes without notice; a new layout only needs a new
// Extractor.
type Extractor interface {
	// GroupPosts returns at most limit posts found on a group page
	GroupPosts(doc *goquery.Document, groupID string, limit int) []models.CanonicalPost
	// Comments returns the comments found on a post page, looking at the
	// first limit candidate blocks
	Comments(doc *goquery.Document, postID string, limit int) []models.Comment
	// GroupName returns the group's display name, empty when unknown
	GroupName(doc *goquery.Document) string
	// SessionState classifies a fetched home page
	SessionState(body, finalURL string) session.Validity
}

var (
	groupPostHref  = regexp.MustCompile(`/groups/\d+/posts/(\d+)`)
	commentLabel   = regexp.MustCompile(`^(\d+)\s+Comment`)
	numericBlockID = regexp.MustCompile(`^[0-9]+$`)
)

// BasicExtractor reads mbasic.facebook.com markup
type BasicExtractor struct{}

var _ Extractor = BasicExtractor{}

// GroupPosts treats every direct child div of the feed container as one
// candidate and keeps the ones that yield an author and a post id
func (e BasicExtractor) GroupPosts(doc *goquery.Document, groupID string, limit int) []models.CanonicalPost {
	container := feedContainer(doc)
	if container.Length() == 0 || limit <= 0 {
		return nil
	}

	var posts []models.CanonicalPost
	container.ChildrenFiltered("div").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		if post, ok := e.post(div, groupID); ok {
			posts = append(posts, post)
		}
		return len(posts) < limit
	})
	return posts
}

// feedContainer falls back from the stories container to the main region
// and then to the body
func feedContainer(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"div#m_group_stories_container", `div[role="main"]`, "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return doc.Selection.Slice(0, 0)
}

func (e BasicExtractor) post(div *goquery.Selection, groupID string) (models.CanonicalPost, bool) {
	author := authorOf(div)
	if author == "" {
		return models.CanonicalPost{}, false
	}

	links := div.Find("a[href]")
	var storyID string
	links.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m := groupPostHref.FindStringSubmatch(href); m != nil {
			storyID = m[1]
			return false
		}
		return true
	})
	if storyID == "" {
		return models.CanonicalPost{}, false
	}

	var content string
	if d := div.Find(`div[class*="d"]`).First(); d.Length() > 0 {
		content = strippedText(d)
	} else {
		var paragraphs []string
		div.Find("p").Each(func(_ int, p *goquery.Selection) {
			paragraphs = append(paragraphs, strippedText(p))
		})
		content = strings.Join(paragraphs, "\n")
	}

	commentCount := 0
	links.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if m := commentLabel.FindStringSubmatch(strippedText(a)); m != nil {
			commentCount, _ = strconv.Atoi(m[1])
			return false
		}
		return true
	})

	return models.CanonicalPost{
		ID:           models.FacebookIDPrefix + storyID,
		Platform:     models.PlatformFacebook,
		Owner:        groupID,
		Kind:         models.KindGroupPost,
		Author:       author,
		Text:         content,
		Timestamp:    utime(div),
		Permalink:    PostPermalink(groupID, storyID),
		CommentCount: commentCount,
	}, true
}

// authorOf reads the first heading, else the first strong element,
// preferring the text of its link
func authorOf(div *goquery.Selection) string {
	el := div.Find("h3").First()
	if el.Length() == 0 {
		el = div.Find("strong").First()
	}
	if el.Length() == 0 {
		return ""
	}
	if a := el.Find("a").First(); a.Length() > 0 {
		return strippedText(a)
	}
	return strippedText(el)
}

// Comments reads blocks whose id is purely numeric. Order is the block's
// position among the candidates, so dropped blocks leave gaps.
func (e BasicExtractor) Comments(doc *goquery.Document, postID string, limit int) []models.Comment {
	blocks := doc.Find("div[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		return numericBlockID.MatchString(id)
	})

	var comments []models.Comment
	blocks.EachWithBreak(func(i int, block *goquery.Selection) bool {
		if i >= limit {
			return false
		}

		author := "Unknown"
		if a := block.Find("a").First(); a.Length() > 0 {
			author = strippedText(a)
		}

		var parts []string
		block.Find("div, span").EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if text := strippedText(el); text != "" && text != author {
				parts = append(parts, text)
			}
			return len(parts) < 2
		})
		if len(parts) == 0 {
			return true
		}

		comments = append(comments, models.Comment{
			PostID:    postID,
			Author:    author,
			Text:      strings.Join(parts, " "),
			Timestamp: utime(block),
			Order:     i,
		})
		return true
	})
	return comments
}

// GroupName returns the page title
func (e BasicExtractor) GroupName(doc *goquery.Document) string {
	return strippedText(doc.Find("title").First())
}

// SessionState looks for the login form or a logout control
func (e BasicExtractor) SessionState(body, finalURL string) session.Validity {
	if strings.Contains(finalURL, "login") || strings.Contains(body, "login_form") {
		return session.Invalid
	}
	if strings.Contains(body, "mbasic_logout_button") || strings.Contains(strings.ToLower(body), "logout") {
		return session.Valid
	}
	return session.Invalid
}

// utime reads the first abbr[data-utime]; the zero time when absent or
// malformed
func utime(s *goquery.Selection) time.Time {
	v, ok := s.Find("abbr[data-utime]").First().Attr("data-utime")
	if !ok {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// strippedText concatenates every descendant text node with surrounding
// whitespace removed
func strippedText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}

// fallbackGroupName is used when a group page has no title
func fallbackGroupName(groupID string) string {
	return fmt.Sprintf("Group %s", groupID)
}
