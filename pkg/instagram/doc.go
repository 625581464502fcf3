// Package instagram is a cookie-session client for Instagram's private web
// API.
//
// Every call goes through a session.Requester: a jittered politeness delay
// before each logical request, browser headers plus X-IG-App-ID and
// X-CSRFToken, and bounded retry of 429 and 5xx responses. Feed and story
// items are flattened into models.CanonicalPost:
//
//	client := instagram.NewClient(instagram.Options{
//	    Cookies: cookies,
//	    Config:  cfg.Instagram,
//	    Logger:  log,
//	})
//
//	if client.Validate(ctx) != session.Valid {
//	    // refresh cookies
//	}
//
//	posts, err := client.UserPosts(ctx, "natgeo", 20)
//
// A carousel becomes one media item per slide, ordered by slide position.
// Videos win over images; among image renditions the largest is used.
// Items without an id or without any media URL are dropped.
package instagram
