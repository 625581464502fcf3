// Package facebook scrapes Facebook groups through the markup-reduced
// mbasic site with a cookie session.
//
// Transport failures are errors. Everything after the fetch is best effort:
// a candidate that lacks an author or a post link is skipped, and missing
// content, timestamps or comment counts come back empty.
package facebook
