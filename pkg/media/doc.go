// Package media downloads post images and videos to a directory tree keyed
// by platform, owner, post id and order. Fetch is idempotent by path.
package media
