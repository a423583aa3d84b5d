// Package rss renders feeds as RSS 2.0 with the Atom and Media RSS namespaces
package rss

import (
	"html"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"threadsrss/handle"
	"threadsrss/models"
)

// MaxItems is the most items a rendered document carries
const MaxItems = 50

// TitleLength is the number of characters kept in an item title
const TitleLength = 100

// ContentType of the rendered document
const ContentType = "application/rss+xml; charset=utf-8"

const defaultLanguage = "en"

var (
	xmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)

	stripPolicy = bluemonday.StrictPolicy()
)

// Document is everything needed to render one feed
type Document struct {
	Feed    models.Feed
	Entries []models.Entry
	// SelfURL is the public address of this document
	SelfURL string
	BuiltAt time.Time
}

// Render writes doc as an RSS document. Entries are emitted newest first and
// capped at MaxItems whatever order they come in.
func Render(doc Document) []byte {
	username := handle.Username(doc.Feed.Handle)
	profile := handle.ProfileURL(doc.Feed.Handle)
	language := doc.Feed.Language
	if language == "" {
		language = defaultLanguage
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">` + "\n")
	b.WriteString("  <channel>\n")
	b.WriteString("    <title>@" + Escape(username) + " on Threads</title>\n")
	b.WriteString("    <link>" + Escape(profile) + "</link>\n")
	b.WriteString("    <description>Posts from @" + Escape(username) + " on Threads</description>\n")
	b.WriteString(`    <atom:link href="` + Escape(doc.SelfURL) + `" rel="self" type="application/rss+xml"/>` + "\n")
	b.WriteString("    <language>" + Escape(language) + "</language>\n")
	b.WriteString("    <lastBuildDate>" + formatDate(doc.BuiltAt) + "</lastBuildDate>\n")

	for _, entry := range newestFirst(doc.Entries) {
		writeItem(&b, entry, profile)
	}

	b.WriteString("  </channel>\n")
	b.WriteString("</rss>\n")

	return []byte(b.String())
}

func writeItem(b *strings.Builder, entry models.Entry, profile string) {
	link := entry.Url
	if link == "" {
		link = profile
	}

	b.WriteString("    <item>\n")
	b.WriteString("      <title>" + Escape(Truncate(StripHTML(entry.Content), TitleLength)) + "</title>\n")
	b.WriteString("      <link>" + Escape(link) + "</link>\n")
	b.WriteString(`      <guid isPermaLink="false">` + Escape(entry.ExternalId) + "</guid>\n")
	b.WriteString("      <pubDate>" + formatDate(entry.PublishedAt) + "</pubDate>\n")
	b.WriteString("      <description>" + cdata(entry.Content) + "</description>\n")
	for _, media := range entry.MediaAttachments {
		b.WriteString(`      <media:content url="` + Escape(media.Url) + `" medium="` + Escape(Medium(media.Type)) + `" type="` + MimeType(media.Type, media.Url) + `"`)
		if media.Description != "" {
			b.WriteString(` title="` + Escape(media.Description) + `"`)
		}
		b.WriteString("/>\n")
	}
	b.WriteString("    </item>\n")
}

// newestFirst returns at most MaxItems entries sorted by publishedAt descending
func newestFirst(entries []models.Entry) []models.Entry {
	sorted := make([]models.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	if len(sorted) > MaxItems {
		sorted = sorted[:MaxItems]
	}
	return sorted
}

// Escape replaces the five XML reserved characters and nothing else
func Escape(s string) string {
	return xmlEscaper.Replace(s)
}

// StripHTML drops every tag and returns the text with entities decoded
func StripHTML(s string) string {
	return html.UnescapeString(stripPolicy.Sanitize(s))
}

// Truncate cuts s to length characters and appends "..." if anything was cut
func Truncate(s string, length int) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length]) + "..."
}

// Medium is the Media RSS medium for an attachment type
func Medium(t models.MediaType) string {
	switch t {
	case models.MediaVideo, models.MediaGifv:
		return "video"
	}
	return string(t)
}

// MimeType resolves the content type of an attachment. Images are guessed
// from the file extension of their URL.
func MimeType(t models.MediaType, mediaURL string) string {
	switch t {
	case models.MediaVideo, models.MediaGifv:
		return "video/mp4"
	case models.MediaAudio:
		return "audio/mpeg"
	}

	p := mediaURL
	if u, err := url.Parse(mediaURL); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return "image/jpeg"
}

// cdata wraps s in a CDATA section, splitting any "]]>" it contains
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(http.TimeFormat)
}
