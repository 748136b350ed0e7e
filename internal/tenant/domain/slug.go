package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s-]`)
	whitespace = regexp.MustCompile(`\s+`)
	hyphens    = regexp.MustCompile(`-+`)
)

// Slugify lowercases s, strips non-word characters, turns whitespace runs into hyphens,
// collapses repeated hyphens and trims them from both ends. An empty result falls back to
// "workspace-<unix millis>" of now.
func Slugify(s string, now time.Time) string {
	out := strings.TrimSpace(strings.ToLower(s))
	out = nonWord.ReplaceAllString(out, "")
	out = whitespace.ReplaceAllString(out, "-")
	out = hyphens.ReplaceAllString(out, "-")
	out = strings.Trim(out, "-")
	if out == "" {
		return fmt.Sprintf("workspace-%d", now.UnixMilli())
	}
	return out
}

// SuffixSlug disambiguates a slug that collided with an existing tenant.
func SuffixSlug(slug string, now time.Time) string {
	return fmt.Sprintf("%s-%d", slug, now.UnixMilli())
}

// DisplaySource returns the full name when present, otherwise the local part of email.
func DisplaySource(fullName, email string) string {
	if n := strings.TrimSpace(fullName); n != "" {
		return n
	}
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return local
}

// DefaultName is the name of an auto-provisioned workspace.
func DefaultName(fullName, email string) string {
	src := DisplaySource(fullName, email)
	if src == "" {
		return "Workspace"
	}
	return src + "'s Workspace"
}
