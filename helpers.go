package otherwise

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents strips combining marks so "Café" slugs as "cafe".
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts a title to a URL-safe slug. Whitespace, hyphens and
// underscores become single hyphens; other punctuation is dropped.
func Slugify(s string) string {
	if folded, _, err := transform.String(foldAccents, s); err == nil {
		s = folded
	}
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// SlugifyOrFallback slugifies title, falling back to post-<unix ms> when the
// title has no usable characters.
func SlugifyOrFallback(title string, now time.Time) string {
	if slug := Slugify(title); slug != "" {
		return slug
	}
	return fmt.Sprintf("post-%d", now.UnixMilli())
}

// BuildURL joins a base URL with path segments.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// FilterEmpty trims each value and drops the empty ones.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseTags splits comma-separated tag text into trimmed, non-empty tags.
func ParseTags(tagString string) []string {
	return FilterEmpty(strings.Split(tagString, ","))
}

// JoinTags joins tags with ", " for the editor's tag field.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// TagCounts counts how many posts carry each tag.
func TagCounts(posts []Post) map[string]int {
	counts := make(map[string]int)
	for _, p := range posts {
		for _, t := range p.Tags {
			if t = strings.TrimSpace(t); t != "" {
				counts[t]++
			}
		}
	}
	return counts
}

// FilterTags returns the tags shared by more than one post, sorted.
func FilterTags(posts []Post) []string {
	var tags []string
	for t, n := range TagCounts(posts) {
		if n > 1 {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags
}

// FilterByTag returns posts carrying tag exactly. An empty tag keeps all.
func FilterByTag(posts []Post, tag string) []Post {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return posts
	}
	out := []Post{}
	for _, p := range posts {
		for _, t := range p.Tags {
			if strings.TrimSpace(t) == tag {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// SortByDisplayDate orders posts by publish date (falling back to the
// authored date), newest first.
func SortByDisplayDate(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].DisplayDate() > posts[j].DisplayDate()
	})
}

// FilterRelatedPosts finds posts that share at least one tag with current,
// up to limit (0 means no limit).
func FilterRelatedPosts(current Post, posts []Post, limit int) []Post {
	tagSet := make(map[string]struct{})
	for _, t := range current.Tags {
		tag := strings.ToLower(strings.TrimSpace(t))
		if tag != "" {
			tagSet[tag] = struct{}{}
		}
	}
	var related []Post
	for _, p := range posts {
		if p.ID == current.ID {
			continue
		}
		for _, t := range p.Tags {
			tag := strings.ToLower(strings.TrimSpace(t))
			if _, ok := tagSet[tag]; ok {
				related = append(related, p)
				break
			}
		}
		if limit > 0 && len(related) == limit {
			break
		}
	}
	return related
}

// WebsiteJsonLD returns a JSON-LD string for an Organization/WebSite schema.
func WebsiteJsonLD(cfg SiteConfig) string {
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       "WebSite",
		"name":        cfg.Name,
		"url":         BuildURL(cfg.URL),
		"description": cfg.Description,
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		},
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// PostingJsonLD returns a JSON-LD string for a BlogPosting or CreativeWork
// (projects) schema.
func PostingJsonLD(post Post, cfg SiteConfig) string {
	postURL := BuildURL(cfg.URL, post.URL())
	schemaType := "BlogPosting"
	if post.ContentType == ContentTypeProject {
		schemaType = "CreativeWork"
	}
	data := map[string]interface{}{
		"@context":      "https://schema.org",
		"@type":         schemaType,
		"headline":      post.Title,
		"description":   post.Description,
		"datePublished": post.DisplayDate(),
		"url":           postURL,
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	author := post.Author
	if author == "" {
		author = cfg.Author
	}
	if author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  author,
		}
	}
	if cfg.Name != "" {
		data["publisher"] = map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		}
	}
	if post.Image != "" {
		data["image"] = BuildURL(cfg.URL, post.Image)
	}
	if len(post.Tags) > 0 {
		data["keywords"] = strings.Join(post.Tags, ", ")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
