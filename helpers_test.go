package otherwise

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello", "hello"},
		{"Hello World", "hello-world"},
		{"  Leading and trailing  ", "leading-and-trailing"},
		{"Café au lait", "cafe-au-lait"},
		{"snake_case and-dashes", "snake-case-and-dashes"},
		{"What's new in Go 1.25?", "whats-new-in-go-125"},
		{"multiple   spaces --- here", "multiple-spaces-here"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugifyOrFallback(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	if got := SlugifyOrFallback("Hello", now); got != "hello" {
		t.Errorf("SlugifyOrFallback(Hello) = %q, want hello", got)
	}
	if got := SlugifyOrFallback("???", now); got != "post-1700000000123" {
		t.Errorf("SlugifyOrFallback(???) = %q, want post-1700000000123", got)
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base string
		segs []string
		want string
	}{
		{"https://otherwise.dev", nil, "https://otherwise.dev/"},
		{"https://otherwise.dev", []string{"posts"}, "https://otherwise.dev/posts"},
		{"https://otherwise.dev", []string{"/posts/blog/hello"}, "https://otherwise.dev/posts/blog/hello"},
		{"https://otherwise.dev", []string{"posts", "project", "x"}, "https://otherwise.dev/posts/project/x"},
	}
	for _, tt := range tests {
		if got := BuildURL(tt.base, tt.segs...); got != tt.want {
			t.Errorf("BuildURL(%q, %v) = %q, want %q", tt.base, tt.segs, got, tt.want)
		}
	}
}

func TestParseAndJoinTags(t *testing.T) {
	got := ParseTags(" design, ai ,, strategy ,")
	if diff := cmp.Diff([]string{"design", "ai", "strategy"}, got); diff != "" {
		t.Errorf("ParseTags mismatch (-want +got):\n%s", diff)
	}
	if text := JoinTags(got); text != "design, ai, strategy" {
		t.Errorf("JoinTags = %q", text)
	}
	if diff := cmp.Diff(got, ParseTags(JoinTags(got))); diff != "" {
		t.Errorf("tags did not round trip (-want +got):\n%s", diff)
	}
	if ParseTags("") != nil {
		t.Error("ParseTags(\"\") should be nil")
	}
}

func TestFilterTagsAndByTag(t *testing.T) {
	posts := []Post{
		{ID: 1, Title: "A", Tags: TagList{"go", "web"}},
		{ID: 2, Title: "B", Tags: TagList{"go", "ai"}},
		{ID: 3, Title: "C", Tags: TagList{"web", "design"}},
		{ID: 4, Title: "D"},
	}
	if diff := cmp.Diff([]string{"go", "web"}, FilterTags(posts)); diff != "" {
		t.Errorf("FilterTags mismatch (-want +got):\n%s", diff)
	}
	if got := titles(FilterByTag(posts, "go")); got != "A,B" {
		t.Errorf("FilterByTag(go) = %s, want A,B", got)
	}
	if got := titles(FilterByTag(posts, " web ")); got != "A,C" {
		t.Errorf("FilterByTag(web) = %s, want A,C", got)
	}
	if got := FilterByTag(posts, "Go"); len(got) != 0 {
		t.Errorf("FilterByTag is case-sensitive, got %s", titles(got))
	}
	if got := FilterByTag(posts, ""); len(got) != len(posts) {
		t.Errorf("FilterByTag(\"\") returned %d posts, want %d", len(got), len(posts))
	}
}

func TestFilterRelatedPosts(t *testing.T) {
	current := Post{ID: 1, Tags: TagList{"Go", "web"}}
	posts := []Post{
		current,
		{ID: 2, Title: "B", Tags: TagList{"go"}},
		{ID: 3, Title: "C", Tags: TagList{"design"}},
		{ID: 4, Title: "D", Tags: TagList{"WEB"}},
		{ID: 5, Title: "E", Tags: TagList{"web"}},
	}
	if got := titles(FilterRelatedPosts(current, posts, 0)); got != "B,D,E" {
		t.Errorf("related = %s, want B,D,E", got)
	}
	if got := titles(FilterRelatedPosts(current, posts, 2)); got != "B,D" {
		t.Errorf("related (limit 2) = %s, want B,D", got)
	}
}

func TestSortByDisplayDate(t *testing.T) {
	posts := []Post{
		{Title: "authored", Date: "2024-03-01"},
		{Title: "published", Date: "2023-01-01", PublishDate: strPtr("2024-06-01")},
		{Title: "oldest", Date: "2022-01-01"},
	}
	SortByDisplayDate(posts)
	if got := titles(posts); got != "published,authored,oldest" {
		t.Errorf("order = %s", got)
	}
}

func TestPostingJsonLD(t *testing.T) {
	cfg := SiteConfig{Name: "Otherwise", URL: "https://otherwise.dev", Author: "Team"}
	post := Post{
		Slug:        "edge",
		Title:       "Edge inference",
		ContentType: ContentTypeProject,
		Date:        "2024-01-01",
		Image:       "/api/media/edge.jpg",
		Tags:        TagList{"ai", "edge"},
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(PostingJsonLD(post, cfg)), &got); err != nil {
		t.Fatalf("invalid JSON-LD: %v", err)
	}
	checks := map[string]any{
		"@type":         "CreativeWork",
		"headline":      "Edge inference",
		"url":           "https://otherwise.dev/posts/project/edge",
		"image":         "https://otherwise.dev/api/media/edge.jpg",
		"keywords":      "ai, edge",
		"datePublished": "2024-01-01",
	}
	for k, want := range checks {
		if got[k] != want {
			t.Errorf("%s = %v, want %v", k, got[k], want)
		}
	}
	author, _ := got["author"].(map[string]any)
	if author["name"] != "Team" {
		t.Errorf("author = %v, want site author", got["author"])
	}
}

func TestTagListJSON(t *testing.T) {
	b, err := json.Marshal(Post{})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if tags, ok := got["tags"].([]any); !ok || len(tags) != 0 {
		t.Errorf("tags = %#v, want []", got["tags"])
	}
	if got["publishDate"] != nil {
		t.Errorf("publishDate = %v, want null", got["publishDate"])
	}
}
