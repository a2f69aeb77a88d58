package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimeISOString(t *testing.T) {
	got := ParseTime("2023-01-01T12:00:00+00:00")
	want := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseTimeNoZone(t *testing.T) {
	got := ParseTime("2023-01-01T12:00:00")
	want := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseTimeUnixSeconds(t *testing.T) {
	got := ParseTime(float64(1672574400))
	want := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseTimeGarbage(t *testing.T) {
	if got := ParseTime("not a date"); !got.IsZero() {
		t.Errorf("expected zero time, got %v", got)
	}
	if got := ParseTime(nil); !got.IsZero() {
		t.Errorf("expected zero time for nil, got %v", got)
	}
}

func TestTimeJSONRoundTrip(t *testing.T) {
	orig := NewTime(time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC))
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Time
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(orig.Time) {
		t.Errorf("expected %v, got %v", orig, back)
	}
}

func TestTimeUnmarshalUnixNumber(t *testing.T) {
	var ts Time
	if err := json.Unmarshal([]byte("1672574400"), &ts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ts.Year() != 2023 {
		t.Errorf("expected year 2023, got %d", ts.Year())
	}
}

func TestSortPostsDescStable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := []Post{
		{ID: "a", CreatedAt: NewTime(base)},
		{ID: "b", CreatedAt: NewTime(base.Add(time.Hour))},
		{ID: "c", CreatedAt: NewTime(base)},
	}
	SortPostsDesc(posts)
	if posts[0].ID != "b" {
		t.Errorf("expected newest first, got %s", posts[0].ID)
	}
	// Ties keep original relative order.
	if posts[1].ID != "a" || posts[2].ID != "c" {
		t.Errorf("expected stable tie order a,c, got %s,%s", posts[1].ID, posts[2].ID)
	}
}

func TestExtractLinks(t *testing.T) {
	text := "Check out https://example.com/page?q=1 and also www.anothersite.net."
	links := ExtractLinks(text)
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d: %v", len(links), links)
	}
	if links[0] != "https://example.com/page?q=1" {
		t.Errorf("unexpected first link: %s", links[0])
	}
	if links[1] != "www.anothersite.net" {
		t.Errorf("expected trailing dot trimmed, got %s", links[1])
	}
}

func TestExtractLinksDedup(t *testing.T) {
	links := ExtractLinks("https://a.com https://a.com https://b.com")
	if len(links) != 2 {
		t.Errorf("expected dedup to 2 links, got %v", links)
	}
}

func TestMergeLinks(t *testing.T) {
	links := MergeLinks([]string{"https://a.com"}, "see https://a.com and https://b.com")
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %v", links)
	}
	if links[0] != "https://a.com" || links[1] != "https://b.com" {
		t.Errorf("unexpected merge order: %v", links)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<p>Hello <b>world</b></p><p>again</p>")
	if got != "Hello world again" {
		t.Errorf("expected 'Hello world again', got %q", got)
	}
}

func TestStripHTMLPlainText(t *testing.T) {
	if got := StripHTML("no   markup here"); got != "no markup here" {
		t.Errorf("expected whitespace normalization, got %q", got)
	}
}

func TestSanitizeUsernameControlChars(t *testing.T) {
	if got := SanitizeUsername("user​name"); got != "username" {
		t.Errorf("expected zero-width space stripped, got %q", got)
	}
}

func TestSanitizeUsernameClean(t *testing.T) {
	if got := SanitizeUsername("user-123"); got != "user-123" {
		t.Errorf("expected unchanged, got %q", got)
	}
}

func TestIsImagePath(t *testing.T) {
	if !IsImagePath("/tmp/abc.JPG") {
		t.Error("expected .JPG to be an image")
	}
	if IsImagePath("/tmp/abc.mp4") {
		t.Error("expected .mp4 not to be an image")
	}
}
