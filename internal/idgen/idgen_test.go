package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestNew_Format(t *testing.T) {
	re := regexp.MustCompile(`^insight_\d{13}_[0-9a-z]{9}$`)
	id := New("insight")
	if !re.MatchString(id) {
		t.Errorf("идентификатор %q не соответствует формату", id)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New("tool")
		if seen[id] {
			t.Fatalf("повторный идентификатор %q", id)
		}
		seen[id] = true
	}
}

func TestMillis_StrictlyIncreasing(t *testing.T) {
	prev := Millis()
	for i := 0; i < 100; i++ {
		next := Millis()
		if next <= prev {
			t.Fatalf("метка времени не возрастает: %d → %d", prev, next)
		}
		prev = next
	}
}

func TestFileName(t *testing.T) {
	name := FileName("blog-posts")
	if !strings.HasPrefix(name, "blog_posts_") {
		t.Errorf("ожидался префикс blog_posts_, получено %q", name)
	}
	if !strings.HasSuffix(name, ".json") {
		t.Errorf("ожидалось расширение .json, получено %q", name)
	}
}

func TestToken(t *testing.T) {
	tok, err := Token(32)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("ожидалась длина 64, получена %d", len(tok))
	}
}
