package arxiv

import (
	"errors"
	"testing"

	"sightline/internal/util"
)

func TestExtractID(t *testing.T) {
	cases := map[string]string{
		"https://arxiv.org/abs/1706.03762":      "1706.03762",
		"https://arxiv.org/abs/1706.03762v5":    "1706.03762v5",
		"http://arxiv.org/pdf/1706.03762":       "1706.03762",
		"https://arxiv.org/pdf/1706.03762.pdf":  "1706.03762",
		"arxiv.org/abs/2301.00001":              "2301.00001",
		"https://www.arxiv.org/abs/cs/9901002":  "cs/9901002",
		"https://arxiv.org/pdf/cs/9901002v1.pdf": "cs/9901002v1",
	}
	for in, want := range cases {
		got, err := ExtractID(in)
		if err != nil {
			t.Fatalf("extract %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("extract %q: got %q want %q", in, got, want)
		}
	}
}

func TestExtractIDDeterministic(t *testing.T) {
	a, _ := ExtractID("https://arxiv.org/abs/1234.5678")
	b, _ := ExtractID("https://arxiv.org/abs/1234.5678")
	if a != b {
		t.Fatalf("identifier not deterministic: %q vs %q", a, b)
	}
}

func TestExtractIDRejectsBadSources(t *testing.T) {
	bad := []string{
		"",
		"https://example.com/abs/1706.03762",
		"https://arxiv.org/list/cs.AI/recent",
		"https://arxiv.org/abs/",
	}
	for _, in := range bad {
		if _, err := ExtractID(in); !errors.Is(err, util.ErrInvalidSource) {
			t.Fatalf("extract %q: expected ErrInvalidSource, got %v", in, err)
		}
	}
}

func TestParseAtom(t *testing.T) {
	body := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v5</id>
    <title>Attention Is All
      You Need</title>
    <summary>The dominant sequence transduction models...</summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
  </entry>
</feed>`)
	meta, err := parseAtom(body)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Title != "Attention Is All You Need" {
		t.Fatalf("unexpected title: %q", meta.Title)
	}
	if len(meta.Authors) != 2 || meta.Authors[0] != "Ashish Vaswani" {
		t.Fatalf("unexpected authors: %v", meta.Authors)
	}
	if meta.Abstract == "" {
		t.Fatal("expected abstract")
	}
}

func TestParseAtomErrorEntry(t *testing.T) {
	body := []byte(`<feed xmlns="http://www.w3.org/2005/Atom"><entry><title>Error</title></entry></feed>`)
	if _, err := parseAtom(body); err == nil {
		t.Fatal("expected error for error entry")
	}
}
