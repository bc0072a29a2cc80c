package chunker

import (
	"errors"
	"strings"
	"testing"

	"sightline/internal/util"
)

func TestSplitCoversFullText(t *testing.T) {
	texts := []string{
		strings.Repeat("abcdefghij", 50),
		"Short sentence one. Short sentence two. " + strings.Repeat("x", 300) + " End of it all.",
		"para one\n\npara two\n\n" + strings.Repeat("body text. ", 40),
	}
	for _, text := range texts {
		chunks, err := Split("paper", text, 100, 20, 15)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) == 0 {
			t.Fatal("expected chunks")
		}
		runes := []rune(text)
		if chunks[0].Start != 0 {
			t.Fatalf("first chunk starts at %d", chunks[0].Start)
		}
		if chunks[len(chunks)-1].End != len(runes) {
			t.Fatalf("last chunk ends at %d, text has %d runes", chunks[len(chunks)-1].End, len(runes))
		}
		for i, c := range chunks {
			if c.ChunkIndex != i {
				t.Fatalf("chunk %d has index %d", i, c.ChunkIndex)
			}
			if c.Text != string(runes[c.Start:c.End]) {
				t.Fatalf("chunk %d text does not match its span", i)
			}
			if i > 0 {
				prev := chunks[i-1]
				if c.Start > prev.End {
					t.Fatalf("gap between chunk %d and %d", i-1, i)
				}
				if prev.End-c.Start < 20 {
					t.Fatalf("chunks %d and %d share %d runes, want >= 20", i-1, i, prev.End-c.Start)
				}
			}
		}
	}
}

func TestSplitSnapsToSentenceBreaks(t *testing.T) {
	text := strings.Repeat("One full sentence here. ", 30)
	chunks, err := Split("paper", text, 100, 10, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(c.Text, ". ") && !strings.HasSuffix(c.Text, ".") {
			t.Fatalf("chunk does not end on a sentence break: %q", c.Text[len(c.Text)-20:])
		}
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks, err := Split("paper", "tiny text", 100, 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Start != 0 || chunks[0].End != len([]rune("tiny text")) {
		t.Fatalf("unexpected span: [%d,%d)", chunks[0].Start, chunks[0].End)
	}
}

func TestSplitRejectsBadConfig(t *testing.T) {
	if _, err := Split("paper", "text", 100, 100, 5); !errors.Is(err, util.ErrConfiguration) {
		t.Fatalf("overlap == size: expected ErrConfiguration, got %v", err)
	}
	if _, err := Split("paper", "text", 100, 150, 5); !errors.Is(err, util.ErrConfiguration) {
		t.Fatalf("overlap > size: expected ErrConfiguration, got %v", err)
	}
	if _, err := Split("paper", "text", 0, 0, 5); !errors.Is(err, util.ErrConfiguration) {
		t.Fatalf("zero size: expected ErrConfiguration, got %v", err)
	}
}
