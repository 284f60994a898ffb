package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	text := "The sky is blue."
	chunks, err := Split(text, DefaultConfig())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != text {
		t.Errorf("got %q, want %q", chunks[0].Content, text)
	}
	if chunks[0].ID != 0 {
		t.Errorf("expected id 0, got %d", chunks[0].ID)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   \n\n  "} {
		chunks, err := Split(text, DefaultConfig())
		if err != nil {
			t.Fatalf("Split(%q): %v", text, err)
		}
		if len(chunks) != 0 {
			t.Errorf("Split(%q): expected no chunks, got %d", text, len(chunks))
		}
	}
}

func TestSplit_CountAndOverlap(t *testing.T) {
	tests := []struct {
		length, size, overlap int
	}{
		{100, 20, 5},
		{25, 10, 3},
		{1000, 100, 0},
		{301, 50, 10},
	}
	alphabet := "abcdefghijklmnopqrstuvwxyz"
	for _, tt := range tests {
		// no whitespace, so the splitter falls back to character cuts
		text := strings.Repeat(alphabet, tt.length/len(alphabet)+1)[:tt.length]
		chunks, err := Split(text, Config{ChunkSize: tt.size, ChunkOverlap: tt.overlap})
		if err != nil {
			t.Fatalf("Split: %v", err)
		}

		step := tt.size - tt.overlap
		want := (tt.length - tt.overlap + step - 1) / step
		if len(chunks) != want {
			t.Errorf("L=%d C=%d O=%d: expected %d chunks, got %d", tt.length, tt.size, tt.overlap, want, len(chunks))
			continue
		}

		for i, c := range chunks {
			if c.ID != i {
				t.Errorf("chunk %d: expected id %d, got %d", i, i, c.ID)
			}
			if n := utf8.RuneCountInString(c.Content); n > tt.size {
				t.Errorf("chunk %d: length %d exceeds %d", i, n, tt.size)
			}
			if i == 0 || tt.overlap == 0 {
				continue
			}
			prev := chunks[i-1].Content
			if prev[len(prev)-tt.overlap:] != c.Content[:tt.overlap] {
				t.Errorf("chunks %d/%d: expected %d overlapping characters", i-1, i, tt.overlap)
			}
		}
	}
}

func TestSplit_ProseRespectsChunkSize(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog.\n\n", 200)
	chunks, err := Split(text, Config{ChunkSize: 300, ChunkOverlap: 50})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c.Content); n > 300 {
			t.Errorf("chunk %d: length %d exceeds 300", i, n)
		}
		if !strings.Contains(c.Content, "fox") {
			t.Errorf("chunk %d lost its words: %q", i, c.Content)
		}
	}
}

func TestSplit_RejectsOverlapNotBelowSize(t *testing.T) {
	if _, err := Split("text", Config{ChunkSize: 10, ChunkOverlap: 10}); err == nil {
		t.Fatal("expected error for overlap == size")
	}
}
