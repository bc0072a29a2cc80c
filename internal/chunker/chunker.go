package chunker

import (
	"fmt"

	"sightline/internal/models"
	"sightline/internal/util"
)

// Split cuts text into overlapping chunks of at most size runes. The scan
// advances by size-overlap runes per step, and each cut point snaps to the
// nearest sentence or paragraph break within tolerance runes so sentences
// are not severed mid-token.
//
// Invariants: spans cover the full text with no gaps, chunk indexes are
// strictly increasing, and consecutive chunks share at least overlap runes
// (the final chunk may share more).
func Split(paperID, text string, size, overlap, tolerance int) ([]models.Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", util.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", util.ErrConfiguration, overlap, size)
	}
	if tolerance < 0 {
		tolerance = 0
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	if n <= size {
		return []models.Chunk{newChunk(paperID, 0, runes, 0, n)}, nil
	}

	chunks := make([]models.Chunk, 0, n/(size-overlap)+1)
	start := 0
	for idx := 0; ; idx++ {
		end := start + size
		if end >= n {
			chunks = append(chunks, newChunk(paperID, idx, runes, start, n))
			break
		}
		end = snapToBreak(runes, end, tolerance, start+overlap+1, n)
		chunks = append(chunks, newChunk(paperID, idx, runes, start, end))
		start = end - overlap
	}
	return chunks, nil
}

func newChunk(paperID string, idx int, runes []rune, start, end int) models.Chunk {
	text := string(runes[start:end])
	sum := util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%d:%d", paperID, idx, start, end)))
	return models.Chunk{
		ChunkID:    sum,
		PaperID:    paperID,
		ChunkIndex: idx,
		Text:       text,
		Start:      start,
		End:        end,
	}
}

// snapToBreak looks for a break position near end, preferring paragraph
// breaks over sentence ends. lo and hi bound the search so each chunk still
// makes forward progress and stays within the text.
func snapToBreak(runes []rune, end, tolerance, lo, hi int) int {
	if lo < 1 {
		lo = 1
	}
	from := end - tolerance
	if from < lo {
		from = lo
	}
	to := end + tolerance
	if to > hi {
		to = hi
	}

	bestPara, bestSentence := -1, -1
	for i := from; i < to; i++ {
		if isParagraphBreak(runes, i) {
			if bestPara == -1 || abs(i-end) < abs(bestPara-end) {
				bestPara = i
			}
		} else if isSentenceEnd(runes, i) {
			if bestSentence == -1 || abs(i-end) < abs(bestSentence-end) {
				bestSentence = i
			}
		}
	}
	if bestPara != -1 {
		return bestPara
	}
	if bestSentence != -1 {
		return bestSentence
	}
	return end
}

// isParagraphBreak reports whether a cut at i lands right after a blank line.
func isParagraphBreak(runes []rune, i int) bool {
	return i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n'
}

// isSentenceEnd reports whether a cut at i lands right after terminal
// punctuation followed by whitespace.
func isSentenceEnd(runes []rune, i int) bool {
	if i < 2 {
		return false
	}
	prev, punct := runes[i-1], runes[i-2]
	if prev != ' ' && prev != '\n' && prev != '\t' {
		return false
	}
	return punct == '.' || punct == '!' || punct == '?'
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
