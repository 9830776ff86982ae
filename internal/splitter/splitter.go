package splitter

import (
	"strings"
	"unicode/utf8"

	"rag-retrieval-service/models"
)

// DefaultSeparators is the boundary hierarchy tried in order:
// paragraph breaks, line breaks, sentence ends, word breaks, and
// finally a hard character cut.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter turns raw text into overlapping chunks with stable byte
// offsets into the parent text. Sizes are measured in characters so a
// hard cut never lands inside a multi-byte rune; offsets stay byte
// offsets so every chunk is a verbatim substring of the parent.
// Splitting is deterministic: the same text and configuration always
// produce the identical chunk sequence, which keeps chunk IDs stable
// across re-ingestion.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// New validates the chunking configuration. chunkSize is the maximum
// chunk length in characters; chunkSize 0 disables splitting entirely
// and the whole text becomes a single chunk. overlap must stay below
// chunkSize so every chunk makes forward progress.
func New(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize < 0 {
		return nil, models.NewError(models.KindConfigError, "chunk_size must be >= 0, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, models.NewError(models.KindConfigError, "overlap must be >= 0, got %d", overlap)
	}
	if chunkSize > 0 && overlap >= chunkSize {
		return nil, models.NewError(models.KindConfigError, "overlap (%d) must be less than chunk_size (%d)", overlap, chunkSize)
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators,
	}, nil
}

// runeStarts returns the byte offset of every rune plus a final entry
// for len(text), so text[starts[i]:starts[j]] slices runes [i, j).
func runeStarts(text string) []int {
	starts := make([]int, 0, len(text)+1)
	for i := range text {
		starts = append(starts, i)
	}
	return append(starts, len(text))
}

// Split produces the ordered chunk sequence for a source's text.
// Chunks cover the parent text exactly: each chunk is a verbatim
// substring, chunk i+1 starts overlap characters before chunk i ends,
// and the non-overlapping regions concatenate back to the original
// text.
func (s *Splitter) Split(source, text string) []models.Chunk {
	if text == "" {
		return nil
	}

	starts := runeStarts(text)
	total := len(starts) - 1

	if s.chunkSize == 0 || total <= s.chunkSize {
		return []models.Chunk{{
			ChunkID:     models.ChunkID(source, 0),
			Text:        text,
			StartOffset: 0,
			EndOffset:   len(text),
			Index:       0,
		}}
	}

	var chunks []models.Chunk
	pos := 0
	index := 0

	for pos < total {
		end := pos + s.chunkSize
		if end >= total {
			end = total
		} else {
			end = s.breakPoint(text, starts, pos, end)
		}

		chunks = append(chunks, models.Chunk{
			ChunkID:     models.ChunkID(source, index),
			Text:        text[starts[pos]:starts[end]],
			StartOffset: starts[pos],
			EndOffset:   starts[end],
			Index:       index,
		})

		if end == total {
			break
		}

		// Next chunk begins overlap characters before this one ends, to
		// preserve boundary context.
		pos = end - s.overlap
		index++
	}

	return chunks
}

// breakPoint finds the largest semantic boundary in (pos, limit],
// walking the separator hierarchy. pos and limit are rune indices.
// Falls back to a hard cut at limit when no separator yields a chunk
// longer than the overlap.
func (s *Splitter) breakPoint(text string, starts []int, pos, limit int) int {
	window := text[starts[pos]:starts[limit]]

	for _, sep := range s.separators {
		if sep == "" {
			break
		}
		i := strings.LastIndex(window, sep)
		if i < 0 {
			continue
		}
		end := pos + utf8.RuneCountInString(window[:i+len(sep)])
		// The break must leave the next chunk starting past this
		// chunk's start, otherwise splitting would stall.
		if end-pos > s.overlap {
			return end
		}
	}

	return limit
}
