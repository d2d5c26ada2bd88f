package services

import (
	"regexp"
	"strings"

	"document-archive-platform/models"
)

// ChunkingService splits a document's combined text into retrieval
// chunks. Paragraph boundaries are respected where possible and each
// chunk starts with a short tail of its predecessor so sentences cut at
// a boundary stay findable.
type ChunkingService struct {
	targetSize int
	overlap    int
}

var chunkParagraphRe = regexp.MustCompile(`\n\s*\n+`)

func NewChunkingService(targetSize, overlap int) *ChunkingService {
	if targetSize <= 0 {
		targetSize = 500
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = 50
	}
	return &ChunkingService{targetSize: targetSize, overlap: overlap}
}

// BuildChunkSource assembles the text blob that gets chunked and
// embedded: title and description travel with the content so retrieval
// matches on them too.
func BuildChunkSource(title, description, content string) string {
	var sb strings.Builder
	sb.WriteString("Title: ")
	sb.WriteString(strings.TrimSpace(title))
	sb.WriteString("\n\nDescription: ")
	sb.WriteString(strings.TrimSpace(description))
	sb.WriteString("\n\nContent: ")
	sb.WriteString(strings.TrimSpace(content))
	return sb.String()
}

// ChunkDocument produces the chunk rows for a document, denormalising
// title and country into each row. Indices are contiguous from zero.
func (cs *ChunkingService) ChunkDocument(doc *models.Document, content string) []*models.Chunk {
	pieces := cs.ChunkText(BuildChunkSource(doc.Title, doc.Description, content))
	chunks := make([]*models.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, &models.Chunk{
			DocumentID:      doc.ID,
			ChunkIndex:      i,
			Content:         piece,
			DocumentTitle:   doc.Title,
			DocumentCountry: doc.Country,
		})
	}
	return chunks
}

// ChunkText greedily packs paragraphs up to the target size. Paragraphs
// longer than the target are split on word boundaries first.
func (cs *ChunkingService) ChunkText(text string) []string {
	paragraphs := chunkParagraphRe.Split(text, -1)

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunk := current.String()
		chunks = append(chunks, chunk)
		current.Reset()
		if cs.overlap > 0 {
			current.WriteString(tailOverlap(chunk, cs.overlap))
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, piece := range splitLongParagraph(para, cs.targetSize) {
			if current.Len() > 0 && current.Len()+len(piece)+2 > cs.targetSize {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(piece)
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// tailOverlap returns the last overlap characters, snapped forward to
// the next word start so no chunk begins mid-word.
func tailOverlap(chunk string, overlap int) string {
	if len(chunk) <= overlap {
		return chunk
	}
	tail := chunk[len(chunk)-overlap:]
	if idx := strings.IndexAny(tail, " \n\t"); idx >= 0 {
		tail = strings.TrimLeft(tail[idx:], " \n\t")
	}
	return tail
}

func splitLongParagraph(para string, limit int) []string {
	if len(para) <= limit {
		return []string{para}
	}
	var pieces []string
	for len(para) > limit {
		cut := strings.LastIndex(para[:limit], " ")
		if cut < limit/2 {
			cut = limit
		}
		pieces = append(pieces, strings.TrimSpace(para[:cut]))
		para = strings.TrimSpace(para[cut:])
	}
	if para != "" {
		pieces = append(pieces, para)
	}
	return pieces
}
