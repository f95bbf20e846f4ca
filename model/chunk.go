package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Chunk is a token-bounded slice of document text with page attribution,
// produced once at ingestion and immutable afterwards. ContentHash is derived
// from the page range plus the text so re-ingesting the same document
// deduplicates instead of double-inserting.
type Chunk struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	DocumentID  uint      `gorm:"uniqueIndex:idx_chunk_doc_hash,priority:1;not null" json:"document_id"`
	SequenceNum int       `gorm:"not null;index" json:"sequence_num"` // Position within the document's chunk ordering
	PageStart   int       `gorm:"not null" json:"page_start"`
	PageEnd     int       `gorm:"not null" json:"page_end"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	TokenCount  int       `gorm:"not null" json:"token_count"` // Estimated, 1 token ~= 4 chars
	ContentHash string    `gorm:"type:varchar(64);uniqueIndex:idx_chunk_doc_hash,priority:2;not null" json:"content_hash"`

	Document Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

// ChunkContentHash computes the content-derived identifier for a chunk.
func ChunkContentHash(pageStart, pageEnd int, text string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s", pageStart, pageEnd, text)))
	return hex.EncodeToString(h[:])
}
