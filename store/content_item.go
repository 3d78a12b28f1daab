package store

// ContentPartition is a searchable slice of the personal knowledge base.
type ContentPartition string

const (
	// PartitionKnowledge holds the user's own captured content.
	PartitionKnowledge ContentPartition = "knowledge"
	// PartitionResearch holds cached external research material.
	PartitionResearch ContentPartition = "research"
)

// ContentItem is a stored piece of personal knowledge (book note, article
// highlight, journal fragment) addressable by citation.
type ContentItem struct {
	UID       string
	Title     string
	Author    string
	System    string // originating collection/system name
	Content   string
	Partition ContentPartition
	CreatedTs int64
	ID        int32
	OwnerID   int32
}

type FindContentItem struct {
	ID      *int32
	OwnerID *int32
}

// ContentItemEmbedding stores the vector for a content item under a
// specific embedding model.
type ContentItemEmbedding struct {
	Model         string
	Embedding     []float32
	CreatedTs     int64
	UpdatedTs     int64
	ID            int32
	ContentItemID int32
}

// ContentVectorSearchOptions scopes a similarity search to one owner and
// one partition.
type ContentVectorSearchOptions struct {
	Vector    []float32
	Model     string
	Partition ContentPartition
	OwnerID   int32
	Limit     int
}

// ContentItemWithScore is a search hit with its cosine similarity score.
type ContentItemWithScore struct {
	*ContentItem
	Score float64
}
