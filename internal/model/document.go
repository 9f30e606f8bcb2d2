package model

import "time"

// DocumentRecord is the identity of a registered document as returned to clients.
// ID and CreatedAt come from the registry; the blob pointers and file metadata
// exist only in this system and are empty when no journal entry survives.
type DocumentRecord struct {
	ID        string `json:"id"`
	DocHash   string `json:"docHash"`
	CreatedAt int64  `json:"createdAt"`
	TxHash    string `json:"txHash,omitempty"`
	BlobURL   string `json:"blobUrl,omitempty"`
	BlobKey   string `json:"blobKey,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
}

// VerificationResult is the verdict for a re-hashed file.
// DocumentID and RegisteredAt are set only when IsValid is true.
type VerificationResult struct {
	IsValid      bool   `json:"isValid"`
	DocumentID   string `json:"documentId,omitempty"`
	RegisteredAt int64  `json:"registeredAt,omitempty"`
	Hash         string `json:"hash"`
}

// DocumentSummary is one entry of a listing page.
type DocumentSummary struct {
	ID        string `json:"id"`
	DocHash   string `json:"docHash"`
	CreatedAt int64  `json:"createdAt"`
}

// Pagination describes a listing window over registry ids.
type Pagination struct {
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      uint64 `json:"total"`
	TotalPages uint64 `json:"totalPages"`
	HasNext    bool   `json:"hasNext"`
	HasPrev    bool   `json:"hasPrev"`
}

// DocumentPage is a listing result.
type DocumentPage struct {
	Items      []DocumentSummary
	Pagination Pagination
}

// HealthStatus aggregates the reachability of the registry and blob store.
type HealthStatus struct {
	Status              string `json:"status"`
	BlockchainReachable bool   `json:"blockchainReachable"`
	StorageReachable    bool   `json:"storageReachable"`
	Timestamp           string `json:"timestamp"`
	TotalDocuments      string `json:"totalDocuments"`
}

// RegistrationState is the journal state of one registration attempt.
type RegistrationState string

const (
	RegistrationBlobStored    RegistrationState = "blob_stored"
	RegistrationSubmitted     RegistrationState = "submitted"
	RegistrationConfirmed     RegistrationState = "confirmed"
	RegistrationAborted       RegistrationState = "aborted"
	RegistrationIndeterminate RegistrationState = "indeterminate"
	RegistrationOrphaned      RegistrationState = "orphaned"
)

// Registration is a journal entry for one registration attempt.
// It has no database tags; the repository maps columns explicitly.
type Registration struct {
	AttemptID    string
	DocHash      string
	State        RegistrationState
	BlobKey      string
	BlobURL      string
	FileName     string
	FileSize     int64
	MimeType     string
	TxHash       string
	DocumentID   string
	RegisteredAt int64
	AbortReason  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
