package models

import "time"

// Polarity is the stance of an atomic claim toward its subject.
type Polarity string

// Polarity constants.
const (
	PolarityAffirm      Polarity = "AFFIRM"
	PolarityNegate      Polarity = "NEGATE"
	PolarityUnspecified Polarity = "UNSPECIFIED"
)

// Document is one fetched page, bounded to the extracted main text.
// Documents live in memory for the duration of an attempt.
type Document struct {
	URL       string
	Domain    string
	Title     string
	Text      string
	FetchedAt time.Time
}

// Claim is an atomic factual statement extracted from one document.
type Claim struct {
	Text         string
	Polarity     Polarity
	SourceURL    string
	SourceDomain string
}

// VerificationStatus labels a claim group after cross-source checking.
type VerificationStatus string

// Verification status constants.
const (
	ClaimVerified   VerificationStatus = "VERIFIED"
	ClaimUnverified VerificationStatus = "UNVERIFIED"
	ClaimConflict   VerificationStatus = "CONFLICT"
)

// VerifiedClaim is the resolution of one claim group: the canonical
// statement, its label, and the sources on each side.
type VerifiedClaim struct {
	CanonicalText string             `json:"claim"`
	Status        VerificationStatus `json:"status"`
	SupportURLs   []string           `json:"supporting_sources"`
	OpposeURLs    []string           `json:"opposing_sources,omitempty"`
	// DomainCount is the number of distinct registered domains among
	// the supporting sources.
	DomainCount int `json:"domain_count"`
}

// ConfidenceLevel is the rule-based aggregate answer confidence.
type ConfidenceLevel string

// Confidence level constants.
const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// AnswerSnapshot is the final output of a session. At most one per
// session; written atomically with the Evidence set.
type AnswerSnapshot struct {
	SessionID        string          `json:"-"`
	AnswerText       string          `json:"answer"`
	ConfidenceLevel  ConfidenceLevel `json:"confidence_level"`
	ConfidenceReason string          `json:"confidence_reason"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Evidence is a VerifiedClaim persisted against a session.
type Evidence struct {
	ID          int64              `json:"-"`
	SessionID   string             `json:"-"`
	ClaimText   string             `json:"claim"`
	Status      VerificationStatus `json:"status"`
	SourceURLs  []string           `json:"sources"`
	DomainCount int                `json:"domain_count"`
	CreatedAt   time.Time          `json:"-"`
}

// CacheEntry maps a query fingerprint to the session whose accepted
// answer it reuses. Expired entries are never returned.
type CacheEntry struct {
	QueryHash string
	SessionID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
