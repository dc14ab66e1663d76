package common

import "time"

// Person is a contact record owned by a tenant. Email and Location are
// optional; an empty string means the attribute is unknown.
type Person struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClaimKey names the attribute a Claim asserts. The constants below are the
// keys the engine interprets; any other key is stored and carried as-is.
type ClaimKey string

const (
	ClaimRole      ClaimKey = "role"
	ClaimTitle     ClaimKey = "title"
	ClaimCompany   ClaimKey = "company"
	ClaimLocation  ClaimKey = "location"
	ClaimExpertise ClaimKey = "expertise"
	ClaimInterests ClaimKey = "interests"
	ClaimEmail     ClaimKey = "email"
	ClaimName      ClaimKey = "name"
	ClaimPhone     ClaimKey = "phone"
)

// Claim is an attributed fact about a person. Several claims may share a
// key; the highest-confidence, most recent one wins.
type Claim struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	SubjectID  string    `json:"subject_id"`
	Key        ClaimKey  `json:"key"`
	Value      string    `json:"value"`
	Confidence int       `json:"confidence"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

type EncounterKind string

const (
	EncounterMeeting   EncounterKind = "meeting"
	EncounterCall      EncounterKind = "call"
	EncounterEmail     EncounterKind = "email"
	EncounterVoiceNote EncounterKind = "voice_note"
)

// Encounter is an append-only interaction record linked to the people who
// took part in it.
type Encounter struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant_id"`
	OwnerID    string        `json:"owner_id"`
	Kind       EncounterKind `json:"kind"`
	OccurredAt time.Time     `json:"occurred_at"`
	Summary    string        `json:"summary,omitempty"`
	PersonIDs  []string      `json:"person_ids"`
}

// ContactSignals is the derived per-contact metric row. It is fully
// replaced on every recomputation.
type ContactSignals struct {
	TenantID           string     `json:"tenant_id"`
	ContactID          string     `json:"contact_id"`
	LastInteractionAt  *time.Time `json:"last_interaction_at"`
	Interactions90d    int        `json:"interactions_90d"`
	ReciprocityRatio   int        `json:"reciprocity_ratio"`
	SentimentAvg       int        `json:"sentiment_avg"`
	DecayDays          int        `json:"decay_days"`
	RoleTags           []string   `json:"role_tags"`
	SharedContextTags  []string   `json:"shared_context_tags"`
	GoalAlignmentScore int        `json:"goal_alignment_score"`
	CapacityCost       int        `json:"capacity_cost"`
	ComputedAt         time.Time  `json:"computed_at"`
}

// DunbarLayer is one of the five relationship-depth tiers. Level 1 is the
// innermost circle; Capacity is the nominal population ceiling of the tier.
type DunbarLayer struct {
	Level    int    `json:"level"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

type EdgeType string

const (
	EdgeEncounter EdgeType = "encounter"
	EdgeIntro     EdgeType = "intro"
	EdgeGoalLink  EdgeType = "goal_link"
)

const (
	MinEdgeStrength = 0
	MaxEdgeStrength = 10
)

// Edge is a directed, typed relationship between two people, or between a
// person and a goal, inside one tenant.
type Edge struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	FromID    string         `json:"from_id"`
	ToID      string         `json:"to_id"`
	Type      EdgeType       `json:"type"`
	Strength  int            `json:"strength"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type MatchBasis string

const (
	MatchEmail MatchBasis = "email"
	MatchName  MatchBasis = "name"
)

type OverlapState string

const (
	OverlapActive    OverlapState = "active"
	OverlapDismissed OverlapState = "dismissed"
)

// Overlap records that two person rows in different tenants probably
// denote the same human. CanonicalPersonID belongs to the first tenant in
// TenantIDs.
type Overlap struct {
	ID                string       `json:"id"`
	CanonicalPersonID string       `json:"canonical_person_id"`
	MatchedPersonID   string       `json:"matched_person_id"`
	TenantIDs         []string     `json:"tenant_ids"`
	Basis             MatchBasis   `json:"basis"`
	Confidence        int          `json:"confidence"`
	State             OverlapState `json:"state"`
	DetectedAt        time.Time    `json:"detected_at"`
}

// Tenant is a workspace boundary. OwnerEmail drives the same-organization
// heuristic of the overlap sweep.
type Tenant struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	OwnerEmail string `json:"owner_email"`
}

// Suggestion is a proposed introduction between two people.
type Suggestion struct {
	ID        string  `json:"id"`
	TenantID  string  `json:"tenant_id"`
	PersonAID string  `json:"person_a_id"`
	PersonBID string  `json:"person_b_id"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

type Goal struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Title    string `json:"title"`
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
