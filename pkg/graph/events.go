package graph

// EncounterRecorded is published after an encounter row is committed.
type EncounterRecorded struct {
	EncounterID string `json:"encounter_id" validate:"required"`
	TenantID    string `json:"tenant_id" validate:"required"`
	OwnerID     string `json:"owner_id"`
}

// SuggestionAccepted is published when a user accepts an introduction.
type SuggestionAccepted struct {
	SuggestionID string `json:"suggestion_id" validate:"required"`
	TenantID     string `json:"tenant_id" validate:"required"`
	OwnerID      string `json:"owner_id"`
}

// GoalReferencesPeople is published when a goal is created or edited with
// people attached to it.
type GoalReferencesPeople struct {
	GoalID    string   `json:"goal_id" validate:"required"`
	TenantID  string   `json:"tenant_id" validate:"required"`
	OwnerID   string   `json:"owner_id"`
	PersonIDs []string `json:"person_ids"`
	// Extraction is raw model output naming further people, resolved
	// against the tenant's contacts before linking.
	Extraction string `json:"extraction,omitempty"`
}

// EdgesRetracted removes edges whose originating encounter or suggestion
// was withdrawn.
type EdgesRetracted struct {
	TenantID string   `json:"tenant_id" validate:"required"`
	EdgeIDs  []string `json:"edge_ids" validate:"required,min=1"`
}

// EdgeStrengthSet overrides the strength of one edge, e.g. from a decay job.
type EdgeStrengthSet struct {
	TenantID string `json:"tenant_id" validate:"required"`
	EdgeID   string `json:"edge_id" validate:"required"`
	Strength int    `json:"strength"`
}
