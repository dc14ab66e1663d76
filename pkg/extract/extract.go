// Package extract turns the structured output of a language-model pass over
// a goal or note into person references and claims.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/overlap"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// DefaultConfidence is used for claims the model did not score.
const DefaultConfidence = 50

// Result is the shape the model is asked to produce.
type Result struct {
	People []Mention `json:"people" jsonschema:"description=People mentioned in the text"`
}

type Mention struct {
	PersonID string      `json:"person_id,omitempty" jsonschema:"description=Id of a known contact when the text names one"`
	Name     string      `json:"name" jsonschema:"description=Full name as written"`
	Email    string      `json:"email,omitempty" jsonschema:"description=Email address if stated"`
	Claims   []ClaimHint `json:"claims,omitempty" jsonschema:"description=Facts stated about this person"`
}

type ClaimHint struct {
	Key        string `json:"key" jsonschema:"enum=role,enum=title,enum=company,enum=location,enum=expertise,enum=interests,enum=email,enum=phone"`
	Value      string `json:"value"`
	Confidence int    `json:"confidence,omitempty" jsonschema:"minimum=0,maximum=100,description=How certain the statement is"`
}

// Schema returns the JSON schema of Result for structured output requests.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.ReflectFromType(reflect.TypeOf(Result{}))
}

// Parse decodes model output. It accepts plain JSON, JSON encoded as a
// string, and malformed JSON that jsonrepair can fix.
func Parse(raw string) (Result, error) {
	var res Result
	input := strings.TrimSpace(raw)
	if input == "" {
		return res, fmt.Errorf("empty extraction payload")
	}

	if err := json.Unmarshal([]byte(input), &res); err == nil {
		return res, nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		input = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(input), &res); err == nil {
			return res, nil
		}
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return res, fmt.Errorf("failed to repair extraction payload: %w", err)
	}
	res = Result{}
	if err := json.Unmarshal([]byte(repaired), &res); err != nil {
		return res, fmt.Errorf("failed to decode repaired extraction payload: %w", err)
	}
	return res, nil
}

var knownKeys = map[common.ClaimKey]struct{}{
	common.ClaimRole:      {},
	common.ClaimTitle:     {},
	common.ClaimCompany:   {},
	common.ClaimLocation:  {},
	common.ClaimExpertise: {},
	common.ClaimInterests: {},
	common.ClaimEmail:     {},
	common.ClaimPhone:     {},
}

// Resolved is a Result bound to a tenant's contacts.
type Resolved struct {
	PersonIDs  []string
	Claims     []common.Claim
	Unresolved []string
}

// Resolve binds mentions to existing people: by id, then by email, then by
// name. Mentions matching no one, or more than one person by name, are
// reported as unresolved and their claims dropped.
func Resolve(res Result, people []common.Person, tenantID, source string, observedAt time.Time) Resolved {
	byID := make(map[string]common.Person, len(people))
	byEmail := make(map[string]string, len(people))
	for _, p := range people {
		byID[p.ID] = p
		if e := overlap.NormalizeEmail(p.Email); e != "" {
			byEmail[e] = p.ID
		}
	}

	out := Resolved{
		PersonIDs:  make([]string, 0, len(res.People)),
		Claims:     make([]common.Claim, 0),
		Unresolved: make([]string, 0),
	}
	seen := make(map[string]struct{})
	for _, m := range res.People {
		personID := resolveMention(m, people, byID, byEmail)
		if personID == "" {
			out.Unresolved = append(out.Unresolved, m.Name)
			continue
		}
		if _, ok := seen[personID]; !ok {
			seen[personID] = struct{}{}
			out.PersonIDs = append(out.PersonIDs, personID)
		}

		for _, h := range m.Claims {
			key := common.ClaimKey(strings.ToLower(strings.TrimSpace(h.Key)))
			value := strings.TrimSpace(h.Value)
			if _, ok := knownKeys[key]; !ok || value == "" {
				continue
			}
			confidence := h.Confidence
			if confidence == 0 {
				confidence = DefaultConfidence
			}
			out.Claims = append(out.Claims, common.Claim{
				ID:         claimID(tenantID, source, personID, key, value),
				TenantID:   tenantID,
				SubjectID:  personID,
				Key:        key,
				Value:      value,
				Confidence: common.Clamp(confidence, 0, 100),
				Source:     source,
				ObservedAt: observedAt,
			})
		}
	}
	return out
}

// claimID is derived from the claim content, so resolving the same payload
// twice yields the same claims.
func claimID(tenantID, source, subjectID string, key common.ClaimKey, value string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{tenantID, source, subjectID, string(key), value}, "\x00")))
	return hex.EncodeToString(sum[:12])
}

func resolveMention(m Mention, people []common.Person, byID map[string]common.Person, byEmail map[string]string) string {
	if p, ok := byID[strings.TrimSpace(m.PersonID)]; ok {
		return p.ID
	}
	if id, ok := byEmail[overlap.NormalizeEmail(m.Email)]; ok {
		return id
	}
	match := ""
	for _, p := range people {
		if !overlap.NamesMatch(m.Name, p.Name) {
			continue
		}
		if match != "" {
			return ""
		}
		match = p.ID
	}
	return match
}
