package queue

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/common"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/graph"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/signals"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/store/memory"
)

var testNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (r *recordingPublisher) Publish(_ context.Context, queueName string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.msgs == nil {
		r.msgs = make(map[string][][]byte)
	}
	r.msgs[queueName] = append(r.msgs[queueName], body)
	return nil
}

func (r *recordingPublisher) contacts(t *testing.T) []string {
	t.Helper()
	out := make([]string, 0)
	for _, body := range r.msgs[SignalsQueue] {
		var msg RecomputeSignalsMsg
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Fatalf("expected valid signals message, got %v", err)
		}
		out = append(out, msg.ContactID)
	}
	slices.Sort(out)
	return out
}

func seed() *memory.Store {
	st := memory.New()
	for _, id := range []string{"alice", "bob", "carol"} {
		st.AddPerson(common.Person{ID: id, TenantID: "t1", Name: id})
	}
	st.AddPerson(common.Person{ID: "dana", TenantID: "t1", Name: "Dana Scully", Email: "dana@fbi.gov"})
	st.AddEncounter(common.Encounter{ID: "e1", TenantID: "t1", Kind: common.EncounterMeeting, OccurredAt: testNow.Add(-24 * time.Hour), PersonIDs: []string{"alice", "bob", "carol"}})
	st.AddGoal(common.Goal{ID: "g1", TenantID: "t1", Title: "Hire a data lead"})
	return st
}

func newTestHandler(st *memory.Store, pub Publisher) *Handler {
	now := func() time.Time { return testNow }
	return NewHandler(NewHandlerParams{
		Builder:   graph.NewBuilder(graph.NewBuilderParams{Store: st, Now: now}),
		Signals:   signals.NewService(signals.NewServiceParams{Store: st, Now: now}),
		Store:     st,
		Publisher: pub,
		Now:       now,
	})
}

func TestHandle_InvalidPayloads(t *testing.T) {
	h := newTestHandler(seed(), nil)
	ctx := context.Background()

	cases := []struct {
		queue string
		body  string
	}{
		{EncounterRecordedQueue, `{not json`},
		{EncounterRecordedQueue, `{"tenant_id":"t1"}`},
		{EdgesRetractedQueue, `{"tenant_id":"t1","edge_ids":[]}`},
		{SignalsQueue, `{"contact_id":"alice"}`},
		{"unknown_queue", `{}`},
	}
	for _, tc := range cases {
		if err := h.Handle(ctx, tc.queue, []byte(tc.body)); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("%s %s: expected ErrInvalidMessage, got %v", tc.queue, tc.body, err)
		}
	}
}

func TestHandle_EncounterRecorded(t *testing.T) {
	st := seed()
	pub := &recordingPublisher{}
	h := newTestHandler(st, pub)

	body := `{"encounter_id":"e1","tenant_id":"t1","owner_id":"u1"}`
	if err := h.Handle(context.Background(), EncounterRecordedQueue, []byte(body)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	edges, _ := st.ListEdges(context.Background(), "t1")
	if len(edges) != 3 {
		t.Fatalf("expected 3 encounter edges, got %+v", edges)
	}
	for _, e := range edges {
		if e.Strength != graph.EncounterCreateStrength {
			t.Fatalf("expected strength 5, got %+v", e)
		}
	}
	if got := pub.contacts(t); !slices.Equal(got, []string{"alice", "bob", "carol"}) {
		t.Fatalf("expected signals for every participant, got %v", got)
	}
}

func TestHandle_EncounterMissing(t *testing.T) {
	pub := &recordingPublisher{}
	h := newTestHandler(seed(), pub)

	body := `{"encounter_id":"nope","tenant_id":"t1"}`
	if err := h.Handle(context.Background(), EncounterRecordedQueue, []byte(body)); err != nil {
		t.Fatalf("expected missing encounter to be dropped, got %v", err)
	}
	if len(pub.msgs[SignalsQueue]) != 0 {
		t.Fatalf("expected no signals messages, got %d", len(pub.msgs[SignalsQueue]))
	}
}

func TestHandle_Signals(t *testing.T) {
	st := seed()
	h := newTestHandler(st, nil)
	ctx := context.Background()

	if err := h.Handle(ctx, SignalsQueue, []byte(`{"tenant_id":"t1","contact_id":"alice"}`)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	sig, err := st.GetSignals(ctx, "t1", "alice")
	if err != nil {
		t.Fatalf("expected stored signals, got %v", err)
	}
	if sig.Interactions90d != 1 || sig.DecayDays != 1 {
		t.Fatalf("unexpected signals %+v", sig)
	}

	if err := h.Handle(ctx, SignalsQueue, []byte(`{"tenant_id":"t1","contact_id":"ghost"}`)); err != nil {
		t.Fatalf("expected unknown contact to be dropped, got %v", err)
	}
}

func TestHandle_GoalWithExtraction(t *testing.T) {
	st := seed()
	pub := &recordingPublisher{}
	h := newTestHandler(st, pub)
	ctx := context.Background()

	ev := graph.GoalReferencesPeople{
		GoalID:    "g1",
		TenantID:  "t1",
		PersonIDs: []string{"alice"},
		Extraction: `{people: [
			{name: 'Dana Scully', email: 'DANA@fbi.gov', claims: [{key: 'expertise', value: 'forensics', confidence: 80}]},
			{name: 'Fox Mulder'},
		]}`,
	}
	body, _ := json.Marshal(ev)
	if err := h.Handle(ctx, GoalCreatedQueue, body); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	edges, _ := st.ListEdges(ctx, "t1")
	linked := make([]string, 0)
	for _, e := range edges {
		if e.Type == common.EdgeGoalLink && e.ToID == "g1" {
			linked = append(linked, e.FromID)
		}
	}
	if !slices.Equal(linked, []string{"alice", "dana"}) {
		t.Fatalf("expected goal links for alice and dana, got %v", linked)
	}

	claims, _ := st.ListClaimsForPerson(ctx, "t1", "dana")
	if len(claims) != 1 || claims[0].Key != common.ClaimExpertise || claims[0].Confidence != 80 {
		t.Fatalf("expected one expertise claim, got %+v", claims)
	}
	if got := pub.contacts(t); !slices.Equal(got, []string{"dana"}) {
		t.Fatalf("expected signals refresh for dana, got %v", got)
	}

	// a redelivery stores no duplicate claims
	if err := h.Handle(ctx, GoalCreatedQueue, body); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	claims, _ = st.ListClaimsForPerson(ctx, "t1", "dana")
	if len(claims) != 1 {
		t.Fatalf("expected claims to stay deduplicated, got %+v", claims)
	}
}

func TestHandle_GoalWithUnreadableExtraction(t *testing.T) {
	st := seed()
	h := newTestHandler(st, nil)

	body := `{"goal_id":"g1","tenant_id":"t1","person_ids":["bob"],"extraction":"   "}`
	if err := h.Handle(context.Background(), GoalCreatedQueue, []byte(body)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	edges, _ := st.ListEdges(context.Background(), "t1")
	if len(edges) != 1 || edges[0].FromID != "bob" {
		t.Fatalf("expected only the explicit goal link, got %+v", edges)
	}
}

func TestHandle_GoalMissingSkipsExtraction(t *testing.T) {
	st := seed()
	pub := &recordingPublisher{}
	h := newTestHandler(st, pub)
	ctx := context.Background()

	ev := graph.GoalReferencesPeople{
		GoalID:     "gone",
		TenantID:   "t1",
		PersonIDs:  []string{"alice"},
		Extraction: `{"people":[{"name":"Dana Scully","claims":[{"key":"expertise","value":"forensics"}]}]}`,
	}
	body, _ := json.Marshal(ev)
	if err := h.Handle(ctx, GoalCreatedQueue, body); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if claims, _ := st.ListClaimsForPerson(ctx, "t1", "dana"); len(claims) != 0 {
		t.Fatalf("expected no claims for a missing goal, got %+v", claims)
	}
	if got := pub.contacts(t); len(got) != 0 {
		t.Fatalf("expected no signals messages, got %v", got)
	}
	if edges, _ := st.ListEdges(ctx, "t1"); len(edges) != 0 {
		t.Fatalf("expected no edges, got %+v", edges)
	}
}
