package render

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pitabwire/journeybff/model"
)

// OfferOption is one selectable card on an offer step. Payload is what gets
// submitted as the selection.
type OfferOption struct {
	Card    model.OfferCard
	Payload json.RawMessage
}

// Session is the client-side state of one browser session. All access goes
// through the Renderer; the zero value is not usable, use NewSession.
type Session struct {
	mu sync.Mutex

	key             string
	externalID      string
	selectedOfferID string
	inputs          map[string]string
	fieldErrors     map[string]string
	notice          string
	metadata        json.RawMessage

	step           *model.Step
	classification Classification
	offers         []OfferOption

	inFlight      bool
	autoAdvanced  map[string]struct{}
	widgetHandled map[string]struct{}
	issuedSeq     uint64
	appliedSeq    uint64
}

// NewSession returns an empty session. A blank key gets a random one.
func NewSession(key string) *Session {
	if key == "" {
		key = uuid.NewString()
	}
	return &Session{
		key:           key,
		inputs:        map[string]string{},
		fieldErrors:   map[string]string{},
		autoAdvanced:  map[string]struct{}{},
		widgetHandled: map[string]struct{}{},
	}
}

// Key is the browser-session key the session is stored under.
func (s *Session) Key() string { return s.key }

// ExternalID is the active instance id, or "" before Start.
func (s *Session) ExternalID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.externalID
}

// SelectedOfferID is the stored offer selection, or "".
func (s *Session) SelectedOfferID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedOfferID
}

// begin claims the in-flight slot and issues a sequence number. ok is false
// when another navigation is outstanding.
func (s *Session) begin() (seq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return 0, false
	}
	s.inFlight = true
	s.issuedSeq++
	return s.issuedSeq, true
}

func (s *Session) end() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// issue hands out a sequence number for an unguarded refresh.
func (s *Session) issue() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuedSeq++
	return s.issuedSeq
}

// apply installs a landed step unless a newer response was applied first.
// Inputs are reset whenever the step or instance changes.
func (s *Session) apply(seq uint64, externalID string, step *model.Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.appliedSeq {
		return false
	}
	s.appliedSeq = seq
	if externalID != s.externalID || s.step == nil || step == nil || s.step.JourneyStep != step.JourneyStep {
		s.inputs = map[string]string{}
	}
	s.fieldErrors = map[string]string{}
	s.notice = ""
	s.externalID = externalID
	s.step = step
	s.classification = Classify(step)
	if s.classification.Kind != KindOffers {
		s.offers = nil
	}
	return true
}

// setOffers replaces the offer list and clears a selection that is no
// longer offered.
func (s *Session) setOffers(seq uint64, offers []OfferOption) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.appliedSeq {
		return false
	}
	s.offers = offers
	if s.selectedOfferID != "" && findOffer(offers, s.selectedOfferID) < 0 {
		s.selectedOfferID = ""
	}
	return true
}

// reset drops everything tied to the current instance.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalID = ""
	s.selectedOfferID = ""
	s.inputs = map[string]string{}
	s.fieldErrors = map[string]string{}
	s.notice = ""
	s.metadata = nil
	s.step = nil
	s.classification = Classification{}
	s.offers = nil
	s.autoAdvanced = map[string]struct{}{}
	s.widgetHandled = map[string]struct{}{}
}

// markAutoAdvanced records that the step at key was advanced automatically
// and reports whether it had not been before.
func (s *Session) markAutoAdvanced(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markOnce(s.autoAdvanced, key)
}

// markWidgetHandled records a widget completion for the step at key and
// reports whether it is the first one.
func (s *Session) markWidgetHandled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markOnce(s.widgetHandled, key)
}

func (s *Session) unmarkWidgetHandled(key string) {
	s.mu.Lock()
	delete(s.widgetHandled, key)
	s.mu.Unlock()
}

func markOnce(ledger map[string]struct{}, key string) bool {
	if _, seen := ledger[key]; seen {
		return false
	}
	ledger[key] = struct{}{}
	return true
}

func (s *Session) setNotice(msg string) {
	s.mu.Lock()
	s.notice = msg
	s.mu.Unlock()
}

// StepKey identifies a step within an instance. Auto-advance and widget
// completion are tracked per StepKey.
func StepKey(externalID, journeyStep string) string {
	return externalID + "/" + journeyStep
}

func findOffer(offers []OfferOption, id string) int {
	for i, o := range offers {
		if o.Card.OfferID == id {
			return i
		}
	}
	for i, o := range offers {
		if o.Card.CardID != "" && o.Card.CardID == id {
			return i
		}
	}
	return -1
}

// SessionStore keeps sessions by browser-session key. Stores that persist
// outside the process keep only the instance id and the offer selection;
// the rest is rebuilt by Renderer.Resume.
type SessionStore interface {
	Load(ctx context.Context, key string) (*Session, bool, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-process SessionStore. Idle sessions expire after the
// configured TTL and the least recently used ones are evicted past size.
type MemoryStore struct {
	cache *expirable.LRU[string, *Session]
}

// NewMemoryStore creates a MemoryStore. Non-positive arguments select
// 1024 sessions and a 30 minute TTL.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{cache: expirable.NewLRU[string, *Session](size, nil, ttl)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (*Session, bool, error) {
	s, ok := m.cache.Get(key)
	return s, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.cache.Add(s.key, s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

// Open returns the session stored under key, creating and saving it if
// absent.
func Open(ctx context.Context, store SessionStore, key string) (*Session, error) {
	s, ok, err := store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return s, nil
	}
	s = NewSession(key)
	if err := store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// persisted is the part of a Session that survives the process.
type persisted struct {
	ExternalID      string `json:"externalId,omitempty"`
	SelectedOfferID string `json:"selectedOfferId,omitempty"`
}

func (s *Session) persisted() persisted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return persisted{ExternalID: s.externalID, SelectedOfferID: s.selectedOfferID}
}

func restore(key string, p persisted) *Session {
	s := NewSession(key)
	s.externalID = p.ExternalID
	s.selectedOfferID = p.SelectedOfferID
	return s
}
