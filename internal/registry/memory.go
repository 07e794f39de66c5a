package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/colin330smith/callbot-ai/internal/domain"
)

// MemoryEndpointStore keeps endpoints in a map keyed by business ID. This is
// the reference behavior: registration does not survive a restart.
//
// All reads hand out copies so callers can never race the store's counters;
// counter mutation goes through RecordOutcome under the store lock.
type MemoryEndpointStore struct {
	mu        sync.RWMutex
	endpoints map[string][]*domain.Endpoint
}

func NewMemoryEndpointStore() *MemoryEndpointStore {
	return &MemoryEndpointStore{
		endpoints: make(map[string][]*domain.Endpoint),
	}
}

// Register validates and appends the endpoint. Duplicate URLs are allowed.
// A missing ID or secret is generated here; the secret is visible to the
// caller on this one occasion only.
func (s *MemoryEndpointStore) Register(ctx context.Context, ep *domain.Endpoint) error {
	if ep.ID == "" {
		ep.ID = NewEndpointID()
	}
	if ep.Secret == "" {
		secret, err := NewSecret()
		if err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		ep.Secret = secret
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	if err := ep.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ep.BusinessID] = append(s.endpoints[ep.BusinessID], ep)
	return nil
}

func (s *MemoryEndpointStore) Deregister(ctx context.Context, businessID, endpointID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eps := s.endpoints[businessID]
	for i, ep := range eps {
		if ep.ID == endpointID {
			s.endpoints[businessID] = append(eps[:i], eps[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryEndpointStore) List(ctx context.Context, businessID string) ([]*domain.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eps := s.endpoints[businessID]
	out := make([]*domain.Endpoint, len(eps))
	for i, ep := range eps {
		out[i] = copyEndpoint(ep)
	}
	return out, nil
}

func (s *MemoryEndpointStore) Get(ctx context.Context, businessID, endpointID string) (*domain.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ep := range s.endpoints[businessID] {
		if ep.ID == endpointID {
			return copyEndpoint(ep), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryEndpointStore) RecordOutcome(ctx context.Context, businessID, endpointID string, success bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ep := range s.endpoints[businessID] {
		if ep.ID != endpointID {
			continue
		}
		if success {
			ep.SuccessCount++
		} else {
			ep.FailureCount++
		}
		t := at
		ep.LastTriggered = &t
		return nil
	}
	return domain.ErrNotFound
}

func copyEndpoint(ep *domain.Endpoint) *domain.Endpoint {
	cp := *ep
	cp.Events = append([]domain.EventType(nil), ep.Events...)
	if ep.Headers != nil {
		cp.Headers = make(map[string]string, len(ep.Headers))
		for k, v := range ep.Headers {
			cp.Headers[k] = v
		}
	}
	if ep.LastTriggered != nil {
		t := *ep.LastTriggered
		cp.LastTriggered = &t
	}
	return &cp
}

// MemoryRuleStore keeps automation rules in a map keyed by business ID.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string][]*domain.Rule
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		rules: make(map[string][]*domain.Rule),
	}
}

func (s *MemoryRuleStore) Create(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == "" {
		rule.ID = NewRuleID()
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.BusinessID] = append(s.rules[rule.BusinessID], rule)
	return nil
}

func (s *MemoryRuleStore) Delete(ctx context.Context, businessID, ruleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := s.rules[businessID]
	for i, r := range rules {
		if r.ID == ruleID {
			s.rules[businessID] = append(rules[:i], rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryRuleStore) List(ctx context.Context, businessID string) ([]*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := s.rules[businessID]
	out := make([]*domain.Rule, len(rules))
	copy(out, rules)
	return out, nil
}

// NewEndpointID returns a fresh endpoint identifier.
func NewEndpointID() string {
	return "wh_" + uuid.NewString()
}

// NewRuleID returns a fresh rule identifier.
func NewRuleID() string {
	return "rule_" + uuid.NewString()
}

// NewSecret returns a 64-char hex signing secret from a CSPRNG.
func NewSecret() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
