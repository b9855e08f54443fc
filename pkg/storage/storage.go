package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Flow represents a stored flow with metadata, plus a record of how the
// driver has used it: RunCount/LastRunAt are bumped by RecordRun whenever
// /api/run resolves a run from a flow_id instead of an inline body (see
// pkg/server.handleRun), so /api/flow/{id} reports whether a saved flow is
// actually being executed or just sitting there.
type Flow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	RunCount    int             `json:"run_count"`
	LastRunAt   *time.Time      `json:"last_run_at,omitempty"`
}

// FlowSummary represents a lightweight flow reference for listing
type FlowSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	RunCount    int        `json:"run_count"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
}

// Store defines the interface for flow storage operations
type Store interface {
	// Save creates a new flow and returns its ID
	Save(name, description string, data json.RawMessage) (string, error)

	// Update updates an existing flow
	Update(id, name, description string, data json.RawMessage) error

	// Load retrieves a flow by ID
	Load(id string) (*Flow, error)

	// Delete removes a flow by ID
	Delete(id string) error

	// List returns all flow summaries
	List() []FlowSummary

	// Exists checks if a flow exists
	Exists(id string) bool

	// RecordRun bumps the run counter and LastRunAt for id, called when a
	// run is requested from this stored flow, before the driver starts it.
	// Returns an error if id isn't stored.
	RecordRun(id string) error
}

// InMemoryStore implements Store using in-memory storage
type InMemoryStore struct {
	flows map[string]*Flow
	mu        sync.RWMutex
}

// NewInMemoryStore creates a new in-memory flow store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flows: make(map[string]*Flow),
	}
}

// Save creates a new flow and returns its ID
func (s *InMemoryStore) Save(name, description string, data json.RawMessage) (string, error) {
	if name == "" {
		return "", fmt.Errorf("flow name is required")
	}
	
	if len(data) == 0 {
		return "", fmt.Errorf("flow data is required")
	}
	
	// Validate that data is valid JSON
	var temp interface{}
	if err := json.Unmarshal(data, &temp); err != nil {
		return "", fmt.Errorf("invalid flow data: %w", err)
	}
	
	s.mu.Lock()
	defer s.mu.Unlock()
	
	id := uuid.New().String()
	now := time.Now()
	
	flow := &Flow{
		ID:          id,
		Name:        name,
		Description: description,
		Data:        data,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	
	s.flows[id] = flow
	
	return id, nil
}

// Update updates an existing flow
func (s *InMemoryStore) Update(id, name, description string, data json.RawMessage) error {
	if id == "" {
		return fmt.Errorf("flow ID is required")
	}
	
	if name == "" {
		return fmt.Errorf("flow name is required")
	}
	
	if len(data) == 0 {
		return fmt.Errorf("flow data is required")
	}
	
	// Validate that data is valid JSON
	var temp interface{}
	if err := json.Unmarshal(data, &temp); err != nil {
		return fmt.Errorf("invalid flow data: %w", err)
	}
	
	s.mu.Lock()
	defer s.mu.Unlock()
	
	flow, exists := s.flows[id]
	if !exists {
		return fmt.Errorf("flow with ID %s not found", id)
	}
	
	flow.Name = name
	flow.Description = description
	flow.Data = data
	flow.UpdatedAt = time.Now()
	
	return nil
}

// Load retrieves a flow by ID
func (s *InMemoryStore) Load(id string) (*Flow, error) {
	if id == "" {
		return nil, fmt.Errorf("flow ID is required")
	}
	
	s.mu.RLock()
	defer s.mu.RUnlock()
	
	flow, exists := s.flows[id]
	if !exists {
		return nil, fmt.Errorf("flow with ID %s not found", id)
	}
	
	// Return a copy to prevent external modifications
	flowCopy := &Flow{
		ID:          flow.ID,
		Name:        flow.Name,
		Description: flow.Description,
		Data:        make(json.RawMessage, len(flow.Data)),
		CreatedAt:   flow.CreatedAt,
		UpdatedAt:   flow.UpdatedAt,
		RunCount:    flow.RunCount,
		LastRunAt:   flow.LastRunAt,
	}
	copy(flowCopy.Data, flow.Data)

	return flowCopy, nil
}

// RecordRun bumps the run counter and stamps LastRunAt for id.
func (s *InMemoryStore) RecordRun(id string) error {
	if id == "" {
		return fmt.Errorf("flow ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	flow, exists := s.flows[id]
	if !exists {
		return fmt.Errorf("flow with ID %s not found", id)
	}

	now := time.Now()
	flow.RunCount++
	flow.LastRunAt = &now

	return nil
}

// Delete removes a flow by ID
func (s *InMemoryStore) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("flow ID is required")
	}
	
	s.mu.Lock()
	defer s.mu.Unlock()
	
	if _, exists := s.flows[id]; !exists {
		return fmt.Errorf("flow with ID %s not found", id)
	}
	
	delete(s.flows, id)
	
	return nil
}

// List returns all flow summaries
func (s *InMemoryStore) List() []FlowSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	
	summaries := make([]FlowSummary, 0, len(s.flows))
	
	for _, flow := range s.flows {
		summaries = append(summaries, FlowSummary{
			ID:          flow.ID,
			Name:        flow.Name,
			Description: flow.Description,
			CreatedAt:   flow.CreatedAt,
			UpdatedAt:   flow.UpdatedAt,
			RunCount:    flow.RunCount,
			LastRunAt:   flow.LastRunAt,
		})
	}
	
	return summaries
}

// Exists checks if a flow exists
func (s *InMemoryStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	
	_, exists := s.flows[id]
	return exists
}
