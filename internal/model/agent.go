package model

import (
	"fmt"
	"time"
)

// AgentStatus is the lifecycle state of a monitored agent.
type AgentStatus string

const (
	AgentRunning AgentStatus = "running"
	AgentStopped AgentStatus = "stopped"
	AgentError   AgentStatus = "error"
	AgentUnknown AgentStatus = "unknown"
)

// ParseAgentStatus validates a status string.
func ParseAgentStatus(s string) (AgentStatus, error) {
	switch st := AgentStatus(s); st {
	case AgentRunning, AgentStopped, AgentError, AgentUnknown:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown agent status %q", ErrInvalidArgument, s)
}

// Agent is a registered AI agent that reports samples.
type Agent struct {
	ID          string         `json:"agent_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      AgentStatus    `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	LastSeen    *time.Time     `json:"last_seen,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DefaultAgentName is the display name given to agents registered
// implicitly by their first sample.
func DefaultAgentName(agentID string) string {
	if len(agentID) > 8 {
		agentID = agentID[:8]
	}
	return "Agent-" + agentID
}

// AgentFilter narrows an agent listing.
type AgentFilter struct {
	Status AgentStatus
	Limit  int
	Offset int
}

// SampleFilter narrows a sample listing. Zero times leave that side open.
type SampleFilter struct {
	AgentID string
	Start   time.Time
	End     time.Time
	Limit   int
	Offset  int
}
