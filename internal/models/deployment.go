package models

import "time"

// Deployment stage and status values recorded in the audit log.
const (
	StageUser       = "user"
	StageAllocation = "allocation"
	StageServer     = "server"
	StageRollback   = "rollback"

	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Deployment is one provisioning attempt for a phone number.
type Deployment struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Username    string `json:"username"`

	// panel references, filled as stages complete
	PanelUserID  *int    `json:"panel_user_id,omitempty"`
	NodeID       *int    `json:"node_id,omitempty"`
	AllocationID *int    `json:"allocation_id,omitempty"`
	ServerID     *int    `json:"server_id,omitempty"`
	ServerName   *string `json:"server_name,omitempty"`

	Stage        string  `json:"stage"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeploymentLog is an append-only stage event for a deployment.
type DeploymentLog struct {
	ID           string                 `json:"id"`
	DeploymentID string                 `json:"deployment_id"`
	Stage        string                 `json:"stage"`
	Status       string                 `json:"status"`
	Message      string                 `json:"message"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
