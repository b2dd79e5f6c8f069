package models

// ==================== Provisioning ====================

// ProvisionRequest is transient; it only lives for one pipeline call.
type ProvisionRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
}

// ProvisionResult carries the generated credentials exactly once. They are
// not persisted anywhere by the pipeline.
type ProvisionResult struct {
	DeploymentID string         `json:"deployment_id,omitempty"`
	Server       PanelServer    `json:"server"`
	Username     string         `json:"username"`
	Password     string         `json:"password"`
	Allocation   NodeAllocation `json:"allocation"`
}

// ==================== Pairing ====================

// PairRequest starts a pairing-code handshake.
type PairRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
}

// PairResponse mirrors the handshake outcome.
type PairResponse struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"session_id,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"` // XXXX-XXXX
	Message     string `json:"message,omitempty"`
}

// PairingStatusResponse is the registry view of one session.
type PairingStatusResponse struct {
	SessionID   string `json:"session_id"`
	PhoneNumber string `json:"phone_number"`
	State       string `json:"state"`
	PairingCode string `json:"pairing_code,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ==================== Deploy ====================

// DeployRequest triggers provisioning and pairing for the same number.
type DeployRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
}

// DeployResponse reports both workflows independently; one may fail while
// the other succeeds.
type DeployResponse struct {
	Provision      *ProvisionResult `json:"provision,omitempty"`
	ProvisionError string           `json:"provision_error,omitempty"`
	ProvisionStage string           `json:"provision_stage,omitempty"`
	Pairing        *PairResponse    `json:"pairing,omitempty"`
	PairingError   string           `json:"pairing_error,omitempty"`
}
