package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/config"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/models"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/phone"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PanelClient is the subset of the panel API the pipeline writes through.
type PanelClient interface {
	CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.PanelUser, error)
	DeleteUser(ctx context.Context, userID int) error
	CreateServer(ctx context.Context, req *models.CreateServerRequest) (*models.PanelServer, error)
}

// Allocator picks the allocation for a new server.
type Allocator interface {
	Select(ctx context.Context) (*models.NodeAllocation, error)
}

// DeploymentRecorder keeps the audit trail of provisioning attempts.
type DeploymentRecorder interface {
	Create(ctx context.Context, d *models.Deployment) error
	Update(ctx context.Context, d *models.Deployment) error
	LogStage(ctx context.Context, deploymentID, stage, status, message string, metadata map[string]interface{}) error
}

// ProvisionService stands up the panel resources for one bot instance:
// user, then allocation, then server. Stages run strictly in order and the
// first failure stops the pipeline.
type ProvisionService struct {
	cfg       config.PanelConfig
	panel     PanelClient
	allocator Allocator
	recorder  DeploymentRecorder
}

// NewProvisionService creates a new provision service. recorder may be nil.
func NewProvisionService(
	cfg config.PanelConfig,
	panel PanelClient,
	allocator Allocator,
	recorder DeploymentRecorder,
) *ProvisionService {
	return &ProvisionService{
		cfg:       cfg,
		panel:     panel,
		allocator: allocator,
		recorder:  recorder,
	}
}

// Username is derived from the last 8 digits of the phone number.
func Username(phoneNumber string) string {
	return "bot_" + phone.Suffix(phoneNumber, 8)
}

// ServerName is derived from the last 4 digits, so numbers sharing a suffix
// collide on name.
func ServerName(phoneNumber string) string {
	return "wa-bot-" + phone.Suffix(phoneNumber, 4)
}

// Provision runs the pipeline. Without RollbackOnFailure a later-stage
// failure leaves the panel user from stage one in place.
func (s *ProvisionService) Provision(ctx context.Context, req *models.ProvisionRequest) (*models.ProvisionResult, error) {
	digits := phone.Digits(req.PhoneNumber)
	if len(digits) < 8 {
		return nil, fmt.Errorf("%w: need at least 8 digits", ErrInvalidPhone)
	}

	username := Username(digits)
	password, err := generatePassword()
	if err != nil {
		return nil, &ProvisionError{Stage: models.StageUser, Err: fmt.Errorf("generate password: %w", err)}
	}

	deployment := &models.Deployment{
		ID:          uuid.New().String(),
		PhoneNumber: digits,
		Email:       req.Email,
		Username:    username,
		Stage:       models.StageUser,
		Status:      models.StatusStarted,
	}
	s.recordCreate(ctx, deployment)

	logger := log.With().Str("deployment", deployment.ID).Str("username", username).Logger()
	logger.Info().Msg("provisioning started")

	// 1. user
	user, err := s.panel.CreateUser(ctx, &models.CreateUserRequest{
		Email:     req.Email,
		Username:  username,
		FirstName: "WhatsApp",
		LastName:  "Bot " + phone.Suffix(digits, 4),
		Password:  password,
	})
	if err != nil {
		return nil, s.fail(ctx, deployment, models.StageUser, err, nil)
	}
	deployment.PanelUserID = &user.ID
	s.recordStage(ctx, deployment, models.StageUser, models.StatusCompleted, fmt.Sprintf("panel user %d created", user.ID))

	// 2. allocation
	alloc, err := s.allocator.Select(ctx)
	if err != nil {
		return nil, s.fail(ctx, deployment, models.StageAllocation, err, user)
	}
	deployment.NodeID = &alloc.NodeID
	deployment.AllocationID = &alloc.AllocationID
	s.recordStage(ctx, deployment, models.StageAllocation, models.StatusCompleted,
		fmt.Sprintf("allocation %d on node %d", alloc.AllocationID, alloc.NodeID))

	// 3. server
	server, err := s.panel.CreateServer(ctx, s.buildServerRequest(digits, user.ID, alloc.AllocationID))
	if err != nil {
		return nil, s.fail(ctx, deployment, models.StageServer, err, user)
	}

	now := time.Now()
	deployment.ServerID = &server.ID
	deployment.ServerName = &server.Name
	deployment.CompletedAt = &now
	s.recordStage(ctx, deployment, models.StageServer, models.StatusCompleted, fmt.Sprintf("server %d created", server.ID))

	logger.Info().Int("server_id", server.ID).Str("server", server.Name).Msg("provisioning complete")

	return &models.ProvisionResult{
		DeploymentID: deployment.ID,
		Server:       *server,
		Username:     username,
		Password:     password,
		Allocation:   *alloc,
	}, nil
}

func (s *ProvisionService) buildServerRequest(digits string, userID, allocationID int) *models.CreateServerRequest {
	return &models.CreateServerRequest{
		Name:        ServerName(digits),
		User:        userID,
		Egg:         s.cfg.EggID,
		DockerImage: s.cfg.DockerImage,
		Startup:     s.cfg.Startup,
		Environment: map[string]string{
			"OWNER_NUMBER": digits,
			"BOT_NUMBER":   digits,
		},
		Limits: models.ServerLimits{
			Memory: s.cfg.Memory,
			Swap:   s.cfg.Swap,
			Disk:   s.cfg.Disk,
			IO:     s.cfg.IO,
			CPU:    s.cfg.CPU,
		},
		FeatureLimits: models.FeatureLimits{
			Databases:   0,
			Allocations: 1,
			Backups:     0,
		},
		Allocation: models.ServerAllocation{Default: allocationID},
	}
}

// fail records the failed stage and, when enabled, deletes the user created
// in stage one.
func (s *ProvisionService) fail(ctx context.Context, d *models.Deployment, stage string, cause error, user *models.PanelUser) error {
	log.Error().Err(cause).Str("deployment", d.ID).Str("stage", stage).Msg("provisioning failed")

	msg := cause.Error()
	d.ErrorMessage = &msg
	s.recordStage(ctx, d, stage, models.StatusFailed, msg)

	if user != nil && s.cfg.RollbackOnFailure {
		// the request context may already be done; rollback gets its own
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		if err := s.panel.DeleteUser(rbCtx, user.ID); err != nil {
			log.Error().Err(err).Int("user_id", user.ID).Msg("rollback: failed to delete panel user")
			s.recordLog(ctx, d.ID, models.StageRollback, models.StatusFailed, err.Error())
		} else {
			s.recordLog(ctx, d.ID, models.StageRollback, models.StatusCompleted, fmt.Sprintf("panel user %d deleted", user.ID))
		}
	}

	return &ProvisionError{Stage: stage, Err: cause}
}

func (s *ProvisionService) recordCreate(ctx context.Context, d *models.Deployment) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Create(ctx, d); err != nil {
		log.Warn().Err(err).Str("deployment", d.ID).Msg("failed to record deployment")
	}
}

func (s *ProvisionService) recordStage(ctx context.Context, d *models.Deployment, stage, status, message string) {
	d.Stage = stage
	d.Status = status
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Update(ctx, d); err != nil {
		log.Warn().Err(err).Str("deployment", d.ID).Msg("failed to update deployment")
	}
	s.recordLog(ctx, d.ID, stage, status, message)
}

func (s *ProvisionService) recordLog(ctx context.Context, deploymentID, stage, status, message string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.LogStage(ctx, deploymentID, stage, status, message, nil); err != nil {
		log.Warn().Err(err).Str("deployment", deploymentID).Msg("failed to log deployment stage")
	}
}

// generatePassword returns 24 hex characters of crypto randomness.
func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
