package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/models"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/pairing"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/phone"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/repository"
	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/service"
)

// Provisioner stands up the panel resources for one number.
type Provisioner interface {
	Provision(ctx context.Context, req *models.ProvisionRequest) (*models.ProvisionResult, error)
}

// Pairer drives pairing sessions.
type Pairer interface {
	Pair(ctx context.Context, phoneNumber string) (*pairing.Result, error)
	Status(phoneNumber string) (pairing.Status, bool)
	Sessions() []pairing.Status
	Cancel(phoneNumber string) bool
}

// DeploymentStore reads back the audit log. Optional.
type DeploymentStore interface {
	GetLatestByPhone(ctx context.Context, phoneNumber string) (*models.Deployment, error)
	Logs(ctx context.Context, deploymentID string, limit int) ([]*models.DeploymentLog, error)
}

type Handler struct {
	provisioner Provisioner
	pairer      Pairer
	deployments DeploymentStore
}

// NewHandler wires the handlers. deployments may be nil when no database is
// configured.
func NewHandler(provisioner Provisioner, pairer Pairer, deployments DeploymentStore) *Handler {
	return &Handler{
		provisioner: provisioner,
		pairer:      pairer,
		deployments: deployments,
	}
}

// ==================== User API Handlers ====================

// Deploy runs provisioning and pairing for the same number concurrently and
// reports both outcomes.
func (h *Handler) Deploy(c *gin.Context) {
	var req models.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		wg         sync.WaitGroup
		resp       models.DeployResponse
		provErr    error
		pairingErr error
	)

	// provisioning runs to completion even if the caller goes away
	provCtx := context.WithoutCancel(c.Request.Context())
	wg.Go(func() {
		resp.Provision, provErr = h.provisioner.Provision(provCtx, &models.ProvisionRequest{
			PhoneNumber: req.PhoneNumber,
			Email:       req.Email,
		})
	})
	wg.Go(func() {
		var res *pairing.Result
		res, pairingErr = h.pairer.Pair(c.Request.Context(), req.PhoneNumber)
		if pairingErr == nil {
			resp.Pairing = pairResponse(res)
		}
	})
	wg.Wait()

	if provErr != nil {
		resp.ProvisionError = provErr.Error()
		var pe *service.ProvisionError
		if errors.As(provErr, &pe) {
			resp.ProvisionStage = pe.Stage
		}
	}
	if pairingErr != nil {
		resp.PairingError = pairingErr.Error()
	}

	status := http.StatusOK
	switch {
	case provErr != nil && pairingErr != nil:
		status = statusFor(provErr)
	case provErr != nil || pairingErr != nil:
		status = http.StatusMultiStatus
	}

	log.Info().
		Str("phone", req.PhoneNumber).
		Bool("provisioned", provErr == nil).
		Bool("paired", pairingErr == nil).
		Int("status", status).
		Msg("deploy finished")

	c.JSON(status, resp)
}

// Provision runs only the provisioning pipeline
func (h *Handler) Provision(c *gin.Context) {
	var req models.ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.provisioner.Provision(context.WithoutCancel(c.Request.Context()), &req)
	if err != nil {
		body := gin.H{"error": err.Error()}
		var pe *service.ProvisionError
		if errors.As(err, &pe) {
			body["stage"] = pe.Stage
		}
		c.JSON(statusFor(err), body)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Pair runs only the pairing handshake
func (h *Handler) Pair(c *gin.Context) {
	var req models.PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.pairer.Pair(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pairResponse(res))
}

// PairStatus gets the registry entry of a phone number
func (h *Handler) PairStatus(c *gin.Context) {
	st, ok := h.pairer.Status(c.Param("phone"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pairing session for this number"})
		return
	}
	c.JSON(http.StatusOK, statusResponse(st))
}

// ==================== Internal API Handlers ====================

// ListSessions lists every registered pairing session
func (h *Handler) ListSessions(c *gin.Context) {
	sessions := h.pairer.Sessions()
	out := make([]models.PairingStatusResponse, 0, len(sessions))
	for _, st := range sessions {
		out = append(out, statusResponse(st))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
}

// DeleteSession force-closes a pairing session
func (h *Handler) DeleteSession(c *gin.Context) {
	if !h.pairer.Cancel(c.Param("phone")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pairing session for this number"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetDeployment gets the latest deployment of a phone number with its stage log
func (h *Handler) GetDeployment(c *gin.Context) {
	if h.deployments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "deployment audit log disabled"})
		return
	}

	d, err := h.deployments.GetLatestByPhone(c.Request.Context(), phone.Digits(c.Param("phone")))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "deployment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logs, err := h.deployments.Logs(c.Request.Context(), d.ID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deployment": d, "logs": logs})
}

// ==================== Helpers ====================

func pairResponse(res *pairing.Result) *models.PairResponse {
	return &models.PairResponse{
		Success:     true,
		SessionID:   res.SessionID,
		PairingCode: res.PairingCode,
		Message:     res.Message,
	}
}

func statusResponse(st pairing.Status) models.PairingStatusResponse {
	resp := models.PairingStatusResponse{
		SessionID:   st.SessionID,
		PhoneNumber: st.PhoneNumber,
		State:       string(st.State),
		PairingCode: st.PairingCode,
		CreatedAt:   st.CreatedAt.UTC().Format(time.RFC3339),
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

// statusFor maps workflow errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidPhone), errors.Is(err, pairing.ErrInvalidPhone):
		return http.StatusBadRequest
	case errors.Is(err, pairing.ErrPairingInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoCapacity):
		return http.StatusServiceUnavailable
	case errors.Is(err, pairing.ErrPairingTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
