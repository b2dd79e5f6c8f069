package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/models"
)

var ErrNotFound = errors.New("not found")

const deploymentColumns = `
	id, phone_number, email, username,
	panel_user_id, node_id, allocation_id, server_id, server_name,
	stage, status, error_message,
	created_at, updated_at, completed_at`

// DeploymentRepository stores provisioning attempts and their stage log.
type DeploymentRepository struct {
	pool *pgxpool.Pool
	logs *LogRepository
}

func NewDeploymentRepository(pool *pgxpool.Pool) *DeploymentRepository {
	return &DeploymentRepository{pool: pool, logs: NewLogRepository(pool)}
}

func (r *DeploymentRepository) Create(ctx context.Context, d *models.Deployment) error {
	query := `
		INSERT INTO deployments (
			id, phone_number, email, username,
			stage, status
		) VALUES (
			$1, $2, $3, $4,
			$5, $6
		)
	`
	_, err := r.pool.Exec(ctx, query,
		d.ID, d.PhoneNumber, d.Email, d.Username,
		d.Stage, d.Status,
	)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

func (r *DeploymentRepository) GetLatestByPhone(ctx context.Context, phoneNumber string) (*models.Deployment, error) {
	query := `SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE phone_number = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, phoneNumber))
}

func (r *DeploymentRepository) Update(ctx context.Context, d *models.Deployment) error {
	query := `
		UPDATE deployments SET
			panel_user_id = $1,
			node_id = $2,
			allocation_id = $3,
			server_id = $4,
			server_name = $5,
			stage = $6,
			status = $7,
			error_message = $8,
			completed_at = $9,
			updated_at = NOW()
		WHERE id = $10
	`
	_, err := r.pool.Exec(ctx, query,
		d.PanelUserID, d.NodeID, d.AllocationID, d.ServerID, d.ServerName,
		d.Stage, d.Status, d.ErrorMessage, d.CompletedAt,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	return nil
}

func (r *DeploymentRepository) LogStage(ctx context.Context, deploymentID, stage, status, message string, metadata map[string]interface{}) error {
	return r.logs.LogStage(ctx, deploymentID, stage, status, message, metadata)
}

// Logs returns the stage log of a deployment, newest first.
func (r *DeploymentRepository) Logs(ctx context.Context, deploymentID string, limit int) ([]*models.DeploymentLog, error) {
	return r.logs.GetByDeploymentID(ctx, deploymentID, limit)
}

func (r *DeploymentRepository) scanOne(row pgx.Row) (*models.Deployment, error) {
	d := &models.Deployment{}
	err := row.Scan(
		&d.ID, &d.PhoneNumber, &d.Email, &d.Username,
		&d.PanelUserID, &d.NodeID, &d.AllocationID, &d.ServerID, &d.ServerName,
		&d.Stage, &d.Status, &d.ErrorMessage,
		&d.CreatedAt, &d.UpdatedAt, &d.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan deployment: %w", err)
	}
	return d, nil
}
