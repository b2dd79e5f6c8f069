package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/models"
)

type LogRepository struct {
	pool *pgxpool.Pool
}

func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// Create appends a stage event to a deployment
func (r *LogRepository) Create(ctx context.Context, entry *models.DeploymentLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO deployment_logs (id, deployment_id, stage, status, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.DeploymentID, entry.Stage, entry.Status, entry.Message, entry.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert deployment log: %w", err)
	}

	return nil
}

// GetByDeploymentID retrieves the newest events of a deployment
func (r *LogRepository) GetByDeploymentID(ctx context.Context, deploymentID string, limit int) ([]*models.DeploymentLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, deployment_id, stage, status, message, metadata, created_at
		FROM deployment_logs
		WHERE deployment_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, deploymentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deployment logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.DeploymentLog
	for rows.Next() {
		entry := &models.DeploymentLog{}
		err := rows.Scan(
			&entry.ID, &entry.DeploymentID, &entry.Stage, &entry.Status,
			&entry.Message, &entry.Metadata, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan deployment log: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// LogStage is a helper to record one stage transition
func (r *LogRepository) LogStage(ctx context.Context, deploymentID, stage, status, message string, metadata map[string]interface{}) error {
	return r.Create(ctx, &models.DeploymentLog{
		DeploymentID: deploymentID,
		Stage:        stage,
		Status:       status,
		Message:      message,
		Metadata:     metadata,
	})
}
