package service

import (
	"errors"
	"fmt"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/models"
)

var (
	// ErrNoCapacity means no unassigned allocation was found.
	ErrNoCapacity = errors.New("no allocation available")
	// ErrInvalidPhone means the number has fewer digits than the username needs.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// ProvisionError tags a pipeline failure with the stage that failed.
type ProvisionError struct {
	Stage string
	Err   error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("%s: %v", StageMessage(e.Stage), e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// StageMessage is the user-facing summary for a failed stage.
func StageMessage(stage string) string {
	switch stage {
	case models.StageUser:
		return "user creation failed"
	case models.StageAllocation:
		return "no allocation available"
	case models.StageServer:
		return "server creation failed"
	default:
		return "provisioning failed"
	}
}
