package ports

import (
	"context"

	"github.com/alejandrodnm/digitbot/internal/domain"
)

// ContractExecutor places real digit contracts with the broker.
type ContractExecutor interface {
	// Buy submits the contract and blocks until the broker settles it.
	// The returned outcome is authoritative. Errors wrapping
	// domain.ErrContractRejected are final and must not be retried.
	Buy(ctx context.Context, req domain.ContractRequest) (domain.ContractOutcome, error)

	// Balance returns the account balance.
	Balance(ctx context.Context) (float64, error)
}
