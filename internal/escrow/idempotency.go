package escrow

import (
	"fmt"

	"github.com/google/uuid"

	"Holdsafe/internal/models"
)

// Namespace for deriving idempotency keys. Fixed so the same logical
// operation always produces the same key across retries and restarts.
var idemNamespace = uuid.MustParse("3f1a6a52-9c1e-4b77-8a4d-2f0cb0a6e9d1")

// IdempotencyKey derives the key sent with every gateway transfer/refund.
// A client retry of the same (order, operation, milestone, amount) reuses the
// key, so the gateway returns the original result instead of moving money twice.
func IdempotencyKey(orderID uint, op models.ReconOperation, milestoneRef string, amount int64) string {
	seed := fmt.Sprintf("%d|%s|%s|%d", orderID, op, milestoneRef, amount)
	return uuid.NewSHA1(idemNamespace, []byte(seed)).String()
}
