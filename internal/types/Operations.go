/*

This file contains the receipt types produced by the vault ledger. A receipt is
written for every user-facing operation, successful or not, so the operational
history can be reconstructed from the database.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// OperationKind defines the user-facing vault operations.
type OperationKind string

const (
	OperationDeposit           OperationKind = "DEPOSIT"
	OperationWithdraw          OperationKind = "WITHDRAW"
	OperationEmergencyWithdraw OperationKind = "EMERGENCY_WITHDRAW"
	OperationMigrateRouting    OperationKind = "MIGRATE_ROUTING"
)

// OperationReceipt records the outcome of a single vault operation.
type OperationReceipt struct {
	ReceiptID  int64         `json:"receipt_id,omitempty"` // Auto-incremented by DB
	OpID       string        `json:"op_id"`                // uuid, tags all log lines of the operation
	Kind       OperationKind `json:"kind"`
	Caller     Identity      `json:"caller"`
	Asset      string        `json:"asset"`
	Amount     sdkmath.Int   `json:"amount"`      // asset units moved
	Shares     sdkmath.Int   `json:"shares"`      // shares minted or burned (18 decimals)
	UsdValue   sdkmath.Int   `json:"usd_value"`   // 18-decimal USD value of the flow
	SharePrice sdkmath.Int   `json:"share_price"` // 18-decimal USD per share at execution
	Success    bool          `json:"success"`
	Message    string        `json:"message,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
