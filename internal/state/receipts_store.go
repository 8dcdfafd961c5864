// ./internal/state/receipts_store.go
package state

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openyield/yrv/internal/types"
)

// OperationReceiptStore persists the append-only operation history.
// Satisfies vault.ReceiptStore.
type OperationReceiptStore struct{}

func NewOperationReceiptStore() *OperationReceiptStore {
	return &OperationReceiptStore{}
}

// SaveReceipt appends one operation receipt. Receipts are never updated.
func (s *OperationReceiptStore) SaveReceipt(receipt types.OperationReceipt) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO operation_receipts (
			op_id, kind, caller, asset, amount, shares,
			usd_value, share_price, success, message, receipt_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING receipt_id;
	`

	var receiptID int64
	err := DB.QueryRow(
		query,
		receipt.OpID, string(receipt.Kind), string(receipt.Caller), receipt.Asset,
		receipt.Amount.String(), receipt.Shares.String(),
		receipt.UsdValue.String(), receipt.SharePrice.String(),
		receipt.Success, receipt.Message, receipt.Timestamp,
	).Scan(&receiptID)
	if err != nil {
		return fmt.Errorf("failed to save operation receipt: %w", err)
	}

	log.Debug().
		Int64("receipt_id", receiptID).
		Str("op_id", receipt.OpID).
		Str("kind", string(receipt.Kind)).
		Bool("success", receipt.Success).
		Msg("Operation receipt saved to database")

	return nil
}

// GetRecentReceipts returns the most recent receipts, newest first.
func GetRecentReceipts(limit int) ([]types.OperationReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT receipt_id, op_id, kind, caller, asset, amount, shares,
		       usd_value, share_price, success, message, receipt_timestamp
		FROM operation_receipts
		ORDER BY receipt_timestamp DESC, receipt_id DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.OperationReceipt
	for rows.Next() {
		var r types.OperationReceipt
		var kind, caller, amount, shares, usdValue, sharePrice string
		err := rows.Scan(
			&r.ReceiptID, &r.OpID, &kind, &caller, &r.Asset, &amount, &shares,
			&usdValue, &sharePrice, &r.Success, &r.Message, &r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		r.Kind = types.OperationKind(kind)
		r.Caller = types.Identity(caller)
		if r.Amount, err = parseStoredInt(amount); err != nil {
			return nil, fmt.Errorf("invalid amount in receipt %d: %w", r.ReceiptID, err)
		}
		if r.Shares, err = parseStoredInt(shares); err != nil {
			return nil, fmt.Errorf("invalid shares in receipt %d: %w", r.ReceiptID, err)
		}
		if r.UsdValue, err = parseStoredInt(usdValue); err != nil {
			return nil, fmt.Errorf("invalid usd_value in receipt %d: %w", r.ReceiptID, err)
		}
		if r.SharePrice, err = parseStoredInt(sharePrice); err != nil {
			return nil, fmt.Errorf("invalid share_price in receipt %d: %w", r.ReceiptID, err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipt rows: %w", err)
	}

	return receipts, nil
}
