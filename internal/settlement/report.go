package settlement

import (
	"context"
	"fmt"

	"github.com/jbdura/settlement-project/pkg/types"
)

// MerchantSummary is one row of the merchant report.
type MerchantSummary struct {
	MerchantID   int64   `json:"merchant_id"`
	Name         string  `json:"name"`
	Transactions int     `json:"transactions"`
	Successful   int     `json:"successful"`
	Failed       int     `json:"failed"`
	Pending      int     `json:"pending"`
	TotalAmount  float64 `json:"total_amount"`
	Settled      int     `json:"settled"`
}

// MerchantReport summarizes every merchant's transaction activity. Merchants
// without transactions appear with zero counts. TotalAmount sums successful
// transactions only.
func (s *Service) MerchantReport(ctx context.Context) ([]MerchantSummary, error) {
	merchants := s.exec.ExecuteFrom(ctx, source, "SELECT _id, name FROM merchants")
	if !merchants.Success {
		return nil, fmt.Errorf("settlement: list merchants: %s", merchants.Message)
	}

	summaries := make([]MerchantSummary, len(merchants.Rows))
	byID := make(map[int64]*MerchantSummary, len(merchants.Rows))
	for i, row := range merchants.Rows {
		summaries[i] = MerchantSummary{
			MerchantID: row[types.IDColumn].Int,
			Name:       row["name"].Str,
		}
		byID[summaries[i].MerchantID] = &summaries[i]
	}

	joined := s.exec.Join("transactions", "merchants", "merchant_id", types.IDColumn,
		[]string{"merchants._id", "transactions.amount", "transactions.status", "transactions.settled"},
		nil)
	if !joined.Success {
		return nil, fmt.Errorf("settlement: join transactions: %s", joined.Message)
	}

	for _, row := range joined.Rows {
		summary, ok := byID[row["merchants._id"].Int]
		if !ok {
			continue
		}
		summary.Transactions++
		switch row["transactions.status"].Str {
		case StatusSuccess:
			summary.Successful++
			summary.TotalAmount = round2(summary.TotalAmount + row["transactions.amount"].Dec)
		case StatusFailed:
			summary.Failed++
		case StatusPending:
			summary.Pending++
		}
		if row["transactions.settled"].Bool {
			summary.Settled++
		}
	}
	return summaries, nil
}

// SettlementHistory returns the recorded settlements of one merchant, most
// recent last (insertion order).
func (s *Service) SettlementHistory(ctx context.Context, merchantID int64) ([]SettlementRecord, error) {
	name, err := s.merchantName(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(
		"SELECT gross_amount, fee_amount, net_amount, created_at FROM settlements WHERE merchant_id = %d",
		merchantID)
	res := s.exec.ExecuteFrom(ctx, source, sql)
	if !res.Success {
		return nil, fmt.Errorf("settlement: select settlements: %s", res.Message)
	}

	records := make([]SettlementRecord, len(res.Rows))
	for i, row := range res.Rows {
		records[i] = SettlementRecord{
			MerchantID:   merchantID,
			MerchantName: name,
			GrossAmount:  row["gross_amount"].Dec,
			FeeAmount:    row["fee_amount"].Dec,
			NetAmount:    row["net_amount"].Dec,
			CreatedAt:    row["created_at"].Time,
		}
	}
	return records, nil
}
