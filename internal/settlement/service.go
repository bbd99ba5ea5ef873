// Package settlement carries the payment domain this engine was built for:
// merchants, their transactions, per-method fees, and settlement runs. All
// reads and writes go through the executor contract; the service never
// touches storage directly.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jbdura/settlement-project/internal/query/executor"
	"github.com/jbdura/settlement-project/pkg/types"
)

// Transaction statuses.
const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Payment methods.
const (
	MethodMpesa = "MPESA"
	MethodCard  = "CARD"
	MethodBank  = "BANK"
)

// Domain errors surfaced by the service. Callers unwrap with errors.Is.
var (
	ErrMerchantNotFound         = errors.New("merchant not found")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrNoSettleableTransactions = errors.New("no settleable transactions")
)

// source tags every statement the service runs in the audit trail.
const source = "settlement"

// timeLayout is the textual form used for created_at cells.
const timeLayout = "2006-01-02 15:04:05"

// Table definitions. Merchants and transactions are keyed by the engine's
// internal row identifier; transactions reference merchants through it.
var bootstrapStatements = []string{
	`CREATE TABLE merchants (
		name VARCHAR(255) UNIQUE NOT NULL,
		settlement_account VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE transactions (
		merchant_id INT NOT NULL,
		amount DECIMAL NOT NULL,
		method VARCHAR(10) NOT NULL,
		status VARCHAR(10) NOT NULL,
		settled BOOLEAN NOT NULL
	)`,
	`CREATE TABLE fees (
		method VARCHAR(10) UNIQUE NOT NULL,
		percentage DECIMAL NOT NULL
	)`,
	`CREATE TABLE settlements (
		merchant_id INT NOT NULL,
		gross_amount DECIMAL NOT NULL,
		fee_amount DECIMAL NOT NULL,
		net_amount DECIMAL NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}

// SettlementRecord is the outcome of settling one merchant.
type SettlementRecord struct {
	MerchantID       int64     `json:"merchant_id"`
	MerchantName     string    `json:"merchant_name"`
	GrossAmount      float64   `json:"gross_amount"`
	FeeAmount        float64   `json:"fee_amount"`
	NetAmount        float64   `json:"net_amount"`
	TransactionCount int       `json:"transaction_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// SettlementRun is the outcome of settling every merchant.
type SettlementRun struct {
	Settlements    []SettlementRecord `json:"settlements"`
	Errors         []RunError         `json:"errors"`
	TotalProcessed int                `json:"total_processed"`
	TotalErrors    int                `json:"total_errors"`
}

// RunError names one merchant whose settlement failed during a run.
type RunError struct {
	MerchantID   int64  `json:"merchant_id"`
	MerchantName string `json:"merchant_name"`
	Error        string `json:"error"`
}

// Service executes the settlement workflows.
type Service struct {
	exec *executor.Executor
}

// NewService creates a Service over the given executor.
func NewService(exec *executor.Executor) *Service {
	return &Service{exec: exec}
}

// Bootstrap creates the settlement tables. Tables that already exist are
// left untouched, so Bootstrap is safe on every startup.
func (s *Service) Bootstrap(ctx context.Context) error {
	for _, stmt := range bootstrapStatements {
		res := s.exec.ExecuteFrom(ctx, source, stmt)
		if !res.Success && !strings.Contains(res.Message, "already exists") {
			return fmt.Errorf("settlement: bootstrap failed: %s", res.Message)
		}
	}
	return nil
}

// CalculateFee computes amount at the given percentage, rounded to two
// decimal places.
func CalculateFee(amount, percentage float64) float64 {
	return math.Round(amount*percentage) / 100
}

// round2 rounds a money amount to two decimal places.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// RecordMerchant registers a merchant and returns its identifier.
func (s *Service) RecordMerchant(ctx context.Context, name, settlementAccount string) (int64, error) {
	sql := fmt.Sprintf(
		"INSERT INTO merchants (name, settlement_account) VALUES ('%s', '%s')",
		escapeText(name), escapeText(settlementAccount))
	res := s.exec.ExecuteFrom(ctx, source, sql)
	if !res.Success {
		return 0, fmt.Errorf("settlement: record merchant: %s", res.Message)
	}
	return *res.InsertedID, nil
}

// RecordTransaction registers a transaction for a merchant in PENDING state
// and returns its identifier.
func (s *Service) RecordTransaction(ctx context.Context, merchantID int64, amount float64, method string) (int64, error) {
	if !validMethod(method) {
		return 0, fmt.Errorf("settlement: unknown payment method %q", method)
	}
	if amount < 0 {
		return 0, fmt.Errorf("settlement: amount must not be negative, got %v", amount)
	}
	if _, err := s.merchantName(ctx, merchantID); err != nil {
		return 0, err
	}

	sql := fmt.Sprintf(
		"INSERT INTO transactions (merchant_id, amount, method, status, settled) VALUES (%d, %s, '%s', '%s', FALSE)",
		merchantID, money(amount), method, StatusPending)
	res := s.exec.ExecuteFrom(ctx, source, sql)
	if !res.Success {
		return 0, fmt.Errorf("settlement: record transaction: %s", res.Message)
	}
	return *res.InsertedID, nil
}

// UpdateTransactionStatus moves a transaction to a new status.
func (s *Service) UpdateTransactionStatus(ctx context.Context, transactionID int64, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("settlement: unknown transaction status %q", status)
	}
	sql := fmt.Sprintf("UPDATE transactions SET status = '%s' WHERE _id = %d", status, transactionID)
	res := s.exec.ExecuteFrom(ctx, source, sql)
	if !res.Success {
		return fmt.Errorf("settlement: update transaction: %s", res.Message)
	}
	if res.AffectedRows == nil || *res.AffectedRows == 0 {
		return fmt.Errorf("settlement: transaction %d: %w", transactionID, ErrTransactionNotFound)
	}
	return nil
}

// SetFee sets the fee percentage for a payment method, replacing any
// existing rate.
func (s *Service) SetFee(ctx context.Context, method string, percentage float64) error {
	if !validMethod(method) {
		return fmt.Errorf("settlement: unknown payment method %q", method)
	}
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("settlement: fee percentage must be within 0..100, got %v", percentage)
	}

	update := fmt.Sprintf("UPDATE fees SET percentage = %s WHERE method = '%s'",
		decimal(percentage), method)
	res := s.exec.ExecuteFrom(ctx, source, update)
	if !res.Success {
		return fmt.Errorf("settlement: set fee: %s", res.Message)
	}
	if res.AffectedRows != nil && *res.AffectedRows > 0 {
		return nil
	}

	insert := fmt.Sprintf("INSERT INTO fees (method, percentage) VALUES ('%s', %s)",
		method, decimal(percentage))
	res = s.exec.ExecuteFrom(ctx, source, insert)
	if !res.Success {
		return fmt.Errorf("settlement: set fee: %s", res.Message)
	}
	return nil
}

// SeedDefaultFees writes the given percentage for every payment method that
// has no configured rate yet. Existing rates are kept.
func (s *Service) SeedDefaultFees(ctx context.Context, percentage float64) error {
	rates, err := s.feeRates(ctx)
	if err != nil {
		return err
	}
	for _, method := range []string{MethodMpesa, MethodCard, MethodBank} {
		if _, ok := rates[method]; ok {
			continue
		}
		if err := s.SetFee(ctx, method, percentage); err != nil {
			return err
		}
	}
	return nil
}

// feeRates loads the configured fee table. Methods without a row settle at
// zero percent.
func (s *Service) feeRates(ctx context.Context) (map[string]float64, error) {
	res := s.exec.ExecuteFrom(ctx, source, "SELECT method, percentage FROM fees")
	if !res.Success {
		return nil, fmt.Errorf("settlement: load fees: %s", res.Message)
	}
	rates := make(map[string]float64, len(res.Rows))
	for _, row := range res.Rows {
		rates[row["method"].Str] = row["percentage"].Dec
	}
	return rates, nil
}

// SettleMerchant settles every successful unsettled transaction of one
// merchant: sums the gross amount, applies the per-method fee, records the
// settlement, and marks the transactions settled.
func (s *Service) SettleMerchant(ctx context.Context, merchantID int64) (*SettlementRecord, error) {
	name, err := s.merchantName(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	rates, err := s.feeRates(ctx)
	if err != nil {
		return nil, err
	}

	pending := fmt.Sprintf(
		"SELECT amount, method FROM transactions WHERE merchant_id = %d AND status = '%s' AND settled = FALSE",
		merchantID, StatusSuccess)
	res := s.exec.ExecuteFrom(ctx, source, pending)
	if !res.Success {
		return nil, fmt.Errorf("settlement: select transactions: %s", res.Message)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("settlement: merchant %s: %w", name, ErrNoSettleableTransactions)
	}

	var gross, totalFee float64
	for _, row := range res.Rows {
		amount := row["amount"].Dec
		gross += amount
		totalFee += CalculateFee(amount, rates[row["method"].Str])
	}
	gross = round2(gross)
	totalFee = round2(totalFee)
	net := round2(gross - totalFee)
	now := time.Now().UTC().Truncate(time.Second)

	record := fmt.Sprintf(
		"INSERT INTO settlements (merchant_id, gross_amount, fee_amount, net_amount, created_at) VALUES (%d, %s, %s, %s, '%s')",
		merchantID, money(gross), money(totalFee), money(net), now.Format(timeLayout))
	if res := s.exec.ExecuteFrom(ctx, source, record); !res.Success {
		return nil, fmt.Errorf("settlement: record settlement: %s", res.Message)
	}

	mark := fmt.Sprintf(
		"UPDATE transactions SET settled = TRUE WHERE merchant_id = %d AND status = '%s' AND settled = FALSE",
		merchantID, StatusSuccess)
	marked := s.exec.ExecuteFrom(ctx, source, mark)
	if !marked.Success {
		return nil, fmt.Errorf("settlement: mark settled: %s", marked.Message)
	}

	return &SettlementRecord{
		MerchantID:       merchantID,
		MerchantName:     name,
		GrossAmount:      gross,
		FeeAmount:        totalFee,
		NetAmount:        net,
		TransactionCount: *marked.AffectedRows,
		CreatedAt:        now,
	}, nil
}

// SettleAll runs SettleMerchant for every merchant. Merchants with nothing
// to settle are skipped; other failures are collected without stopping the
// run.
func (s *Service) SettleAll(ctx context.Context) (*SettlementRun, error) {
	res := s.exec.ExecuteFrom(ctx, source, "SELECT _id, name FROM merchants")
	if !res.Success {
		return nil, fmt.Errorf("settlement: list merchants: %s", res.Message)
	}

	run := &SettlementRun{}
	for _, row := range res.Rows {
		id := row[types.IDColumn].Int
		record, err := s.SettleMerchant(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNoSettleableTransactions) {
				continue
			}
			run.Errors = append(run.Errors, RunError{
				MerchantID:   id,
				MerchantName: row["name"].Str,
				Error:        err.Error(),
			})
			continue
		}
		run.Settlements = append(run.Settlements, *record)
	}
	run.TotalProcessed = len(run.Settlements)
	run.TotalErrors = len(run.Errors)
	return run, nil
}

// merchantName resolves a merchant identifier to its name.
func (s *Service) merchantName(ctx context.Context, merchantID int64) (string, error) {
	sql := fmt.Sprintf("SELECT name FROM merchants WHERE _id = %d", merchantID)
	res := s.exec.ExecuteFrom(ctx, source, sql)
	if !res.Success {
		return "", fmt.Errorf("settlement: select merchant: %s", res.Message)
	}
	if len(res.Rows) == 0 {
		return "", fmt.Errorf("settlement: merchant %d: %w", merchantID, ErrMerchantNotFound)
	}
	return res.Rows[0]["name"].Str, nil
}

func validMethod(method string) bool {
	switch method {
	case MethodMpesa, MethodCard, MethodBank:
		return true
	}
	return false
}

func validStatus(status string) bool {
	switch status {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// escapeText doubles single quotes so user text survives SQL literal quoting.
func escapeText(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// money renders a two-decimal amount literal.
func money(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// decimal renders a float literal at full precision.
func decimal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
