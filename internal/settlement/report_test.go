package settlement

import (
	"context"
	"testing"
)

func TestMerchantReport(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	acme := seedMerchant(t, svc, "Acme", MethodMpesa, 100.00, 200.00)
	if _, err := svc.RecordTransaction(ctx, acme, 30.00, MethodCard); err != nil {
		t.Fatalf("failed to record pending transaction: %v", err)
	}
	failed, err := svc.RecordTransaction(ctx, acme, 40.00, MethodCard)
	if err != nil {
		t.Fatalf("failed to record transaction: %v", err)
	}
	if err := svc.UpdateTransactionStatus(ctx, failed, StatusFailed); err != nil {
		t.Fatalf("failed to fail transaction: %v", err)
	}

	// A merchant with no transactions at all
	if _, err := svc.RecordMerchant(ctx, "Globex", "acct-2"); err != nil {
		t.Fatalf("failed to record merchant: %v", err)
	}

	report, err := svc.MerchantReport(ctx)
	if err != nil {
		t.Fatalf("failed to build report: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("expected 2 merchants in report, got %d", len(report))
	}

	a := report[0]
	if a.Name != "Acme" || a.Transactions != 4 {
		t.Errorf("acme summary mismatch: %+v", a)
	}
	if a.Successful != 2 || a.Failed != 1 || a.Pending != 1 {
		t.Errorf("acme status counts mismatch: %+v", a)
	}
	if a.TotalAmount != 300.00 {
		t.Errorf("total amount should sum successful only: got %v", a.TotalAmount)
	}
	if a.Settled != 0 {
		t.Errorf("nothing settled yet: %+v", a)
	}

	g := report[1]
	if g.Name != "Globex" || g.Transactions != 0 || g.TotalAmount != 0 {
		t.Errorf("idle merchant should report zeros: %+v", g)
	}
}

func TestMerchantReportAfterSettlement(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id := seedMerchant(t, svc, "Acme", MethodMpesa, 100.00, 50.00)
	if _, err := svc.SettleMerchant(ctx, id); err != nil {
		t.Fatalf("failed to settle: %v", err)
	}

	report, err := svc.MerchantReport(ctx)
	if err != nil {
		t.Fatalf("failed to build report: %v", err)
	}
	if report[0].Settled != 2 {
		t.Errorf("expected 2 settled transactions, got %+v", report[0])
	}
	// Settled transactions still count toward totals
	if report[0].Successful != 2 || report[0].TotalAmount != 150.00 {
		t.Errorf("settled transactions dropped from totals: %+v", report[0])
	}
}

func TestSettlementHistoryUnknownMerchant(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.SettlementHistory(context.Background(), 7); err == nil {
		t.Error("unknown merchant should fail")
	}
}
