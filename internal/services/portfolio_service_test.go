package services

import (
	"context"
	"testing"
	"time"

	"folio/internal/models"
	"folio/internal/pagination"
	"folio/internal/testutil"
)

func TestGetSummary(t *testing.T) {
	t.Run("multi_currency", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		equity := testutil.CreateTestAssetClass(t, db, "Equity")
		bonds := testutil.CreateTestAssetClass(t, db, "Bonds")
		vti := testutil.CreateTestSecurity(t, db, "VTI", equity.ID, "USD", "100")
		zag := testutil.CreateTestSecurity(t, db, "ZAG", bonds.ID, "CAD", "15")
		usd := testutil.CreateTestAccount(t, db, user.ID, testutil.AccountOpts{Name: "USD RRSP", Currency: "USD", Cash: "100"})
		cad := testutil.CreateTestAccount(t, db, user.ID, testutil.AccountOpts{Name: "TFSA", Cash: "50"})
		testutil.CreateTestHolding(t, db, usd.ID, vti.ID, "10", "100")
		testutil.CreateTestHolding(t, db, cad.ID, zag.ID, "100", "15")
		testutil.CreateTestTarget(t, db, user.ID, equity.ID, "60")
		testutil.CreateTestTarget(t, db, user.ID, bonds.ID, "40")
		testutil.CreateTestExchangeRate(t, db, "USD", "CAD", "1.5")

		rates := NewExchangeRateService(db, nil, time.Hour, time.Second)
		svc := NewPortfolioService(db, rates)

		summary, err := svc.GetSummary(context.Background(), user.ID)
		testutil.AssertNoError(t, err)

		// 1000 USD of equity at 1.5 plus 1500 CAD of bonds.
		if !summary.TotalValue.Equal(testutil.D("3200")) {
			t.Errorf("expected total 3200 including cash, got %s", summary.TotalValue)
		}
		if !summary.TotalCash.Equal(testutil.D("200")) {
			t.Errorf("expected cash 200, got %s", summary.TotalCash)
		}
		if len(summary.Classes) != 2 {
			t.Fatalf("expected 2 classes, got %d", len(summary.Classes))
		}
		for _, c := range summary.Classes {
			if !c.CurrentPct.Equal(testutil.D("50")) {
				t.Errorf("expected %s at 50%%, got %s", c.AssetClassName, c.CurrentPct)
			}
			if c.Balanced {
				t.Errorf("expected %s to be out of balance", c.AssetClassName)
			}
		}
		if len(summary.Accounts) != 2 {
			t.Fatalf("expected 2 accounts, got %d", len(summary.Accounts))
		}
	})

	t.Run("untargeted_class_reported", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		gold := testutil.CreateTestAssetClass(t, db, "Gold")
		sec := testutil.CreateTestSecurity(t, db, "GLD", gold.ID, "CAD", "10")
		acc := testutil.CreateTestAccount(t, db, user.ID, testutil.AccountOpts{})
		testutil.CreateTestHolding(t, db, acc.ID, sec.ID, "1", "10")
		svc := NewPortfolioService(db, nil)

		summary, err := svc.GetSummary(context.Background(), user.ID)
		testutil.AssertNoError(t, err)

		if len(summary.Classes) != 1 {
			t.Fatalf("expected 1 class, got %d", len(summary.Classes))
		}
		if !summary.Classes[0].TargetPct.IsZero() || summary.Classes[0].AssetClassName != gold.Name {
			t.Errorf("expected %s against a zero target", gold.Name)
		}
	})

	t.Run("empty_portfolio", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		svc := NewPortfolioService(db, nil)

		summary, err := svc.GetSummary(context.Background(), user.ID)
		testutil.AssertNoError(t, err)

		if !summary.TotalValue.IsZero() || len(summary.Classes) != 0 {
			t.Error("expected an empty summary")
		}
	})
}

func TestComputeAndRecordSnapshots(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	user := testutil.CreateTestUser(t, db)
	testutil.CreateTestUser(t, db) // no accounts, no snapshot
	class := testutil.CreateTestAssetClass(t, db, "Equity")
	sec := testutil.CreateTestSecurity(t, db, "EQ", class.ID, "CAD", "10")
	acc := testutil.CreateTestAccount(t, db, user.ID, testutil.AccountOpts{Cash: "5"})
	testutil.CreateTestHolding(t, db, acc.ID, sec.ID, "3", "10")
	svc := NewPortfolioService(db, nil)

	at := time.Date(2026, 6, 30, 21, 0, 0, 0, time.UTC)
	count, err := svc.ComputeAndRecordSnapshots(context.Background(), at)
	testutil.AssertNoError(t, err)
	if count != 1 {
		t.Fatalf("expected 1 snapshot, got %d", count)
	}

	// A second run at the same time overwrites rather than duplicates.
	db.Model(&models.Account{}).Where("id = ?", acc.ID).Update("cash_balance", testutil.D("15"))
	_, err = svc.ComputeAndRecordSnapshots(context.Background(), at)
	testutil.AssertNoError(t, err)

	result, err := svc.GetSnapshots(user.ID, at.Add(-time.Hour), at.Add(time.Hour), pagination.PageRequest{})
	testutil.AssertNoError(t, err)

	if result.TotalItems != 1 {
		t.Fatalf("expected 1 stored snapshot, got %d", result.TotalItems)
	}
	snap := result.Data[0]
	if !snap.HoldingsValue.Equal(testutil.D("30")) || !snap.TotalValue.Equal(testutil.D("45")) {
		t.Errorf("unexpected snapshot values: holdings=%s total=%s", snap.HoldingsValue, snap.TotalValue)
	}
}
