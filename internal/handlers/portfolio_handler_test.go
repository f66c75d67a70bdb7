package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"folio/internal/models"
	"folio/internal/pagination"
	"folio/internal/services"
)

type mockPortfolioService struct {
	getSummaryFn       func(ctx context.Context, userID string) (*services.PortfolioSummary, error)
	computeSnapshotsFn func(ctx context.Context, recordedAt time.Time) (int, error)
	getSnapshotsFn     func(userID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.PortfolioSnapshot], error)
}

var _ services.PortfolioServicer = (*mockPortfolioService)(nil)

func (m *mockPortfolioService) GetSummary(ctx context.Context, userID string) (*services.PortfolioSummary, error) {
	if m.getSummaryFn != nil {
		return m.getSummaryFn(ctx, userID)
	}
	return &services.PortfolioSummary{}, nil
}

func (m *mockPortfolioService) ComputeAndRecordSnapshots(ctx context.Context, recordedAt time.Time) (int, error) {
	if m.computeSnapshotsFn != nil {
		return m.computeSnapshotsFn(ctx, recordedAt)
	}
	return 0, nil
}

func (m *mockPortfolioService) GetSnapshots(userID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.PortfolioSnapshot], error) {
	if m.getSnapshotsFn != nil {
		return m.getSnapshotsFn(userID, from, to, page)
	}
	resp := pagination.NewPageResponse([]models.PortfolioSnapshot{}, 1, 20, 0)
	return &resp, nil
}

func setupPortfolioRouter(handler *PortfolioHandler) *gin.Engine {
	r := gin.New()
	r.POST("/pipeline/snapshots", handler.ComputeSnapshots)
	auth := r.Group("", injectUserID(testUserID))
	auth.GET("/portfolio/summary", handler.GetSummary)
	auth.GET("/portfolio/snapshots", handler.GetSnapshots)
	return r
}

func TestPortfolioHandler_GetSummary(t *testing.T) {
	svc := &mockPortfolioService{
		getSummaryFn: func(_ context.Context, userID string) (*services.PortfolioSummary, error) {
			if userID != testUserID {
				t.Errorf("expected user %s, got %s", testUserID, userID)
			}
			return &services.PortfolioSummary{
				BaseCurrency: "CAD",
				TotalValue:   decimal.NewFromInt(100000),
				Classes: []services.ClassSummary{
					{AssetClassName: "Equity", CurrentPct: decimal.NewFromInt(100), TargetPct: decimal.NewFromInt(60)},
				},
			}, nil
		},
	}
	r := setupPortfolioRouter(NewPortfolioHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/portfolio/summary", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	summary := parseJSON(t, rec)["summary"].(map[string]interface{})
	if summary["base_currency"] != "CAD" {
		t.Errorf("expected CAD, got %v", summary["base_currency"])
	}
	if summary["total_value"] != "100000" {
		t.Errorf("expected total 100000, got %v", summary["total_value"])
	}
	if classes := summary["classes"].([]interface{}); len(classes) != 1 {
		t.Errorf("expected 1 class row, got %d", len(classes))
	}
}

func TestPortfolioHandler_GetSnapshots(t *testing.T) {
	t.Run("passes_date_range", func(t *testing.T) {
		var gotFrom, gotTo time.Time
		svc := &mockPortfolioService{
			getSnapshotsFn: func(_ string, from, to time.Time, _ pagination.PageRequest) (*pagination.PageResponse[models.PortfolioSnapshot], error) {
				gotFrom, gotTo = from, to
				resp := pagination.NewPageResponse([]models.PortfolioSnapshot{}, 1, 20, 0)
				return &resp, nil
			},
		}
		r := setupPortfolioRouter(NewPortfolioHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/portfolio/snapshots?from_date=2026-01-01&to_date=2026-01-31", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotFrom.Day() != 1 || gotFrom.Month() != time.January {
			t.Errorf("unexpected from %v", gotFrom)
		}
		if !gotTo.After(gotFrom) {
			t.Errorf("expected to after from, got %v", gotTo)
		}
	})

	t.Run("requires_dates", func(t *testing.T) {
		r := setupPortfolioRouter(NewPortfolioHandler(&mockPortfolioService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/portfolio/snapshots", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestPortfolioHandler_ComputeSnapshots(t *testing.T) {
	t.Run("returns_count", func(t *testing.T) {
		svc := &mockPortfolioService{
			computeSnapshotsFn: func(_ context.Context, recordedAt time.Time) (int, error) {
				if recordedAt.Year() != 2026 {
					t.Errorf("unexpected recorded_at %v", recordedAt)
				}
				return 3, nil
			},
		}
		audit := &mockAuditService{}
		r := setupPortfolioRouter(NewPortfolioHandler(svc, audit))

		rec := doRequest(r, "POST", "/pipeline/snapshots", `{"recorded_at":"2026-03-01T00:00:00Z"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if n := parseJSON(t, rec)["snapshots_recorded"].(float64); n != 3 {
			t.Errorf("expected 3 snapshots, got %v", n)
		}
		if len(audit.entries) != 1 || audit.entries[0].userID != "" {
			t.Errorf("expected one pipeline audit entry without user, got %+v", audit.entries)
		}
	})

	t.Run("requires_recorded_at", func(t *testing.T) {
		r := setupPortfolioRouter(NewPortfolioHandler(&mockPortfolioService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/pipeline/snapshots", `{}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
