package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "folio/internal/errors"
	"folio/internal/models"
	"folio/internal/pagination"
	"folio/internal/services"
)

// --- mock holding service ---

type mockHoldingService struct {
	createHoldingFn  func(userID string, in services.HoldingInput) (*models.Holding, error)
	listHoldingsFn   func(userID, accountID string, page pagination.PageRequest) (*pagination.PageResponse[models.Holding], error)
	getHoldingByIDFn func(userID, holdingID string) (*models.Holding, error)
	updateHoldingFn  func(userID, holdingID string, quantity, price decimal.Decimal, notes string) (*models.Holding, error)
	deleteHoldingFn  func(userID, holdingID string) error
}

var _ services.HoldingServicer = (*mockHoldingService)(nil)

func (m *mockHoldingService) CreateHolding(userID string, in services.HoldingInput) (*models.Holding, error) {
	if m.createHoldingFn != nil {
		return m.createHoldingFn(userID, in)
	}
	return &models.Holding{}, nil
}

func (m *mockHoldingService) ListHoldings(userID, accountID string, page pagination.PageRequest) (*pagination.PageResponse[models.Holding], error) {
	if m.listHoldingsFn != nil {
		return m.listHoldingsFn(userID, accountID, page)
	}
	resp := pagination.NewPageResponse([]models.Holding{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockHoldingService) GetHoldingByID(userID, holdingID string) (*models.Holding, error) {
	if m.getHoldingByIDFn != nil {
		return m.getHoldingByIDFn(userID, holdingID)
	}
	return &models.Holding{}, nil
}

func (m *mockHoldingService) UpdateHolding(userID, holdingID string, quantity, price decimal.Decimal, notes string) (*models.Holding, error) {
	if m.updateHoldingFn != nil {
		return m.updateHoldingFn(userID, holdingID, quantity, price, notes)
	}
	return &models.Holding{}, nil
}

func (m *mockHoldingService) DeleteHolding(userID, holdingID string) error {
	if m.deleteHoldingFn != nil {
		return m.deleteHoldingFn(userID, holdingID)
	}
	return nil
}

// --- router setup ---

func setupHoldingRouter(handler *HoldingHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/holdings", handler.CreateHolding)
	auth.GET("/holdings", handler.ListHoldings)
	auth.GET("/holdings/:id", handler.GetHolding)
	auth.PUT("/holdings/:id", handler.UpdateHolding)
	auth.DELETE("/holdings/:id", handler.DeleteHolding)
	return r
}

// --- tests ---

func TestHoldingHandler_CreateHolding(t *testing.T) {
	t.Run("returns_201_on_success", func(t *testing.T) {
		var got services.HoldingInput
		svc := &mockHoldingService{
			createHoldingFn: func(userID string, in services.HoldingInput) (*models.Holding, error) {
				if userID != testUserID {
					t.Errorf("expected user %s, got %s", testUserID, userID)
				}
				got = in
				return &models.Holding{
					Base:       models.Base{ID: testResourceID},
					AccountID:  in.AccountID,
					SecurityID: in.SecurityID,
					Quantity:   in.Quantity,
					Price:      in.Price,
				}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupHoldingRouter(NewHoldingHandler(svc, audit))

		rec := doRequest(r, "POST", "/holdings",
			`{"account_id":"`+testOtherID+`","security_id":"`+testResourceID+`","quantity":"10","price":"50.25"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !got.Quantity.Equal(decimal.NewFromInt(10)) {
			t.Errorf("expected quantity 10, got %s", got.Quantity)
		}
		if !got.Price.Equal(decimal.RequireFromString("50.25")) {
			t.Errorf("expected price 50.25, got %s", got.Price)
		}
		holding := parseJSON(t, rec)["holding"].(map[string]interface{})
		if holding["id"] != testResourceID {
			t.Errorf("expected id %s, got %v", testResourceID, holding["id"])
		}
		if !audit.hasAction("CREATE_HOLDING") {
			t.Error("expected CREATE_HOLDING audit entry")
		}
	})

	t.Run("returns_400_for_non_positive_quantity", func(t *testing.T) {
		svc := &mockHoldingService{
			createHoldingFn: func(string, services.HoldingInput) (*models.Holding, error) {
				t.Fatal("service should not be called")
				return nil, nil
			},
		}
		r := setupHoldingRouter(NewHoldingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/holdings",
			`{"account_id":"`+testOtherID+`","security_id":"`+testResourceID+`","quantity":"0"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns_400_for_missing_account", func(t *testing.T) {
		r := setupHoldingRouter(NewHoldingHandler(&mockHoldingService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/holdings", `{"security_id":"`+testResourceID+`","quantity":"1"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns_404_when_security_missing", func(t *testing.T) {
		svc := &mockHoldingService{
			createHoldingFn: func(string, services.HoldingInput) (*models.Holding, error) {
				return nil, apperrors.ErrSecurityNotFound
			},
		}
		r := setupHoldingRouter(NewHoldingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/holdings",
			`{"account_id":"`+testOtherID+`","security_id":"`+testResourceID+`","quantity":"1"}`)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "SECURITY_NOT_FOUND")
	})
}

func TestHoldingHandler_ListHoldings(t *testing.T) {
	t.Run("passes_account_filter", func(t *testing.T) {
		var gotAccount string
		svc := &mockHoldingService{
			listHoldingsFn: func(_ string, accountID string, _ pagination.PageRequest) (*pagination.PageResponse[models.Holding], error) {
				gotAccount = accountID
				resp := pagination.NewPageResponse([]models.Holding{{Base: models.Base{ID: testResourceID}}}, 1, 20, 1)
				return &resp, nil
			},
		}
		r := setupHoldingRouter(NewHoldingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/holdings?account_id="+testOtherID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotAccount != testOtherID {
			t.Errorf("expected account filter %s, got %q", testOtherID, gotAccount)
		}
		data := parseJSON(t, rec)["data"].([]interface{})
		if len(data) != 1 {
			t.Errorf("expected 1 holding, got %d", len(data))
		}
	})

	t.Run("returns_400_for_invalid_account_filter", func(t *testing.T) {
		r := setupHoldingRouter(NewHoldingHandler(&mockHoldingService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/holdings?account_id=nope", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestHoldingHandler_GetHolding(t *testing.T) {
	t.Run("returns_404_when_not_found", func(t *testing.T) {
		svc := &mockHoldingService{
			getHoldingByIDFn: func(string, string) (*models.Holding, error) {
				return nil, apperrors.ErrHoldingNotFound
			},
		}
		r := setupHoldingRouter(NewHoldingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/holdings/"+testResourceID, "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "HOLDING_NOT_FOUND")
	})

	t.Run("returns_400_for_invalid_id", func(t *testing.T) {
		r := setupHoldingRouter(NewHoldingHandler(&mockHoldingService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/holdings/not-a-uuid", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHoldingHandler_UpdateHolding(t *testing.T) {
	t.Run("forwards_quantity_and_price", func(t *testing.T) {
		svc := &mockHoldingService{
			updateHoldingFn: func(_ string, id string, quantity, price decimal.Decimal, notes string) (*models.Holding, error) {
				if id != testResourceID {
					t.Errorf("expected id %s, got %s", testResourceID, id)
				}
				if notes != "rebalanced" {
					t.Errorf("expected notes to be forwarded, got %q", notes)
				}
				return &models.Holding{Base: models.Base{ID: id}, Quantity: quantity, Price: price}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupHoldingRouter(NewHoldingHandler(svc, audit))

		rec := doRequest(r, "PUT", "/holdings/"+testResourceID, `{"quantity":"4","price":"10","notes":"rebalanced"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		holding := parseJSON(t, rec)["holding"].(map[string]interface{})
		if holding["quantity"] != "4" {
			t.Errorf("expected quantity 4, got %v", holding["quantity"])
		}
		if !audit.hasAction("UPDATE_HOLDING") {
			t.Error("expected UPDATE_HOLDING audit entry")
		}
	})

	t.Run("maps_invalid_price", func(t *testing.T) {
		svc := &mockHoldingService{
			updateHoldingFn: func(string, string, decimal.Decimal, decimal.Decimal, string) (*models.Holding, error) {
				return nil, apperrors.ErrInvalidPrice
			},
		}
		r := setupHoldingRouter(NewHoldingHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "PUT", "/holdings/"+testResourceID, `{"quantity":"1","price":"-1"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_PRICE")
	})
}

func TestHoldingHandler_DeleteHolding(t *testing.T) {
	t.Run("returns_204_on_success", func(t *testing.T) {
		audit := &mockAuditService{}
		r := setupHoldingRouter(NewHoldingHandler(&mockHoldingService{}, audit))

		rec := doRequest(r, "DELETE", "/holdings/"+testResourceID, "")

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if !audit.hasAction("DELETE_HOLDING") {
			t.Error("expected DELETE_HOLDING audit entry")
		}
	})
}
