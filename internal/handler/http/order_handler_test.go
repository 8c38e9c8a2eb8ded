package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/garment-order-service/internal/auth"
	orderHandler "github.com/vasiliy-maslov/garment-order-service/internal/handler/http"
	"github.com/vasiliy-maslov/garment-order-service/internal/order"
	"github.com/vasiliy-maslov/garment-order-service/internal/product"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) orderResult(args mock.Arguments) (*order.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CreateOrder(ctx context.Context, actor auth.Principal, draft order.BookingDraft) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, actor, draft))
}

func (m *MockOrderService) GetOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, actor, id))
}

func (m *MockOrderService) ListOrders(ctx context.Context, actor auth.Principal, filter order.ListFilter) ([]order.Order, error) {
	args := m.Called(ctx, actor, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) ApproveOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, actor, id))
}

func (m *MockOrderService) RejectOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, actor, id))
}

func (m *MockOrderService) CancelOrder(ctx context.Context, actor auth.Principal, id uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, actor, id))
}

func (m *MockOrderService) AdvanceStage(ctx context.Context, actor auth.Principal, id uuid.UUID, adv order.StageAdvance) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, actor, id, adv))
}

func (m *MockOrderService) SetCurrentLocation(ctx context.Context, actor auth.Principal, id uuid.UUID, loc order.Coordinate) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, actor, id, loc))
}

func sampleOrder(customerID uuid.UUID, status order.Status) *order.Order {
	now := time.Now().UTC().Truncate(time.Second)
	return &order.Order{
		ID:            uuid.Must(uuid.NewV4()),
		CustomerID:    customerID,
		ProductID:     uuid.Must(uuid.NewV4()),
		ProductName:   "Denim jacket",
		ManagerID:     uuid.Must(uuid.NewV4()),
		UnitPrice:     decimal.RequireFromString("12.50"),
		Quantity:      3,
		TotalPrice:    decimal.RequireFromString("37.50"),
		Status:        status,
		PaymentOption: product.PaymentCashOnDelivery,
		PaymentStatus: order.PaymentUnpaid,
		Delivery: order.DeliveryDetails{
			FirstName:       "Ada",
			LastName:        "Lovelace",
			ContactNumber:   "+44 20 7946 0000",
			DeliveryAddress: "12 St James's Square, London",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func bookingRequest(productID uuid.UUID, quantity int) orderHandler.BookingRequest {
	return orderHandler.BookingRequest{
		ProductID:       productID,
		Quantity:        quantity,
		FirstName:       "Ada",
		LastName:        "Lovelace",
		ContactNumber:   "+44 20 7946 0000",
		DeliveryAddress: "12 St James's Square, London",
	}
}

func TestOrderHandler_handleCreateOrder(t *testing.T) {
	customer := principal(auth.RoleCustomer)
	productID := uuid.Must(uuid.NewV4())

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)

		created := sampleOrder(customer.ID, order.StatusPending)
		request := bookingRequest(productID, 3)
		mockService.On("CreateOrder", mock.Anything, customer, mock.MatchedBy(func(d order.BookingDraft) bool {
			return d.ProductID == productID && d.Quantity == 3 &&
				d.Delivery.FirstName == "Ada" && d.Delivery.DeliveryAddress == request.DeliveryAddress
		})).Return(created, nil).Once()

		rr := serveAs(t, handler, customer, jsonRequest(t, http.MethodPost, "/orders", request))
		require.Equal(t, http.StatusCreated, rr.Code)

		var actualResponse order.Order
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&actualResponse), "Failed to decode response body")
		assert.Equal(t, created.ID, actualResponse.ID)
		assert.True(t, created.TotalPrice.Equal(actualResponse.TotalPrice))
		assert.Equal(t, order.StatusPending, actualResponse.Status)
		mockService.AssertExpectations(t)
	})

	t.Run("Client price is rejected", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)

		body := `{"product_id":"` + productID.String() + `","quantity":3,"first_name":"Ada","last_name":"L",` +
			`"contact_number":"1","delivery_address":"x","total_price":"0.01"}`
		rr := serveAs(t, handler, customer, rawRequest(http.MethodPost, "/orders", body))
		require.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing delivery fields", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)

		request := bookingRequest(productID, 0)
		request.DeliveryAddress = ""
		rr := serveAs(t, handler, customer, jsonRequest(t, http.MethodPost, "/orders", request))
		require.Equal(t, http.StatusBadRequest, rr.Code)

		var errorResponse orderHandler.ValidationErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&errorResponse))
		assert.Equal(t, "is required", errorResponse.Details["DeliveryAddress"])
		assert.Equal(t, "must be at least 1", errorResponse.Details["Quantity"])
		mockService.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
	})

	serviceErrors := []struct {
		name         string
		err          error
		expectedCode int
	}{
		{"Product unavailable", order.ErrProductUnavailable, http.StatusUnprocessableEntity},
		{"Prepaid product", order.ErrPaymentRequired, http.StatusPaymentRequired},
		{"Product missing", product.ErrNotFound, http.StatusNotFound},
		{"Manager cannot book", &auth.DenyError{Action: auth.CreateOrder, Reason: auth.ErrForbidden}, http.StatusForbidden},
		{"Suspended customer", &auth.DenyError{Action: auth.CreateOrder, Reason: auth.ErrAccountSuspended}, http.StatusForbidden},
	}
	for _, tc := range serviceErrors {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := orderHandler.NewOrderHandler(mockService)
			mockService.On("CreateOrder", mock.Anything, customer, mock.AnythingOfType("order.BookingDraft")).Return(nil, tc.err).Once()

			rr := serveAs(t, handler, customer, jsonRequest(t, http.MethodPost, "/orders", bookingRequest(productID, 3)))
			require.Equal(t, tc.expectedCode, rr.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestOrderHandler_handleGetOrder(t *testing.T) {
	customer := principal(auth.RoleCustomer)
	existing := sampleOrder(customer.ID, order.StatusApproved)

	testCases := []struct {
		name         string
		path         string
		setupMock    func(m *MockOrderService)
		expectedCode int
	}{
		{
			name: "Success",
			path: "/orders/" + existing.ID.String(),
			setupMock: func(m *MockOrderService) {
				m.On("GetOrder", mock.Anything, customer, existing.ID).Return(existing, nil).Once()
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "Not found",
			path: "/orders/" + existing.ID.String(),
			setupMock: func(m *MockOrderService) {
				m.On("GetOrder", mock.Anything, customer, existing.ID).Return(nil, order.ErrOrderNotFound).Once()
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "Invalid id",
			path:         "/orders/123",
			setupMock:    func(m *MockOrderService) {},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := orderHandler.NewOrderHandler(mockService)
			tc.setupMock(mockService)

			rr := serveAs(t, handler, customer, jsonRequest(t, http.MethodGet, tc.path, nil))
			require.Equal(t, tc.expectedCode, rr.Code)
			mockService.AssertExpectations(t)
		})
	}
}

func TestOrderHandler_handleListOrders(t *testing.T) {
	manager := principal(auth.RoleManager)

	t.Run("Query is mapped to filter", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)

		pending := sampleOrder(uuid.Must(uuid.NewV4()), order.StatusPending)
		mockService.On("ListOrders", mock.Anything, manager, order.ListFilter{
			Status:       order.StatusPending,
			ManagerScope: true,
		}).Return([]order.Order{*pending}, nil).Once()

		rr := serveAs(t, handler, manager, jsonRequest(t, http.MethodGet, "/orders?status=Pending&manager_scope=true", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var orders []order.Order
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&orders))
		require.Len(t, orders, 1)
		assert.Equal(t, pending.ID, orders[0].ID)
		mockService.AssertExpectations(t)
	})

	t.Run("Empty list is an array", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)
		mockService.On("ListOrders", mock.Anything, manager, order.ListFilter{}).Return(nil, nil).Once()

		rr := serveAs(t, handler, manager, jsonRequest(t, http.MethodGet, "/orders", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	for _, query := range []string{"?status=Shipped", "?customer_id=nope", "?manager_scope=maybe"} {
		t.Run("Bad query "+query, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := orderHandler.NewOrderHandler(mockService)

			rr := serveAs(t, handler, manager, jsonRequest(t, http.MethodGet, "/orders"+query, nil))
			require.Equal(t, http.StatusBadRequest, rr.Code)
			mockService.AssertNotCalled(t, "ListOrders", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestOrderHandler_transitions(t *testing.T) {
	manager := principal(auth.RoleManager)
	customer := principal(auth.RoleCustomer)
	orderID := uuid.Must(uuid.NewV4())

	testCases := []struct {
		name         string
		path         string
		method       string
		actor        auth.Principal
		result       *order.Order
		err          error
		expectedCode int
	}{
		{
			name:         "Approve",
			path:         "/orders/" + orderID.String() + "/approve",
			method:       "ApproveOrder",
			actor:        manager,
			result:       sampleOrder(customer.ID, order.StatusApproved),
			expectedCode: http.StatusOK,
		},
		{
			name:         "Approve terminal order",
			path:         "/orders/" + orderID.String() + "/approve",
			method:       "ApproveOrder",
			actor:        manager,
			err:          &order.TransitionError{From: order.StatusRejected, To: order.StatusApproved},
			expectedCode: http.StatusConflict,
		},
		{
			name:         "Reject",
			path:         "/orders/" + orderID.String() + "/reject",
			method:       "RejectOrder",
			actor:        manager,
			result:       sampleOrder(customer.ID, order.StatusRejected),
			expectedCode: http.StatusOK,
		},
		{
			name:         "Cancel",
			path:         "/orders/" + orderID.String() + "/cancel",
			method:       "CancelOrder",
			actor:        customer,
			result:       sampleOrder(customer.ID, order.StatusCanceled),
			expectedCode: http.StatusOK,
		},
		{
			name:         "Cancel after approval",
			path:         "/orders/" + orderID.String() + "/cancel",
			method:       "CancelOrder",
			actor:        customer,
			err:          &order.TransitionError{From: order.StatusApproved, To: order.StatusCanceled},
			expectedCode: http.StatusConflict,
		},
		{
			name:         "Customer cannot approve",
			path:         "/orders/" + orderID.String() + "/approve",
			method:       "ApproveOrder",
			actor:        customer,
			err:          &auth.DenyError{Action: auth.ApproveOrder, Reason: auth.ErrForbidden},
			expectedCode: http.StatusForbidden,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			handler := orderHandler.NewOrderHandler(mockService)
			if tc.err != nil {
				mockService.On(tc.method, mock.Anything, tc.actor, orderID).Return(nil, tc.err).Once()
			} else {
				mockService.On(tc.method, mock.Anything, tc.actor, orderID).Return(tc.result, nil).Once()
			}

			rr := serveAs(t, handler, tc.actor, jsonRequest(t, http.MethodPut, tc.path, nil))
			require.Equal(t, tc.expectedCode, rr.Code)
			if tc.result != nil {
				var actualResponse order.Order
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&actualResponse))
				assert.Equal(t, tc.result.Status, actualResponse.Status)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestOrderHandler_handleAdvanceStage(t *testing.T) {
	manager := principal(auth.RoleManager)
	orderID := uuid.Must(uuid.NewV4())

	t.Run("Success with location", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)

		updated := sampleOrder(uuid.Must(uuid.NewV4()), order.StatusApproved)
		updated.Tracking.CompletedStages = []order.Stage{order.StageCutting}
		mockService.On("AdvanceStage", mock.Anything, manager, orderID, order.StageAdvance{
			Stage:    order.StageCutting,
			Note:     "first batch cut",
			Location: &order.Coordinate{Lat: 23.81, Lng: 90.41},
		}).Return(updated, nil).Once()

		rr := serveAs(t, handler, manager, rawRequest(http.MethodPut, "/orders/"+orderID.String()+"/progress",
			`{"stage":"Cutting","note":"first batch cut","location":{"lat":23.81,"lng":90.41}}`))
		require.Equal(t, http.StatusOK, rr.Code)

		var actualResponse order.Order
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&actualResponse))
		assert.Equal(t, []order.Stage{order.StageCutting}, actualResponse.Tracking.CompletedStages)
		mockService.AssertExpectations(t)
	})

	t.Run("Out of order stage reports the expected stage", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)
		mockService.On("AdvanceStage", mock.Anything, manager, orderID, order.StageAdvance{Stage: order.StageSewing}).
			Return(nil, &order.StageError{Requested: order.StageSewing, Expected: order.StageCutting}).Once()

		rr := serveAs(t, handler, manager, rawRequest(http.MethodPut, "/orders/"+orderID.String()+"/progress", `{"stage":"Sewing"}`))
		require.Equal(t, http.StatusConflict, rr.Code)

		var stageResponse orderHandler.StageErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&stageResponse))
		assert.Equal(t, "Sewing", stageResponse.RequestedStage)
		assert.Equal(t, "Cutting", stageResponse.ExpectedStage)
		mockService.AssertExpectations(t)
	})

	t.Run("Location without longitude", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)

		rr := serveAs(t, handler, manager, rawRequest(http.MethodPut, "/orders/"+orderID.String()+"/progress",
			`{"stage":"Cutting","location":{"lat":1}}`))
		require.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "AdvanceStage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Stage is required", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)

		rr := serveAs(t, handler, manager, rawRequest(http.MethodPut, "/orders/"+orderID.String()+"/progress", `{"note":"x"}`))
		require.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "AdvanceStage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestOrderHandler_handleSetLocation(t *testing.T) {
	manager := principal(auth.RoleManager)
	orderID := uuid.Must(uuid.NewV4())

	t.Run("Zero coordinates are accepted", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)
		updated := sampleOrder(uuid.Must(uuid.NewV4()), order.StatusApproved)
		mockService.On("SetCurrentLocation", mock.Anything, manager, orderID, order.Coordinate{Lat: 0, Lng: 0}).Return(updated, nil).Once()

		rr := serveAs(t, handler, manager, rawRequest(http.MethodPut, "/orders/"+orderID.String()+"/location", `{"lat":0,"lng":0}`))
		require.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("Out of range", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)
		mockService.On("SetCurrentLocation", mock.Anything, manager, orderID, order.Coordinate{Lat: 91, Lng: 0}).
			Return(nil, order.ErrInvalidCoordinate).Once()

		rr := serveAs(t, handler, manager, rawRequest(http.MethodPut, "/orders/"+orderID.String()+"/location", `{"lat":91,"lng":0}`))
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("Missing latitude", func(t *testing.T) {
		mockService := new(MockOrderService)
		handler := orderHandler.NewOrderHandler(mockService)

		rr := serveAs(t, handler, manager, rawRequest(http.MethodPut, "/orders/"+orderID.String()+"/location", `{"lng":0}`))
		require.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "SetCurrentLocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
