// Package gatewaytest provides a testify mock of gateway.PaymentGateway.
package gatewaytest

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Provider() string {
	return models.BillingProviderMidtrans
}

func (m *MockGateway) CreateCustomer(ctx context.Context, customer gateway.Customer) (string, error) {
	args := m.Called(ctx, customer)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, customerID string, concept *models.PaymentConcept, amount decimal.Decimal, userID uint) (*gateway.Session, error) {
	args := m.Called(ctx, customerID, concept, amount, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Session), args.Error(1)
}

func (m *MockGateway) ExpireSessionIfPending(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockGateway) GetSessionStatus(ctx context.Context, sessionID string) (*gateway.Fact, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Fact), args.Error(1)
}

// AmountEq matches a decimal argument by value, ignoring exponent.
func AmountEq(want string) interface{} {
	w := decimal.RequireFromString(want)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(w) })
}
