// Package midtrans adapts Midtrans Snap and Core API to gateway.PaymentGateway.
//
// Snap has no customer objects, so customers are a deterministic id derived
// from the user. A Snap order id is the session id; the Core API status and
// expire endpoints are keyed by the same order id.
package midtrans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	mt "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway"
)

// SnapExpiryMinutes matches the checkout retry window, so a reusable
// attempt never points at a dead Snap page.
const SnapExpiryMinutes = 60

// Config holds the Midtrans credentials.
type Config struct {
	ServerKey  string
	Production bool
}

// status is the slice of a Core API transaction the adapter reads.
type status struct {
	TransactionID     string
	TransactionStatus string
	GrossAmount       string
	PaymentType       string
	FraudStatus       string
}

// Gateway talks to Midtrans. The function fields are the SDK calls; tests
// replace them.
type Gateway struct {
	createTransaction func(req *snap.Request) (token, redirectURL string, err *mt.Error)
	checkTransaction  func(orderID string) (*status, *mt.Error)
	expireTransaction func(orderID string) (*status, *mt.Error)
	newOrderID        func(userID, conceptID uint) string
}

func New(cfg Config) *Gateway {
	env := mt.Sandbox
	if cfg.Production {
		env = mt.Production
	}

	var s snap.Client
	s.New(cfg.ServerKey, env)
	var c coreapi.Client
	c.New(cfg.ServerKey, env)

	return &Gateway{
		createTransaction: func(req *snap.Request) (string, string, *mt.Error) {
			resp, err := s.CreateTransaction(req)
			if err != nil {
				return "", "", err
			}
			return resp.Token, resp.RedirectURL, nil
		},
		checkTransaction: func(orderID string) (*status, *mt.Error) {
			resp, err := c.CheckTransaction(orderID)
			if err != nil {
				return nil, err
			}
			return &status{
				TransactionID:     resp.TransactionID,
				TransactionStatus: resp.TransactionStatus,
				GrossAmount:       resp.GrossAmount,
				PaymentType:       resp.PaymentType,
				FraudStatus:       resp.FraudStatus,
			}, nil
		},
		expireTransaction: func(orderID string) (*status, *mt.Error) {
			if _, err := c.ExpireTransaction(orderID); err != nil {
				return nil, err
			}
			return &status{TransactionStatus: "expire"}, nil
		},
		newOrderID: func(userID, conceptID uint) string {
			return fmt.Sprintf("SP-%d-%d-%s", userID, conceptID, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
		},
	}
}

func (g *Gateway) Provider() string { return models.BillingProviderMidtrans }

// CreateCustomer returns a stable id; Snap takes customer details per order.
func (g *Gateway) CreateCustomer(_ context.Context, customer gateway.Customer) (string, error) {
	if customer.UserID == 0 {
		return "", errors.New("midtrans: customer without user id")
	}
	return CustomerID(customer.UserID), nil
}

func CustomerID(userID uint) string {
	return fmt.Sprintf("mt-cust-%d", userID)
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, customerID string, concept *models.PaymentConcept, amount decimal.Decimal, userID uint) (*gateway.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("midtrans: amount must be positive, got %s", amount.String())
	}
	// Midtrans charges IDR in whole units. A fractional remainder left by an
	// underpayment is rounded up so the order always covers it.
	gross := amount.RoundCeil(0).IntPart()
	orderID := g.newOrderID(userID, concept.ID)

	req := &snap.Request{
		TransactionDetails: mt.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		CustomerDetail: &mt.CustomerDetails{
			FName: customerID,
		},
		Items: &[]mt.ItemDetails{
			{
				ID:    fmt.Sprintf("concept-%d", concept.ID),
				Name:  truncate(concept.Name, 50),
				Price: gross,
				Qty:   1,
			},
		},
		Expiry: &snap.ExpiryDetails{
			Unit:     "minute",
			Duration: SnapExpiryMinutes,
		},
		CustomField1: customerID,
	}

	token, redirectURL, merr := g.createTransaction(req)
	if merr != nil {
		return nil, fmt.Errorf("midtrans create transaction %s: %s", orderID, merr.Message)
	}
	log.Debugf("[Midtrans] Created order %s (token %s)", orderID, token)
	return &gateway.Session{ID: orderID, URL: redirectURL}, nil
}

// ExpireSessionIfPending expires an unpaid order. An order Midtrans has
// never seen (the payer did not pick a method) cannot be paid any more once
// the ledger drops it, so it counts as expired.
func (g *Gateway) ExpireSessionIfPending(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	st, merr := g.checkTransaction(sessionID)
	if merr != nil {
		if merr.StatusCode == http.StatusNotFound {
			return true, nil
		}
		return false, fmt.Errorf("midtrans check %s: %s", sessionID, merr.Message)
	}

	switch mapStatus(st.TransactionStatus) {
	case gateway.StatusExpired:
		return true, nil
	case gateway.StatusComplete:
		return false, nil
	}

	if _, merr := g.expireTransaction(sessionID); merr != nil {
		if merr.StatusCode == http.StatusNotFound {
			return true, nil
		}
		return false, fmt.Errorf("midtrans expire %s: %s", sessionID, merr.Message)
	}
	log.Infof("[Midtrans] Expired pending order %s", sessionID)
	return true, nil
}

func (g *Gateway) GetSessionStatus(ctx context.Context, sessionID string) (*gateway.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, merr := g.checkTransaction(sessionID)
	if merr != nil {
		if merr.StatusCode == http.StatusNotFound {
			return &gateway.Fact{SessionID: sessionID, Status: gateway.StatusOpen}, nil
		}
		return nil, fmt.Errorf("midtrans check %s: %s", sessionID, merr.Message)
	}
	return FactFrom(sessionID, st.TransactionStatus, st.FraudStatus, st.GrossAmount, st.TransactionID, st.PaymentType)
}

// FactFrom converts Midtrans transaction fields into a gateway fact. The
// webhook handler uses it for notifications too.
func FactFrom(orderID, transactionStatus, fraudStatus, grossAmount, transactionID, paymentType string) (*gateway.Fact, error) {
	f := &gateway.Fact{
		SessionID:               orderID,
		Status:                  mapStatus(transactionStatus),
		PaymentIntentID:         transactionID,
		ProviderPaymentMethodID: paymentType,
	}
	if transactionStatus == "capture" && strings.EqualFold(fraudStatus, "challenge") {
		f.Status = gateway.StatusRequiresAction
	}
	if f.Status == gateway.StatusComplete {
		received, err := models.ParseAmountReceived(&grossAmount)
		if err != nil {
			return nil, fmt.Errorf("midtrans order %s: %w", orderID, err)
		}
		f.AmountReceived = received
	}
	return f, nil
}

func mapStatus(s string) gateway.Status {
	switch s {
	case "settlement", "capture":
		return gateway.StatusComplete
	case "pending", "authorize":
		return gateway.StatusRequiresAction
	case "expire", "cancel", "deny", "failure":
		return gateway.StatusExpired
	default:
		return gateway.StatusOpen
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
