package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/domain"
)

const DefaultCustomerIDTTL = 7 * 24 * time.Hour

// CheckoutService asks the payment api for checkout tokens and handles the
// "customer already exists" conflict.
type CheckoutService struct {
	api      PaymentAPI
	resolver *CustomerResolver
	ids      CustomerIDStore
	idTTL    time.Duration
	logger   *slog.Logger
}

func NewCheckoutService(api PaymentAPI, resolver *CustomerResolver, ids CustomerIDStore, idTTL time.Duration, logger *slog.Logger) *CheckoutService {
	if idTTL < DefaultCustomerIDTTL {
		idTTL = DefaultCustomerIDTTL
	}
	return &CheckoutService{api: api, resolver: resolver, ids: ids, idTTL: idTTL, logger: logger}
}

func (s *CheckoutService) CreateToken(ctx context.Context, req domain.CheckoutRequest, identity Identity) (*bna.CheckoutToken, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !req.Customer.Inline() {
		return s.api.CreateCheckoutToken(ctx, buildCheckoutPayload(req, req.Customer.ID))
	}

	email := req.Customer.Info.Email
	idKey := identity.CustomerKey(email)
	if known, ok, err := s.ids.Get(ctx, idKey); err != nil {
		s.logger.WarnContext(ctx, "customer id lookup failed", "error", err)
	} else if ok {
		token, err := s.api.CreateCheckoutToken(ctx, buildCheckoutPayload(req, known))
		switch {
		case err == nil:
			return token, nil
		case bna.IsConflict(err):
			return nil, &ConflictUnresolvedError{Email: email, Cause: err}
		case isRemoteNotFound(err):
			s.logger.InfoContext(ctx, "remembered customer id no longer exists, retrying inline")
			if err := s.ids.Delete(ctx, idKey); err != nil {
				s.logger.WarnContext(ctx, "forget customer id failed", "error", err)
			}
		default:
			return nil, err
		}
	}

	token, err := s.api.CreateCheckoutToken(ctx, buildCheckoutPayload(req, ""))
	if err == nil || !bna.IsConflict(err) {
		return token, err
	}

	s.logger.InfoContext(ctx, "payment api reported existing customer, resolving")
	customerID, rerr := s.resolver.Resolve(ctx, email)
	if rerr != nil {
		return nil, rerr
	}
	if err := s.ids.Set(ctx, idKey, customerID, s.idTTL); err != nil {
		s.logger.WarnContext(ctx, "persist resolved customer id failed", "error", err)
	}

	token, err = s.api.CreateCheckoutToken(ctx, buildCheckoutPayload(req, customerID))
	if bna.IsConflict(err) {
		return nil, &ConflictUnresolvedError{Email: email, Cause: err}
	}
	if err != nil {
		return nil, fmt.Errorf("retry checkout with customer id: %w", err)
	}
	return token, nil
}

// buildCheckoutPayload sends either the inline customer or customerID, never both.
func buildCheckoutPayload(req domain.CheckoutRequest, customerID string) bna.CheckoutPayload {
	payload := bna.CheckoutPayload{
		IframeID: req.IframeID,
		Items:    make([]bna.Item, 0, len(req.Items)),
		Subtotal: bna.Number(req.Subtotal),
		Currency: req.Currency,
	}
	for _, item := range req.Items {
		payload.Items = append(payload.Items, bna.Item{
			Description: item.Description,
			SKU:         item.SKU,
			Price:       bna.Number(item.Price),
			Quantity:    item.Quantity,
			Amount:      bna.Number(item.LineAmount()),
		})
	}
	if invoice := strings.TrimSpace(req.InvoiceID); invoice != "" {
		payload.InvoiceInfo = &bna.InvoiceInfo{InvoiceID: invoice}
	} else if req.OrderID != nil {
		payload.InvoiceInfo = &bna.InvoiceInfo{InvoiceID: fmt.Sprintf("%d", *req.OrderID)}
	}

	if customerID != "" {
		payload.CustomerID = customerID
		return payload
	}
	info := req.Customer.Info
	payload.CustomerInfo = &bna.CustomerInfo{
		Type:        string(info.Type),
		Email:       info.Email,
		FirstName:   info.FirstName,
		LastName:    info.LastName,
		PhoneCode:   info.PhoneCode,
		PhoneNumber: info.Phone,
	}
	if a := info.Address; a != nil {
		payload.CustomerInfo.Address = &bna.Address{
			StreetName: a.Street,
			City:       a.City,
			Province:   a.Province,
			Country:    a.Country,
			PostalCode: a.PostalCode,
		}
	}
	return payload
}

func isRemoteNotFound(err error) bool {
	var apiErr *bna.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsCustomerConflict reports whether err should be shown to the shopper as
// an existing-customer problem.
func IsCustomerConflict(err error) bool {
	return errors.Is(err, ErrCustomerConflictUnresolved)
}
