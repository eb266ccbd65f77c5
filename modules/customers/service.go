// Package customers is the higher-level service for customer records:
// reads go through the caching client, writes come in plain and "safe"
// flavors, where safe means a transport failure parks the mutation in the
// offline queue instead of losing it.
package customers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/tiendafix/storeapi/common"
	"github.com/tiendafix/storeapi/common/model"
	"github.com/tiendafix/storeapi/modules/api"
	"github.com/tiendafix/storeapi/outbox"
)

// Queue item types owned by this service.
const (
	TypeCreate = "customer.create"
	TypeUpdate = "customer.update"
)

// ReasonRequiredMessage rejects mutations without the mandatory
// justification the backend audits via the X-Reason header.
const ReasonRequiredMessage = "Se requiere un motivo para esta operación."

// Service exposes customer operations against the backend.
type Service interface {
	Get(ctx context.Context, id int64) (*model.Customer, error)
	// Search is cancellable through ctx; an aborted search simply returns
	// the context error and caches nothing.
	Search(ctx context.Context, query string, page int) (*model.CustomerPage, error)
	Create(ctx context.Context, in model.CustomerInput, reason string) (*model.Customer, error)
	Update(ctx context.Context, id int64, in model.CustomerInput, reason string) (*model.Customer, error)
	// SafeCreate reports ok with the created record, queued when the
	// backend was unreachable, or error for anything retrying cannot fix.
	SafeCreate(ctx context.Context, in model.CustomerInput, reason string) (*model.Customer, outbox.Outcome, error)
	SafeUpdate(ctx context.Context, id int64, in model.CustomerInput, reason string) (*model.Customer, outbox.Outcome, error)
}

type service struct {
	client   api.Client
	queue    *outbox.Queue
	tokens   oauth2.TokenSource
	validate *validator.Validate
	log      *logrus.Logger
}

type createPayload struct {
	Input  model.CustomerInput `json:"input"`
	Reason string              `json:"reason"`
}

type updatePayload struct {
	ID     int64               `json:"id"`
	Input  model.CustomerInput `json:"input"`
	Reason string              `json:"reason"`
}

// NewService constructs the customer service and registers its replay
// handlers on the queue.
func NewService(client api.Client, queue *outbox.Queue, tokens oauth2.TokenSource, log *logrus.Logger) Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &service{
		client:   client,
		queue:    queue,
		tokens:   tokens,
		validate: validator.New(),
		log:      log,
	}
	queue.Register(TypeCreate, s.replayCreate)
	queue.Register(TypeUpdate, s.replayUpdate)
	return s
}

func (s *service) Get(ctx context.Context, id int64) (*model.Customer, error) {
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	var cust model.Customer
	endpoint := fmt.Sprintf("customers/%d/", id)
	if err := s.client.GetJSON(ctx, endpoint, &cust, token, nil); err != nil {
		return nil, err
	}
	return &cust, nil
}

func (s *service) Search(ctx context.Context, query string, page int) (*model.CustomerPage, error) {
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	opts := &api.RequestOptions{Params: map[string]string{
		"q":    query,
		"page": fmt.Sprintf("%d", page),
	}}
	var result model.CustomerPage
	if err := s.client.GetJSON(ctx, "customers/", &result, token, opts); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) Create(ctx context.Context, in model.CustomerInput, reason string) (*model.Customer, error) {
	if err := s.checkInput(in, reason); err != nil {
		return nil, err
	}
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	var cust model.Customer
	opts := &api.RequestOptions{Reason: reason}
	if err := s.client.PostJSON(ctx, "customers/", in, &cust, token, opts); err != nil {
		return nil, err
	}
	return &cust, nil
}

func (s *service) Update(ctx context.Context, id int64, in model.CustomerInput, reason string) (*model.Customer, error) {
	if err := s.checkInput(in, reason); err != nil {
		return nil, err
	}
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	var cust model.Customer
	endpoint := fmt.Sprintf("customers/%d/", id)
	opts := &api.RequestOptions{Reason: reason}
	if err := s.client.PutJSON(ctx, endpoint, in, &cust, token, opts); err != nil {
		return nil, err
	}
	return &cust, nil
}

func (s *service) SafeCreate(ctx context.Context, in model.CustomerInput, reason string) (*model.Customer, outbox.Outcome, error) {
	cust, err := s.Create(ctx, in, reason)
	if err == nil {
		return cust, outbox.OutcomeOK, nil
	}
	if !common.IsRetryable(err) {
		return nil, outbox.OutcomeError, err
	}
	if _, qErr := s.queue.Enqueue(TypeCreate, createPayload{Input: in, Reason: reason}); qErr != nil {
		return nil, outbox.OutcomeError, qErr
	}
	return nil, outbox.OutcomeQueued, nil
}

func (s *service) SafeUpdate(ctx context.Context, id int64, in model.CustomerInput, reason string) (*model.Customer, outbox.Outcome, error) {
	cust, err := s.Update(ctx, id, in, reason)
	if err == nil {
		return cust, outbox.OutcomeOK, nil
	}
	if !common.IsRetryable(err) {
		return nil, outbox.OutcomeError, err
	}
	if _, qErr := s.queue.Enqueue(TypeUpdate, updatePayload{ID: id, Input: in, Reason: reason}); qErr != nil {
		return nil, outbox.OutcomeError, qErr
	}
	return nil, outbox.OutcomeQueued, nil
}

// ---------------------------------------------------
// Replay handlers
// ---------------------------------------------------

func (s *service) replayCreate(ctx context.Context, payload json.RawMessage) error {
	var p createPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	_, err := s.Create(ctx, p.Input, p.Reason)
	return err
}

func (s *service) replayUpdate(ctx context.Context, payload json.RawMessage) error {
	var p updatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	_, err := s.Update(ctx, p.ID, p.Input, p.Reason)
	return err
}

// ---------------------------------------------------
// Helpers
// ---------------------------------------------------

func (s *service) checkInput(in model.CustomerInput, reason string) error {
	if reason == "" {
		return &common.APIError{Kind: common.KindValidation, Message: ReasonRequiredMessage}
	}
	if err := s.validate.Struct(in); err != nil {
		return &common.APIError{Kind: common.KindValidation, Message: err.Error()}
	}
	return nil
}

func (s *service) token() (*oauth2.Token, error) {
	if s.tokens == nil {
		return nil, nil
	}
	return s.tokens.Token()
}
