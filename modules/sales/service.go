// Package sales covers quotes, sales returns, product imports and report
// downloads.
package sales

import (
	"context"
	"encoding/json"
	"io"

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
	TypeQuote  = "quote.create"
	TypeReturn = "return.create"
)

// ReasonRequiredMessage rejects mutations without the mandatory
// justification.
const ReasonRequiredMessage = "Se requiere un motivo para esta operación."

// Service exposes sales operations against the backend.
type Service interface {
	CreateQuote(ctx context.Context, in model.QuoteInput, reason string) (*model.Quote, error)
	SafeCreateQuote(ctx context.Context, in model.QuoteInput, reason string) (*model.Quote, outbox.Outcome, error)
	CreateReturn(ctx context.Context, in model.ReturnInput, reason string) (*model.Return, error)
	SafeCreateReturn(ctx context.Context, in model.ReturnInput, reason string) (*model.Return, outbox.Outcome, error)
	// ImportProducts uploads a CSV/XLSX file as multipart form data.
	ImportProducts(ctx context.Context, filename string, content io.Reader, reason string) (*model.ImportResult, error)
	// DownloadReport fetches a server-rendered report (PDF/XLSX/CSV). The
	// bytes pass through untouched and are never cached.
	DownloadReport(ctx context.Context, endpoint string, params map[string]string) ([]byte, error)
}

type service struct {
	client   api.Client
	queue    *outbox.Queue
	tokens   oauth2.TokenSource
	validate *validator.Validate
	log      *logrus.Logger
}

type quotePayload struct {
	Input  model.QuoteInput `json:"input"`
	Reason string           `json:"reason"`
}

type returnPayload struct {
	Input  model.ReturnInput `json:"input"`
	Reason string            `json:"reason"`
}

// NewService constructs the sales service and registers its replay
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
	queue.Register(TypeQuote, s.replayQuote)
	queue.Register(TypeReturn, s.replayReturn)
	return s
}

func (s *service) CreateQuote(ctx context.Context, in model.QuoteInput, reason string) (*model.Quote, error) {
	if err := s.checkInput(in, reason); err != nil {
		return nil, err
	}
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	var quote model.Quote
	opts := &api.RequestOptions{Reason: reason}
	if err := s.client.PostJSON(ctx, "quotes/", in, &quote, token, opts); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *service) SafeCreateQuote(ctx context.Context, in model.QuoteInput, reason string) (*model.Quote, outbox.Outcome, error) {
	quote, err := s.CreateQuote(ctx, in, reason)
	if err == nil {
		return quote, outbox.OutcomeOK, nil
	}
	if !common.IsRetryable(err) {
		return nil, outbox.OutcomeError, err
	}
	if _, qErr := s.queue.Enqueue(TypeQuote, quotePayload{Input: in, Reason: reason}); qErr != nil {
		return nil, outbox.OutcomeError, qErr
	}
	return nil, outbox.OutcomeQueued, nil
}

func (s *service) CreateReturn(ctx context.Context, in model.ReturnInput, reason string) (*model.Return, error) {
	if err := s.checkInput(in, reason); err != nil {
		return nil, err
	}
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	var ret model.Return
	opts := &api.RequestOptions{Reason: reason}
	if err := s.client.PostJSON(ctx, "returns/", in, &ret, token, opts); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (s *service) SafeCreateReturn(ctx context.Context, in model.ReturnInput, reason string) (*model.Return, outbox.Outcome, error) {
	ret, err := s.CreateReturn(ctx, in, reason)
	if err == nil {
		return ret, outbox.OutcomeOK, nil
	}
	if !common.IsRetryable(err) {
		return nil, outbox.OutcomeError, err
	}
	if _, qErr := s.queue.Enqueue(TypeReturn, returnPayload{Input: in, Reason: reason}); qErr != nil {
		return nil, outbox.OutcomeError, qErr
	}
	return nil, outbox.OutcomeQueued, nil
}

func (s *service) ImportProducts(ctx context.Context, filename string, content io.Reader, reason string) (*model.ImportResult, error) {
	if reason == "" {
		return nil, &common.APIError{Kind: common.KindValidation, Message: ReasonRequiredMessage}
	}
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	var result model.ImportResult
	opts := &api.RequestOptions{Reason: reason}
	if err := s.client.Upload(ctx, "products/import/", "file", filename, content, &result, token, opts); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) DownloadReport(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	token, err := s.token()
	if err != nil {
		return nil, err
	}
	opts := &api.RequestOptions{Params: params}
	return s.client.GetBytes(ctx, endpoint, token, opts)
}

// ---------------------------------------------------
// Replay handlers
// ---------------------------------------------------

func (s *service) replayQuote(ctx context.Context, payload json.RawMessage) error {
	var p quotePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	_, err := s.CreateQuote(ctx, p.Input, p.Reason)
	return err
}

func (s *service) replayReturn(ctx context.Context, payload json.RawMessage) error {
	var p returnPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	_, err := s.CreateReturn(ctx, p.Input, p.Reason)
	return err
}

// ---------------------------------------------------
// Helpers
// ---------------------------------------------------

func (s *service) checkInput(in interface{}, reason string) error {
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
