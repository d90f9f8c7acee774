package api

import (
	"context"
	"encoding/json"

	"github.com/klingon-exchange/tradecore/internal/errs"
	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/p2p"
	"github.com/klingon-exchange/tradecore/internal/storage"
)

type p2pPostParams struct {
	MakerID       string `json:"maker_id"`
	Side          string `json:"side"`
	Asset         string `json:"asset"`
	Network       string `json:"network"`
	Amount        string `json:"amount"`
	Price         string `json:"price"`
	FiatCurrency  string `json:"fiat_currency"`
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) p2pPost(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p p2pPostParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	amount, err := money.Parse(p.Amount)
	if err != nil {
		return nil, errs.Validationf("invalid amount: %v", err)
	}
	price, err := money.Parse(p.Price)
	if err != nil {
		return nil, errs.Validationf("invalid price: %v", err)
	}
	return s.p2p.PostAd(ctx, p.MakerID, storage.Side(p.Side), p.Asset, p.Network, amount, price, p.FiatCurrency, p.PaymentMethod)
}

type p2pOrderActorParams struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

func (s *Server) p2pTake(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p p2pOrderActorParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	return s.p2p.Take(ctx, p.OrderID, p.UserID)
}

func (s *Server) p2pConfirmPayment(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p p2pOrderActorParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	return s.p2p.ConfirmPayment(ctx, p.OrderID, p.UserID)
}

func (s *Server) p2pRelease(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p p2pOrderActorParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	return s.p2p.Release(ctx, p.OrderID, p.UserID)
}

func (s *Server) p2pCancel(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p p2pOrderActorParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	return s.p2p.Cancel(ctx, p.OrderID, p.UserID)
}

type p2pOpenDisputeParams struct {
	OrderID  string   `json:"order_id"`
	UserID   string   `json:"user_id"`
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence,omitempty"`
}

func (s *Server) p2pOpenDispute(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p p2pOpenDisputeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	return s.p2p.OpenDispute(ctx, p.OrderID, p.UserID, p.Reason, p.Evidence)
}

type p2pResolveParams struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
}

func (s *Server) p2pResolve(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p p2pResolveParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}

	var outcome p2p.DisputeOutcome
	switch p.Outcome {
	case "refund":
		outcome = p2p.DisputeRefund
	case "complete":
		outcome = p2p.DisputeComplete
	default:
		return nil, errs.Validationf("unknown dispute outcome %q", p.Outcome)
	}
	return s.p2p.ResolveDispute(ctx, p.OrderID, outcome)
}

type p2pListOpenParams struct {
	Asset   string `json:"asset"`
	Network string `json:"network"`
	Side    string `json:"side,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func (s *Server) p2pListOpen(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p p2pListOpenParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}

	filter := storage.P2PFilter{Asset: p.Asset, Network: p.Network, Limit: p.Limit}
	if p.Side != "" {
		side := storage.Side(p.Side)
		filter.Side = &side
	}
	return s.p2p.ListOpen(ctx, filter)
}

type p2pReviewParams struct {
	OrderID    string `json:"order_id"`
	ReviewerID string `json:"reviewer_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
}

func (s *Server) p2pReview(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p p2pReviewParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	if err := s.p2p.AddReview(ctx, p.OrderID, p.ReviewerID, p.Rating, p.Comment); err != nil {
		return nil, err
	}
	return map[string]string{"order_id": p.OrderID}, nil
}

type messageSendParams struct {
	OrderID  string `json:"order_id"`
	SenderID string `json:"sender_id"`
	Body     string `json:"body"`
}

func (s *Server) messagesSend(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p messageSendParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	return s.p2p.SendMessage(ctx, p.OrderID, p.SenderID, p.Body)
}

type messageListParams struct {
	OrderID     string `json:"order_id"`
	RequesterID string `json:"requester_id"`
}

func (s *Server) messagesList(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p messageListParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	return s.p2p.ListMessages(ctx, p.OrderID, p.RequesterID)
}
