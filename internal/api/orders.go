package api

import (
	"context"
	"encoding/json"

	"github.com/klingon-exchange/tradecore/internal/errs"
	"github.com/klingon-exchange/tradecore/internal/money"
	"github.com/klingon-exchange/tradecore/internal/storage"
)

type ordersCreateParams struct {
	UserID         string  `json:"user_id"`
	OrderType      string  `json:"type"`
	Side           string  `json:"side"`
	Network        string  `json:"network"`
	FromToken      string  `json:"from_token"`
	ToToken        string  `json:"to_token"`
	Amount         string  `json:"amount"`
	TriggerPrice   *string `json:"trigger_price,omitempty"`
	MaxSlippageBps int64   `json:"max_slippage_bps"`
}

func (s *Server) ordersCreate(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p ordersCreateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}

	amount, err := money.Parse(p.Amount)
	if err != nil {
		return nil, errs.Validationf("invalid amount: %v", err)
	}

	var triggerPrice *money.Money
	if p.TriggerPrice != nil {
		tp, err := money.Parse(*p.TriggerPrice)
		if err != nil {
			return nil, errs.Validationf("invalid trigger_price: %v", err)
		}
		triggerPrice = &tp
	}

	o, err := s.orders.CreateOrder(ctx, p.UserID, storage.OrderType(p.OrderType), storage.Side(p.Side), p.Network, p.FromToken, p.ToToken, amount, triggerPrice, p.MaxSlippageBps)
	if err != nil {
		return nil, err
	}
	return o, nil
}

type orderIDParams struct {
	OrderID string `json:"order_id"`
}

func (s *Server) ordersExecute(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p orderIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	return s.orders.Execute(ctx, p.OrderID)
}

func (s *Server) ordersCancel(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p orderIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	if err := s.orders.CancelOrder(ctx, p.OrderID); err != nil {
		return nil, err
	}
	return map[string]string{"order_id": p.OrderID, "status": string(storage.OrderStatusCancelled)}, nil
}

func (s *Server) ordersGet(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p orderIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}
	return s.orders.GetOrder(ctx, p.OrderID)
}

type ordersListParams struct {
	UserID string `json:"user_id"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

func (s *Server) ordersList(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p ordersListParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Validationf("invalid params: %v", err)
	}

	filter := storage.SpotOrderFilter{UserID: p.UserID, Limit: p.Limit, Offset: p.Offset}
	if p.Status != "" {
		st := storage.OrderStatus(p.Status)
		filter.Status = &st
	}
	return s.orders.ListUserOrders(ctx, filter)
}
