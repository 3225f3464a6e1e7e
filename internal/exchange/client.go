// Package exchange implements the Kalshi-style REST client used by the
// maker: markets, positions, resting orders, order-book reads, and the
// batched create/cancel endpoints.
//
// Every mutating request is rate-limited via per-category TokenBuckets,
// automatically retried on 5xx errors, and authenticated with the bearer
// header from Session (except log_in itself). Batch chunking and
// inter-request pacing live here because they are a property of how the
// client talks to the wire, not of the quoting logic that calls it.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"marketmaker/internal/errs"
	"marketmaker/pkg/types"
)

// batchLimit is the advanced-API cap on orders/cancels per request (spec §4.2, §5).
const batchLimit = 19

// interBatchPacing is the sleep between successive batch/individual requests
// within one cancel_orders or place_orders call (spec §4.2, §5).
const interBatchPacing = 300 * time.Millisecond

// Client is the Kalshi REST API client. It wraps a resty HTTP client with
// rate limiting, retry, and a bearer Session — composition, not
// inheritance (spec §9).
type Client struct {
	http    *resty.Client
	session *Session
	rl      *RateLimiter
	dryRun  bool
	logger  *slog.Logger
}

// NewClient creates a REST client bound to one environment's host.
func NewClient(env types.Environment, session *Session, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(env.Host()).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		session: session,
		rl:      NewRateLimiter(),
		dryRun:  dryRun,
		logger:  logger,
	}
}

// SetBaseURL repoints the client at a different host, for tests that stand
// up a local server instead of talking to a real Kalshi environment.
func (c *Client) SetBaseURL(url string) {
	c.http.SetBaseURL(url)
}

// authed refreshes the session and returns the request-builder with the
// bearer header set, per spec §4.1: every call refreshes auth before issuing.
func (c *Client) authed(ctx context.Context) (*resty.Request, error) {
	if err := c.session.RequireAuthenticated(ctx, c.http); err != nil {
		return nil, err
	}
	return c.http.R().SetContext(ctx).SetHeader("Authorization", c.session.AuthHeader()), nil
}

func (c *Client) asTransportError(resp *resty.Response) error {
	te := errs.TransportError{Status: resp.StatusCode(), Reason: resp.Status()}
	if te.Status == http.StatusUnauthorized || te.Status == http.StatusForbidden {
		c.session.Invalidate()
		return &errs.AuthExpired{TransportError: te}
	}
	return &te
}

// ListPublicMarkets returns every market's id, ticker_name, and status.
func (c *Client) ListPublicMarkets(ctx context.Context) ([]types.MarketRow, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}

	var body struct {
		Markets []types.MarketRow `json:"markets"`
	}
	resp, err := req.SetResult(&body).Get("/v1/markets")
	if err != nil {
		return nil, &errs.TransportError{Reason: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.asTransportError(resp)
	}
	return body.Markets, nil
}

// GetMarket fetches status, volume, and top-of-book for one ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*types.MarketDetails, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}

	var body struct {
		Market types.MarketDetails `json:"market"`
	}
	resp, err := req.SetResult(&body).Get("/v1/markets_by_ticker/" + ticker)
	if err != nil {
		return nil, &errs.TransportError{Reason: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.asTransportError(resp)
	}
	return &body.Market, nil
}

// ListPositions returns the maker's open positions keyed by market_id.
func (c *Client) ListPositions(ctx context.Context) (map[string]types.PositionRow, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}

	var body struct {
		MarketPositions []types.PositionRow `json:"market_positions"`
	}
	resp, err := req.SetResult(&body).Get("/v1/users/" + c.session.UserID() + "/positions")
	if err != nil {
		return nil, &errs.TransportError{Reason: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.asTransportError(resp)
	}

	byMarket := make(map[string]types.PositionRow, len(body.MarketPositions))
	for _, p := range body.MarketPositions {
		byMarket[p.MarketID] = p
	}
	return byMarket, nil
}

// ListRestingOrders returns the maker's resting orders in one market.
func (c *Client) ListRestingOrders(ctx context.Context, marketID string) ([]types.OrderRow, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}

	var body struct {
		Orders []types.OrderRow `json:"orders"`
	}
	resp, err := req.
		SetQueryParam("market_id", marketID).
		SetQueryParam("status", "resting").
		SetResult(&body).
		Get("/v1/users/" + c.session.UserID() + "/orders")
	if err != nil {
		return nil, &errs.TransportError{Reason: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.asTransportError(resp)
	}
	return body.Orders, nil
}

// GetPublicOrderbookRaw fetches the raw price/quantity levels for a market.
// Building the dense [1,99] views is the order-book-views component's job
// (internal/market), not the client's.
func (c *Client) GetPublicOrderbookRaw(ctx context.Context, ticker string) (*types.OrderBookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}

	var body types.OrderBookResponse
	resp, err := req.SetResult(&body).Get("/v1/markets_by_ticker/" + ticker + "/order_book")
	if err != nil {
		return nil, &errs.TransportError{Reason: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.asTransportError(resp)
	}
	return &body, nil
}

// PlaceOrders places orders, using the batch endpoint in chunks of at most
// batchLimit when advanced_api is set, or one request per order otherwise.
// interBatchPacing separates successive requests.
func (c *Client) PlaceOrders(ctx context.Context, orders []types.Order, advancedAPI bool) ([]types.PlacedOrderRow, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	if c.dryRun {
		c.logger.Info("dry-run: would place orders", "count", len(orders))
		results := make([]types.PlacedOrderRow, len(orders))
		for i, o := range orders {
			results[i] = types.PlacedOrderRow{OrderID: fmt.Sprintf("dry-run-%d", i), Price: o.Price, IsYes: o.Side == types.Yes, Count: o.Count}
		}
		return results, nil
	}

	var all []types.PlacedOrderRow
	if advancedAPI {
		for start := 0; start < len(orders); start += batchLimit {
			end := min(start+batchLimit, len(orders))
			placed, err := c.placeBatch(ctx, orders[start:end])
			if err != nil {
				return all, err
			}
			all = append(all, placed...)
			if end < len(orders) {
				time.Sleep(interBatchPacing)
			}
		}
		return all, nil
	}

	for i, o := range orders {
		placed, err := c.placeOne(ctx, o)
		if err != nil {
			return all, err
		}
		all = append(all, *placed)
		if i < len(orders)-1 {
			time.Sleep(interBatchPacing)
		}
	}
	return all, nil
}

func (c *Client) placeBatch(ctx context.Context, orders []types.Order) ([]types.PlacedOrderRow, error) {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}

	var body struct {
		Orders []types.PlacedOrderRow `json:"orders"`
	}
	resp, err := req.
		SetBody(map[string]any{"orders": orders}).
		SetResult(&body).
		Post("/v1/users/" + c.session.UserID() + "/batch_orders")
	if err != nil {
		return nil, &errs.TransportError{Reason: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.asTransportError(resp)
	}
	return body.Orders, nil
}

func (c *Client) placeOne(ctx context.Context, order types.Order) (*types.PlacedOrderRow, error) {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}

	var body types.PlacedOrderRow
	resp, err := req.
		SetBody(order).
		SetResult(&body).
		Post("/v1/users/" + c.session.UserID() + "/orders")
	if err != nil {
		return nil, &errs.TransportError{Reason: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, c.asTransportError(resp)
	}
	return &body, nil
}

// CancelOrders cancels the given order IDs, batched per advancedAPI and
// paced identically to PlaceOrders.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string, advancedAPI bool) error {
	if len(orderIDs) == 0 {
		return nil
	}
	if c.dryRun {
		c.logger.Info("dry-run: would cancel orders", "count", len(orderIDs))
		return nil
	}

	if advancedAPI {
		for start := 0; start < len(orderIDs); start += batchLimit {
			end := min(start+batchLimit, len(orderIDs))
			if err := c.cancelBatch(ctx, orderIDs[start:end]); err != nil {
				return err
			}
			if end < len(orderIDs) {
				time.Sleep(interBatchPacing)
			}
		}
		return nil
	}

	for i, id := range orderIDs {
		if err := c.cancelOne(ctx, id); err != nil {
			return err
		}
		if i < len(orderIDs)-1 {
			time.Sleep(interBatchPacing)
		}
	}
	return nil
}

func (c *Client) cancelBatch(ctx context.Context, orderIDs []string) error {
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}
	req, err := c.authed(ctx)
	if err != nil {
		return err
	}

	resp, err := req.
		SetBody(map[string]any{"ids": orderIDs}).
		Delete("/v1/users/" + c.session.UserID() + "/batch_orders")
	if err != nil {
		return &errs.TransportError{Reason: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return c.asTransportError(resp)
	}
	return nil
}

func (c *Client) cancelOne(ctx context.Context, orderID string) error {
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}
	req, err := c.authed(ctx)
	if err != nil {
		return err
	}

	resp, err := req.Delete("/v1/users/" + c.session.UserID() + "/orders/" + orderID)
	if err != nil {
		return &errs.TransportError{Reason: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return c.asTransportError(resp)
	}
	return nil
}
