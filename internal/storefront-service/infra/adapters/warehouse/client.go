// Package warehouse is the storefront's HTTP adapter for the warehouse
// service. It implements ports.StockService.
package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jcmexdev/ecommerce-fulfillment/internal/pkg/reqmeta"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/domain"
	"github.com/jcmexdev/ecommerce-fulfillment/internal/storefront-service/core/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client calls the warehouse REST API. Every call is bounded by the
// configured timeout on top of the caller's context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Compile-time check.
var _ ports.StockService = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: timeout,
	}
}

func (c *Client) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	var ok bool
	path := "/api/products/" + url.PathEscape(productID) + "/stock-check?quantity=" + strconv.Itoa(quantity)
	err := c.do(ctx, call{op: "check stock", method: http.MethodGet, path: path, productID: productID}, &ok)
	return ok, err
}

func (c *Client) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	var p productResponse
	err := c.do(ctx, call{op: "get product", method: http.MethodGet, path: "/api/products/" + url.PathEscape(productID), productID: productID}, &p)
	if err != nil {
		return domain.Product{}, err
	}
	return p.toDomain(), nil
}

// ApplyDelta sends m.MutationID as the idempotency key so a retried
// mutation is applied once.
func (c *Client) ApplyDelta(ctx context.Context, m ports.StockMutation) (ports.StockLevel, error) {
	var res stockUpdateResponse
	err := c.do(ctx, call{
		op:             "update stock",
		method:         http.MethodPut,
		path:           "/api/products/stock",
		body:           stockUpdateRequest{ProductID: m.ProductID, Quantity: m.Quantity, Operation: m.Operation},
		idempotencyKey: m.MutationID,
		productID:      m.ProductID,
	}, &res)
	if err != nil {
		return ports.StockLevel{}, err
	}
	return res.toLevel(), nil
}

func (c *Client) Hold(ctx context.Context, reservationID string, lines []domain.StockLine, ttl time.Duration) error {
	items := make([]holdItem, len(lines))
	for i, l := range lines {
		items[i] = holdItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return c.do(ctx, call{
		op:     "hold stock",
		method: http.MethodPost,
		path:   "/api/reservations",
		body:   holdRequest{ReservationID: reservationID, Items: items, TTLSeconds: int(ttl / time.Second)},
	}, nil)
}

func (c *Client) Commit(ctx context.Context, reservationID, productID string) (ports.StockLevel, error) {
	var res stockUpdateResponse
	path := "/api/reservations/" + url.PathEscape(reservationID) + "/items/" + url.PathEscape(productID) + "/commit"
	err := c.do(ctx, call{op: "commit hold", method: http.MethodPost, path: path, productID: productID}, &res)
	if err != nil {
		return ports.StockLevel{}, err
	}
	return res.toLevel(), nil
}

func (c *Client) Release(ctx context.Context, reservationID string) error {
	return c.do(ctx, call{op: "release hold", method: http.MethodDelete, path: "/api/reservations/" + url.PathEscape(reservationID)}, nil)
}

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return c.list(ctx, "list products", "/api/products")
}

func (c *Client) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	return c.list(ctx, "list available", "/api/products/available")
}

func (c *Client) SearchProducts(ctx context.Context, name string) ([]domain.Product, error) {
	return c.list(ctx, "search products", "/api/products/search?name="+url.QueryEscape(name))
}

func (c *Client) list(ctx context.Context, op, path string) ([]domain.Product, error) {
	var res []productResponse
	if err := c.do(ctx, call{op: op, method: http.MethodGet, path: path}, &res); err != nil {
		return nil, err
	}
	out := make([]domain.Product, len(res))
	for i, p := range res {
		out[i] = p.toDomain()
	}
	return out, nil
}

type call struct {
	op             string
	method         string
	path           string
	body           any
	idempotencyKey string
	// productID names the product in not-found errors.
	productID string
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("warehouse %s: encode: %w", cl.op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return fmt.Errorf("warehouse %s: create request: %w", cl.op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.idempotencyKey != "" {
		req.Header.Set(reqmeta.HeaderXIdempotencyKey, cl.idempotencyKey)
	}
	reqmeta.Propagate(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.UpstreamUnavailableError{Op: cl.op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &domain.UpstreamUnavailableError{Op: cl.op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(cl, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &domain.UpstreamUnavailableError{Op: cl.op, Err: err}
		}
		return fmt.Errorf("warehouse %s: decode response: %w", cl.op, err)
	}
	return nil
}

func decodeError(cl call, resp *http.Response) error {
	var e errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&e)

	switch e.Error {
	case codeProductNotFound:
		return &domain.ProductNotFoundError{ProductID: cl.productID}
	case codeReservationNotFound:
		return domain.ErrHoldNotFound
	case codeInsufficientStock:
		return &domain.InsufficientStockError{ProductID: e.ProductID, Requested: e.Requested}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("warehouse %s: %d %s: %s", cl.op, resp.StatusCode, e.Error, e.Message)
}
