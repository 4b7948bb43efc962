// Package rpc exposes the lookup service as GazetteerService over the
// JSON-over-TCP RPC layer, and provides the matching client.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/grpc"
)

const (
	MethodLookupGlobal    = "GazetteerService.LookupGlobal"
	MethodLookupNational  = "GazetteerService.LookupNational"
	MethodFind            = "GazetteerService.Find"
	MethodInvalidateCache = "GazetteerService.InvalidateCache"
)

type LookupRequest = lookup.Request

type InvalidateResponse struct {
	Status string `json:"status"`
}

// Lookuper is the part of lookup.Service served over RPC.
type Lookuper interface {
	LookupGlobal(ctx context.Context, term string, rows int, countryCode string) []gazetteer.Entry
	LookupNational(ctx context.Context, term string, rows int) []gazetteer.Entry
	Find(ctx context.Context, term string, rows int, countryCode string) []gazetteer.Entry
	Invalidate(ctx context.Context) error
}

// Register adds the GazetteerService methods to s.
func Register(s *grpc.Server, svc Lookuper) {
	s.Register(MethodLookupGlobal, lookupHandler(func(ctx context.Context, r LookupRequest) []gazetteer.Entry {
		return svc.LookupGlobal(ctx, r.Term, r.Rows, r.CountryCode)
	}))
	s.Register(MethodLookupNational, lookupHandler(func(ctx context.Context, r LookupRequest) []gazetteer.Entry {
		return svc.LookupNational(ctx, r.Term, r.Rows)
	}))
	s.Register(MethodFind, lookupHandler(func(ctx context.Context, r LookupRequest) []gazetteer.Entry {
		return svc.Find(ctx, r.Term, r.Rows, r.CountryCode)
	}))
	s.Register(MethodInvalidateCache, func(ctx context.Context, _ json.RawMessage) (any, error) {
		if err := svc.Invalidate(ctx); err != nil {
			return nil, err
		}
		return InvalidateResponse{Status: "invalidated"}, nil
	})
}

func lookupHandler(run func(context.Context, LookupRequest) []gazetteer.Entry) grpc.HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var req LookupRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		if strings.TrimSpace(req.Term) == "" {
			return nil, fmt.Errorf("%w: q is required", apperrors.ErrInvalidInput)
		}
		if req.Rows < 0 {
			return nil, fmt.Errorf("%w: rows must not be negative", apperrors.ErrInvalidInput)
		}
		start := time.Now()
		entries := run(ctx, req)
		return lookup.NewResponse(req.Term, req.CountryCode, entries, time.Since(start)), nil
	}
}

// Client calls a remote GazetteerService.
type Client struct {
	conn *grpc.Client
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := grpc.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) LookupGlobal(ctx context.Context, req LookupRequest) (lookup.Response, error) {
	return c.lookup(ctx, MethodLookupGlobal, req)
}

func (c *Client) LookupNational(ctx context.Context, req LookupRequest) (lookup.Response, error) {
	return c.lookup(ctx, MethodLookupNational, req)
}

func (c *Client) Find(ctx context.Context, req LookupRequest) (lookup.Response, error) {
	return c.lookup(ctx, MethodFind, req)
}

func (c *Client) lookup(ctx context.Context, method string, req LookupRequest) (lookup.Response, error) {
	var resp lookup.Response
	if err := c.conn.Call(ctx, method, req, &resp); err != nil {
		return lookup.Response{}, fmt.Errorf("%s: %w", method, err)
	}
	return resp, nil
}

func (c *Client) InvalidateCache(ctx context.Context) error {
	var resp InvalidateResponse
	if err := c.conn.Call(ctx, MethodInvalidateCache, struct{}{}, &resp); err != nil {
		return fmt.Errorf("%s: %w", MethodInvalidateCache, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
