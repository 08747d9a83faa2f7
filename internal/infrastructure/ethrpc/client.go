package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"bcexplorer/internal/domain"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CallObserver is notified after every provider call.
type CallObserver interface {
	OnRPCCall(method string, duration time.Duration, err error)
}

type Client struct {
	url        string
	httpClient *http.Client
	idCounter  uint64
	observer   CallObserver
}

type Config struct {
	URL      string
	Timeout  time.Duration
	Observer CallObserver
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rpc url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		observer:   cfg.Observer,
	}, nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(result)
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_chainId", []any{}, &result); err != nil {
		return 0, err
	}
	return hexutil.DecodeUint64(result)
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64, fullTx bool) (domain.Block, error) {
	return c.block(ctx, hexutil.EncodeUint64(number), fullTx)
}

func (c *Client) block(ctx context.Context, tag string, fullTx bool) (domain.Block, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "eth_getBlockByNumber", []any{tag, fullTx}, &raw); err != nil {
		return domain.Block{}, err
	}
	rec, err := domain.DecodeRecord(raw)
	if err != nil {
		return domain.Block{}, fmt.Errorf("decode block %s: %w", tag, err)
	}
	return domain.NewBlock(rec)
}

func (c *Client) TransactionByHash(ctx context.Context, hash string) (domain.Transaction, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "eth_getTransactionByHash", []any{hash}, &raw); err != nil {
		return domain.Transaction{}, err
	}
	rec, err := domain.DecodeRecord(raw)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("decode transaction %s: %w", hash, err)
	}
	return domain.NewTransaction(rec)
}

func (c *Client) Balance(ctx context.Context, address string) (*big.Int, error) {
	var result string
	if err := c.call(ctx, "eth_getBalance", []any{strings.ToLower(address), "latest"}, &result); err != nil {
		return nil, err
	}
	return hexutil.DecodeBig(result)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StatusError reports a non-2xx HTTP answer from the provider.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rpc status %d", e.StatusCode)
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) (err error) {
	ctx, span := otel.Tracer("bcexplorer/ethrpc").Start(ctx, "rpc."+method, trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	defer func() {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.observer != nil {
			c.observer.OnRPCCall(method, time.Since(start), err)
		}
	}()

	id := atomic.AddUint64(&c.idCounter, 1)
	span.SetAttributes(
		attribute.String("rpc.method", method),
		attribute.Int64("rpc.id", int64(id)),
	)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return domain.ErrNotFound
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(decoded.Result, result)
}
