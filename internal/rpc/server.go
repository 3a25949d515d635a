package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"poolEngine/internal/amm"
	"poolEngine/internal/host"
)

// JSON-RPC 2.0 error codes; engine and collaborator failures surface as
// codeOperation with the failure reason in the message.
const (
	codeParse         = -32700
	codeMethodMissing = -32601
	codeInvalidParams = -32602
	codeInternal      = -32603
	codeOperation     = -32000
)

// Server exposes the runtime over JSON-RPC 2.0, plus the websocket event
// stream and the Prometheus endpoint.
type Server struct {
	rt      *host.Runtime
	hub     *Hub
	metrics *Metrics
	logger  *zap.Logger
}

func NewServer(rt *host.Runtime, hub *Hub, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{rt: rt, hub: hub, metrics: metrics, logger: logger}
}

// Handler routes the JSON-RPC endpoint, the websocket stream, and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveRPC)
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParse, Message: "parse error"},
		})
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(r, req.Method, req.Params)
	outcome := "ok"
	if rpcErr != nil {
		outcome = "error"
		s.logger.Debug("rpc failure",
			zap.String("method", req.Method),
			zap.Int("code", rpcErr.Code),
			zap.String("message", rpcErr.Message))
	}
	s.metrics.observe(req.Method, outcome, time.Since(start))

	s.writeResponse(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr})
}

func (s *Server) writeResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *Server) dispatch(r *http.Request, method string, params json.RawMessage) (interface{}, *rpcError) {
	ctx := r.Context()

	switch method {
	case "server_info":
		return infoResult(s.rt.Info()), nil

	case "get_reserves":
		reserveA, reserveB := s.rt.Reserves()
		return map[string]string{
			"reserve_a": reserveA.String(),
			"reserve_b": reserveB.String(),
		}, nil

	case "last_trade_marker":
		var p struct {
			Caller string `json:"caller"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		caller, err := parseAddress(p.Caller)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"height": s.rt.LastTradeMarker(caller)}, nil

	case "balance_of":
		var p struct {
			Asset  string `json:"asset"`
			Holder string `json:"holder"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		asset, err := parseAddress(p.Asset)
		if err != nil {
			return nil, err
		}
		holder, err := parseAddress(p.Holder)
		if err != nil {
			return nil, err
		}
		balance, opErr := s.rt.BalanceOf(asset, holder)
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]string{"balance": balance.String()}, nil

	case "total_supply":
		var p struct {
			Asset string `json:"asset"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		asset, err := parseAddress(p.Asset)
		if err != nil {
			return nil, err
		}
		supply, opErr := s.rt.TotalSupply(asset)
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]string{"total_supply": supply.String()}, nil

	case "quote", "get_amount_out":
		var p struct {
			AmountIn  string `json:"amount_in"`
			Direction string `json:"direction"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		amountIn, err := parseAmount(p.AmountIn)
		if err != nil {
			return nil, err
		}
		dir, dirErr := amm.ParseDirection(p.Direction)
		if dirErr != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: dirErr.Error()}
		}
		var out *big.Int
		var opErr error
		if method == "quote" {
			out, opErr = s.rt.Quote(amountIn, dir)
		} else {
			out, opErr = s.rt.AmountOut(amountIn, dir)
		}
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]string{"amount_out": out.String()}, nil

	case "add_liquidity":
		var p struct {
			Caller   string `json:"caller"`
			DesiredA string `json:"desired_a"`
			DesiredB string `json:"desired_b"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		caller, err := parseAddress(p.Caller)
		if err != nil {
			return nil, err
		}
		desiredA, err := parseAmount(p.DesiredA)
		if err != nil {
			return nil, err
		}
		desiredB, err := parseAmount(p.DesiredB)
		if err != nil {
			return nil, err
		}
		result, opErr := s.rt.AddLiquidity(ctx, caller, desiredA, desiredB)
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]string{
			"amount_a":  result.AmountA.String(),
			"amount_b":  result.AmountB.String(),
			"shares":    result.Minted.String(),
			"reserve_a": result.ReserveA.String(),
			"reserve_b": result.ReserveB.String(),
		}, nil

	case "remove_liquidity":
		var p struct {
			Caller string `json:"caller"`
			Shares string `json:"shares"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		caller, err := parseAddress(p.Caller)
		if err != nil {
			return nil, err
		}
		shares, err := parseAmount(p.Shares)
		if err != nil {
			return nil, err
		}
		result, opErr := s.rt.RemoveLiquidity(ctx, caller, shares)
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]string{
			"amount_a":  result.AmountA.String(),
			"amount_b":  result.AmountB.String(),
			"reserve_a": result.ReserveA.String(),
			"reserve_b": result.ReserveB.String(),
		}, nil

	case "swap":
		var p struct {
			Caller    string `json:"caller"`
			AmountIn  string `json:"amount_in"`
			Direction string `json:"direction"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		caller, err := parseAddress(p.Caller)
		if err != nil {
			return nil, err
		}
		amountIn, err := parseAmount(p.AmountIn)
		if err != nil {
			return nil, err
		}
		dir, dirErr := amm.ParseDirection(p.Direction)
		if dirErr != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: dirErr.Error()}
		}
		result, opErr := s.rt.Swap(ctx, caller, amountIn, dir)
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]string{
			"amount_out": result.AmountOut.String(),
			"reserve_a":  result.ReserveA.String(),
			"reserve_b":  result.ReserveB.String(),
		}, nil

	case "channel_open":
		var p struct {
			Sender      string `json:"sender"`
			Recipient   string `json:"recipient"`
			Asset       string `json:"asset"`
			Amount      string `json:"amount"`
			SettleDelay uint64 `json:"settle_delay"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		sender, err := parseAddress(p.Sender)
		if err != nil {
			return nil, err
		}
		recipient, err := parseAddress(p.Recipient)
		if err != nil {
			return nil, err
		}
		asset, err := parseAddress(p.Asset)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		id, opErr := s.rt.OpenChannel(ctx, sender, recipient, asset, amount, p.SettleDelay)
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]string{"id": id.Hex()}, nil

	case "channel_claim":
		var p struct {
			Recipient string `json:"recipient"`
			ID        string `json:"id"`
			Total     string `json:"total"`
			Signature string `json:"signature"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		recipient, err := parseAddress(p.Recipient)
		if err != nil {
			return nil, err
		}
		total, err := parseAmount(p.Total)
		if err != nil {
			return nil, err
		}
		sig, sigErr := hexutil.Decode(p.Signature)
		if sigErr != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("signature: %v", sigErr)}
		}
		paid, opErr := s.rt.ClaimChannel(ctx, recipient, common.HexToHash(p.ID), total, sig)
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]string{"paid": paid.String()}, nil

	case "channel_close":
		var p struct {
			Sender string `json:"sender"`
			ID     string `json:"id"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		sender, err := parseAddress(p.Sender)
		if err != nil {
			return nil, err
		}
		expiresAt, opErr := s.rt.CloseChannel(ctx, sender, common.HexToHash(p.ID))
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]uint64{"expires_at": expiresAt}, nil

	case "channel_refund":
		var p struct {
			Sender string `json:"sender"`
			ID     string `json:"id"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		sender, err := parseAddress(p.Sender)
		if err != nil {
			return nil, err
		}
		amount, opErr := s.rt.RefundChannel(ctx, sender, common.HexToHash(p.ID))
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]string{"amount": amount.String()}, nil

	case "advance":
		var p struct {
			Blocks uint64 `json:"blocks"`
		}
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		if p.Blocks == 0 {
			p.Blocks = 1
		}
		height, opErr := s.rt.Advance(ctx, p.Blocks)
		if opErr != nil {
			return nil, operationError(opErr)
		}
		return map[string]uint64{"height": height}, nil

	default:
		return nil, &rpcError{Code: codeMethodMissing, Message: fmt.Sprintf("method not found: %s", method)}
	}
}

func infoResult(info host.Info) map[string]interface{} {
	result := map[string]interface{}{
		"height":         info.Height,
		"journal_seq":    info.JournalSeq,
		"pool_address":   info.PoolAddress.Hex(),
		"shares_address": info.SharesAddress.Hex(),
		"asset_a": map[string]interface{}{
			"address":  info.AssetA.Address.Hex(),
			"symbol":   info.AssetA.Symbol,
			"decimals": info.AssetA.Decimals,
		},
		"asset_b": map[string]interface{}{
			"address":  info.AssetB.Address.Hex(),
			"symbol":   info.AssetB.Symbol,
			"decimals": info.AssetB.Decimals,
		},
		"reserve_a":     info.ReserveA.String(),
		"reserve_b":     info.ReserveB.String(),
		"open_channels": info.OpenChannels,
	}
	if info.LastInvariant != nil {
		result["last_invariant"] = info.LastInvariant.String()
	}
	return result
}

func unmarshalParams(params json.RawMessage, dst interface{}) *rpcError {
	if len(params) == 0 {
		return &rpcError{Code: codeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func parseAddress(s string) (common.Address, *rpcError) {
	if !common.IsHexAddress(s) {
		return common.Address{}, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid address: %q", s)}
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, *rpcError) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid amount: %q", s)}
	}
	return v, nil
}

func operationError(err error) *rpcError {
	return &rpcError{Code: codeOperation, Message: err.Error()}
}
