package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dopepandaorg/dp-marketplace-contracts/core"
	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeGroupRejected  = -32010
	codeNotFound       = -32011
)

// Server exposes the group processor and the committed state over JSON-RPC.
// Submissions go through Processor.ApplyGroup, so a rejected group returns an
// error and changes nothing.
type Server struct {
	processor *core.Processor
	logger    *slog.Logger
}

// NewServer wraps the processor. A nil logger falls back to slog's default.
func NewServer(processor *core.Processor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{processor: processor, logger: logger}
}

// Handler returns the HTTP handler serving the RPC endpoint at /.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

// Start serves the RPC endpoint on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	_ = json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Result:  result,
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, nil, codeInvalidRequest, "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "failed to read request body")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON")
		return
	}

	switch req.Method {
	case "market_submitGroup":
		s.handleSubmitGroup(w, &req)
	case "market_getAccount":
		s.handleGetAccount(w, &req)
	case "market_getListing":
		s.handleGetListing(w, &req)
	case "market_getAuction":
		s.handleGetAuction(w, &req)
	default:
		writeError(w, req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleSubmitGroup(w http.ResponseWriter, req *rpcRequest) {
	if len(req.Params) != 1 {
		writeError(w, req.ID, codeInvalidParams, "expected one params entry: the transaction group")
		return
	}
	var params []TransactionParam
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, req.ID, codeInvalidParams, "invalid transaction group: "+err.Error())
		return
	}
	txns := make([]*types.Transaction, 0, len(params))
	for i := range params {
		tx, err := params[i].Decode()
		if err != nil {
			writeError(w, req.ID, codeInvalidParams, err.Error())
			return
		}
		txns = append(txns, tx)
	}
	receipt, err := s.processor.ApplyGroup(txns)
	if err != nil {
		if errors.Is(err, core.ErrGroupRejected) {
			s.logger.Info("group rejected", slog.String("reason", err.Error()))
			writeError(w, req.ID, codeGroupRejected, err.Error())
			return
		}
		writeError(w, req.ID, codeServerError, err.Error())
		return
	}
	s.logger.Info("group accepted", slog.Int("size", len(txns)))
	writeResult(w, req.ID, &SubmitResult{CreatedApps: receipt.CreatedApps})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, req *rpcRequest) {
	var addrStr string
	if err := singleParam(req, &addrStr); err != nil {
		writeError(w, req.ID, codeInvalidParams, err.Error())
		return
	}
	addr, err := crypto.DecodeAddress(addrStr)
	if err != nil {
		writeError(w, req.ID, codeInvalidParams, err.Error())
		return
	}
	acct, err := s.processor.State().GetAccount(addr)
	if err != nil {
		writeError(w, req.ID, codeServerError, err.Error())
		return
	}
	writeResult(w, req.ID, formatAccount(addr, acct))
}

func (s *Server) handleGetListing(w http.ResponseWriter, req *rpcRequest) {
	var appID uint64
	if err := singleParam(req, &appID); err != nil {
		writeError(w, req.ID, codeInvalidParams, err.Error())
		return
	}
	listing, ok := s.processor.State().ListingGet(appID)
	if !ok {
		writeError(w, req.ID, codeNotFound, "listing not found")
		return
	}
	writeResult(w, req.ID, formatListing(listing))
}

func (s *Server) handleGetAuction(w http.ResponseWriter, req *rpcRequest) {
	var appID uint64
	if err := singleParam(req, &appID); err != nil {
		writeError(w, req.ID, codeInvalidParams, err.Error())
		return
	}
	auction, ok := s.processor.State().AuctionGet(appID)
	if !ok {
		writeError(w, req.ID, codeNotFound, "auction not found")
		return
	}
	writeResult(w, req.ID, formatAuction(auction))
}

func singleParam(req *rpcRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("rpc: expected exactly one parameter")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return errors.New("rpc: invalid parameter: " + err.Error())
	}
	return nil
}
