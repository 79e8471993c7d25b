package api

import (
	"errors"
	"net/http"
	"time"

	"token-ledger/internal/models"
	"token-ledger/internal/service"
	"token-ledger/internal/settlement"
	"token-ledger/pkg"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token *string `json:"token,omitempty"`
}

type ErrorResponse struct {
	Errors *string `json:"errors,omitempty"`
}

type CoinPayload struct {
	Denom  string          `json:"denom"`
	Amount decimal.Decimal `json:"amount"`
}

type BalancePayload struct {
	Address string        `json:"address"`
	Coins   []CoinPayload `json:"coins"`
}

type MultiSendRequest struct {
	Inputs  []BalancePayload `json:"inputs"`
	Outputs []BalancePayload `json:"outputs"`
}

type MultiSendResponse struct {
	Changes []BalancePayload `json:"changes"`
}

type DenomPayload struct {
	Denom          string          `json:"denom"`
	Issuer         string          `json:"issuer"`
	BurnRate       decimal.Decimal `json:"burnRate"`
	CommissionRate decimal.Decimal `json:"commissionRate"`
}

type TransferLegPayload struct {
	TransferID int             `json:"transferId"`
	Denom      string          `json:"denom"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Handlers struct {
	AuthService   service.AuthService
	LedgerService service.LedgerService
	Logger        pkg.Logger
	JWTSecret     string
}

func RegisterHandlers(e *echo.Echo, h *Handlers) {
	e.POST("/api/auth", h.PostApiAuth)
	e.POST("/api/multiSend", h.PostApiMultiSend)
	e.GET("/api/balance/:address", h.GetApiBalance)
	e.GET("/api/transfers/:address", h.GetApiTransfers)
	e.GET("/api/denoms", h.GetApiDenoms)
}

func (h *Handlers) PostApiAuth(ctx echo.Context) error {
	var req AuthRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Invalid request body")})
	}

	token, err := h.AuthService.Authenticate(req.Username, req.Password)
	if err != nil {
		h.Logger.Warn("invalid credentials", zap.String("username", req.Username), zap.Error(err))
		return ctx.JSON(http.StatusUnauthorized, ErrorResponse{Errors: ptr("Invalid credentials")})
	}
	return ctx.JSON(http.StatusOK, AuthResponse{Token: &token})
}

func (h *Handlers) PostApiMultiSend(ctx echo.Context) error {
	var req MultiSendRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Invalid request body")})
	}
	if len(req.Inputs) == 0 || len(req.Outputs) == 0 {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Inputs and outputs must not be empty")})
	}
	multiSend, err := convertToMultiSend(req)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr(err.Error())})
	}

	changes, err := h.LedgerService.SubmitMultiSend(multiSend)
	if err != nil {
		if errors.Is(err, settlement.ErrUnbalancedTransaction) || errors.Is(err, settlement.ErrInsufficientBalance) {
			msg := err.Error()
			return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: &msg})
		}
		h.Logger.Error("failed to settle multi-send", zap.Error(err))
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Errors: ptr("Internal server error")})
	}

	return ctx.JSON(http.StatusOK, MultiSendResponse{Changes: convertToBalancePayloads(changes)})
}

func (h *Handlers) GetApiBalance(ctx echo.Context) error {
	address := ctx.Param("address")
	if address == "" {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Address is required")})
	}

	balance, err := h.LedgerService.GetBalance(address)
	if err != nil {
		h.Logger.Error("failed to get balance", zap.String("address", address), zap.Error(err))
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Errors: ptr("Internal server error")})
	}

	payloads := convertToBalancePayloads([]settlement.Balance{balance})
	return ctx.JSON(http.StatusOK, payloads[0])
}

func (h *Handlers) GetApiTransfers(ctx echo.Context) error {
	address := ctx.Param("address")
	if address == "" {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Errors: ptr("Address is required")})
	}

	legs, err := h.LedgerService.GetTransferHistory(address)
	if err != nil {
		h.Logger.Error("failed to get transfer history", zap.String("address", address), zap.Error(err))
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Errors: ptr("Internal server error")})
	}

	payloads := make([]TransferLegPayload, 0, len(legs))
	for _, leg := range legs {
		payloads = append(payloads, convertToTransferLegPayload(leg))
	}
	return ctx.JSON(http.StatusOK, payloads)
}

func (h *Handlers) GetApiDenoms(ctx echo.Context) error {
	defs, err := h.LedgerService.ListDenoms()
	if err != nil {
		h.Logger.Error("failed to list denoms", zap.Error(err))
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Errors: ptr("Internal server error")})
	}

	payloads := make([]DenomPayload, 0, len(defs))
	for _, def := range defs {
		payloads = append(payloads, DenomPayload{
			Denom:          def.Denom,
			Issuer:         def.Issuer,
			BurnRate:       def.BurnRate,
			CommissionRate: def.CommissionRate,
		})
	}
	return ctx.JSON(http.StatusOK, payloads)
}

func convertToMultiSend(req MultiSendRequest) (settlement.MultiSend, error) {
	inputs, err := convertToBalances(req.Inputs)
	if err != nil {
		return settlement.MultiSend{}, err
	}
	outputs, err := convertToBalances(req.Outputs)
	if err != nil {
		return settlement.MultiSend{}, err
	}
	return settlement.MultiSend{Inputs: inputs, Outputs: outputs}, nil
}

func convertToBalances(payloads []BalancePayload) ([]settlement.Balance, error) {
	balances := make([]settlement.Balance, 0, len(payloads))
	for _, payload := range payloads {
		if payload.Address == "" {
			return nil, errors.New("Address must not be empty")
		}
		if len(payload.Coins) == 0 {
			return nil, errors.New("Coins must not be empty")
		}
		coins := make([]settlement.Coin, 0, len(payload.Coins))
		for _, c := range payload.Coins {
			if c.Denom == "" {
				return nil, errors.New("Denom must not be empty")
			}
			if c.Amount.Sign() <= 0 {
				return nil, errors.New("Amounts must be > 0")
			}
			coins = append(coins, settlement.Coin{Denom: c.Denom, Amount: c.Amount})
		}
		balances = append(balances, settlement.Balance{Address: payload.Address, Coins: coins})
	}
	return balances, nil
}

func convertToBalancePayloads(balances []settlement.Balance) []BalancePayload {
	payloads := make([]BalancePayload, 0, len(balances))
	for _, balance := range balances {
		coins := make([]CoinPayload, 0, len(balance.Coins))
		for _, c := range balance.Coins {
			coins = append(coins, CoinPayload{Denom: c.Denom, Amount: c.Amount})
		}
		payloads = append(payloads, BalancePayload{Address: balance.Address, Coins: coins})
	}
	return payloads
}

func convertToTransferLegPayload(leg models.TransferLeg) TransferLegPayload {
	return TransferLegPayload{
		TransferID: leg.TransferID,
		Denom:      leg.Denom,
		Amount:     leg.Amount,
		CreatedAt:  leg.CreatedAt,
	}
}

func ptr(s string) *string {
	return &s
}
