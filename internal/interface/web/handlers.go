package web

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/application"
	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/interface/web/types"
	"github.com/gin-gonic/gin"
)

// principalHeader carries the caller identity, authenticated upstream.
const principalHeader = "X-Principal"

type handler struct {
	svc EscrowService
}

func (h *handler) health(c *gin.Context) {
	info := h.svc.BuildInfo()
	resp := types.HealthResponse{
		Status:  "ok",
		Version: info.Version,
		Commit:  info.Commit,
	}
	if next := h.svc.WhenNextSweep(); !next.IsZero() {
		resp.NextSweep = next.Unix()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) createOrder(c *gin.Context) {
	var body types.CreateOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: %s", err)
		return
	}
	fromAsset, err := parseAsset(body.FromAsset)
	if err != nil {
		badRequest(c, "invalid from asset: %s", err)
		return
	}
	toAsset, err := parseAsset(body.ToAsset)
	if err != nil {
		badRequest(c, "invalid to asset: %s", err)
		return
	}
	fromAmount, err := parseAmount(body.FromAmount)
	if err != nil {
		badRequest(c, "invalid from amount: %s", err)
		return
	}
	toAmount, err := parseAmount(body.ToAmount)
	if err != nil {
		badRequest(c, "invalid to amount: %s", err)
		return
	}
	if body.TimeoutSeconds <= 0 {
		badRequest(c, "timeout must be greater than zero")
		return
	}
	if body.TimeoutSeconds > math.MaxInt64/int64(time.Second) {
		badRequest(c, "timeout %d is too large", body.TimeoutSeconds)
		return
	}

	id, custody, err := h.svc.CreateOrder(c.Request.Context(), principal(c), application.CreateOrderRequest{
		FromAsset:          fromAsset,
		ToAsset:            toAsset,
		FromAmount:         fromAmount,
		ToAmount:           toAmount,
		SecretHash:         body.SecretHash,
		Timeout:            time.Duration(body.TimeoutSeconds) * time.Second,
		CreatorFromAddress: body.CreatorFromAddress,
		CreatorToAddress:   body.CreatorToAddress,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, types.CreateOrderResponse{
		Id:      id,
		Custody: toCustodyAddresses(custody),
	})
}

func (h *handler) getOrder(c *gin.Context) {
	id, ok := orderId(c)
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(*order))
}

func (h *handler) listOrders(c *gin.Context) {
	address := c.Query("address")
	principalFilter := c.Query("principal")

	var (
		orders []domain.Order
		err    error
	)
	switch {
	case address != "" && principalFilter != "":
		badRequest(c, "filter by either address or principal")
		return
	case address != "":
		orders, err = h.svc.ListOrdersByParticipantAddress(c.Request.Context(), address)
	case principalFilter != "":
		orders, err = h.svc.ListOrdersByPrincipal(c.Request.Context(), principalFilter)
	default:
		badRequest(c, "missing address or principal filter")
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrdersResponse(orders))
}

func (h *handler) listPendingOrders(c *gin.Context) {
	orders, err := h.svc.ListPendingOrders(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrdersResponse(orders))
}

func (h *handler) listExpiredOrders(c *gin.Context) {
	orders, err := h.svc.ListExpiredOrders(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrdersResponse(orders))
}

func (h *handler) confirmDeposit(c *gin.Context) {
	id, ok := orderId(c)
	if !ok {
		return
	}
	var body types.DepositRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: %s", err)
		return
	}
	if err := h.svc.ConfirmDeposit(c.Request.Context(), id, body.Txid); err != nil {
		abortWithError(c, err)
		return
	}
	h.respondWithOrder(c, id)
}

func (h *handler) acceptOrder(c *gin.Context) {
	id, ok := orderId(c)
	if !ok {
		return
	}
	var body types.AcceptOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: %s", err)
		return
	}
	custody, err := h.svc.AcceptOrder(c.Request.Context(), principal(c), id, application.AcceptOrderRequest{
		ResolverFromAddress: body.ResolverFromAddress,
		ResolverToAddress:   body.ResolverToAddress,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustodyAddresses(custody))
}

func (h *handler) confirmResolverDeposit(c *gin.Context) {
	id, ok := orderId(c)
	if !ok {
		return
	}
	var body types.DepositRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: %s", err)
		return
	}
	if err := h.svc.ConfirmResolverDeposit(c.Request.Context(), principal(c), id, body.Txid); err != nil {
		abortWithError(c, err)
		return
	}
	h.respondWithOrder(c, id)
}

func (h *handler) revealSecret(c *gin.Context) {
	id, ok := orderId(c)
	if !ok {
		return
	}
	var body types.RevealSecretRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: %s", err)
		return
	}
	if err := h.svc.RevealSecret(c.Request.Context(), principal(c), id, body.Secret); err != nil {
		abortWithError(c, err)
		return
	}
	h.respondWithOrder(c, id)
}

func (h *handler) cancelOrder(c *gin.Context) {
	id, ok := orderId(c)
	if !ok {
		return
	}
	if err := h.svc.CancelOrder(c.Request.Context(), principal(c), id); err != nil {
		abortWithError(c, err)
		return
	}
	h.respondWithOrder(c, id)
}

func (h *handler) reconcileSettlement(c *gin.Context) {
	id, ok := orderId(c)
	if !ok {
		return
	}
	order, err := h.svc.ReconcileSettlement(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(*order))
}

func (h *handler) sweepExpired(c *gin.Context) {
	count, err := h.svc.SweepExpired(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.SweepResponse{Expired: count})
}

func (h *handler) getCustody(c *gin.Context) {
	addrs, err := h.svc.GetCustodyAddresses(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	balances, err := h.svc.GetCustodyBalances(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := types.CustodyResponse{
		Addresses: toCustodyAddresses(addrs),
		Balances:  make([]types.CustodyBalance, 0, len(balances)),
	}
	for _, b := range balances {
		resp.Balances = append(resp.Balances, types.CustodyBalance{
			Asset:   assetView(b.Asset),
			Address: b.Address,
			Balance: strconv.FormatUint(b.Balance, 10),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) respondWithOrder(c *gin.Context, id uint64) {
	order, err := h.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(*order))
}

func principal(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(principalHeader))
}

func orderId(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid order id %q", c.Param("id"))
		return 0, false
	}
	return id, true
}

func parseAmount(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
}

func parseAsset(a types.Asset) (domain.Asset, error) {
	chain, err := domain.ParseChainKind(strings.ToLower(a.Chain))
	if err != nil {
		return domain.Asset{}, err
	}
	if a.Mint == "" {
		return domain.NativeAsset(chain), nil
	}
	return domain.FungibleToken(chain, a.Mint, a.Decimals), nil
}

func assetView(a domain.Asset) types.Asset {
	return types.Asset{Chain: a.Chain.String(), Mint: a.Mint, Decimals: a.Decimals}
}

func toCustodyAddresses(a application.CustodyAddresses) types.CustodyAddresses {
	return types.CustodyAddresses{Bitcoin: a.Bitcoin, Solana: a.Solana}
}

func toOrder(o domain.Order) types.Order {
	transfers := make([]types.Transfer, 0, len(o.Transfers))
	for _, t := range o.Transfers {
		transfers = append(transfers, types.Transfer{
			Leg:         t.Leg.String(),
			Asset:       assetView(t.Asset),
			Destination: t.Destination,
			Amount:      strconv.FormatUint(t.Amount, 10),
			Txid:        t.Txid,
			Status:      t.Status.String(),
			Error:       t.Error,
			CreatedAt:   t.CreatedAt.Unix(),
			UpdatedAt:   t.UpdatedAt.Unix(),
		})
	}

	return types.Order{
		Id:                  o.Id,
		Status:              o.Status.String(),
		CreatorPrincipal:    o.CreatorPrincipal,
		CreatorFromAddress:  o.CreatorFromAddress,
		CreatorToAddress:    o.CreatorToAddress,
		ResolverPrincipal:   o.ResolverPrincipal,
		ResolverFromAddress: o.ResolverFromAddress,
		ResolverToAddress:   o.ResolverToAddress,
		FromAsset:           assetView(o.FromAsset),
		ToAsset:             assetView(o.ToAsset),
		FromAmount:          strconv.FormatUint(o.FromAmount, 10),
		ToAmount:            strconv.FormatUint(o.ToAmount, 10),
		SecretHash:          o.SecretHash.String(),
		Secret:              o.Secret,
		CreatedAt:           o.CreatedAt.Unix(),
		TimeoutAt:           o.TimeoutAt.Unix(),
		CreatorDepositTxid:  o.CreatorDepositTxid,
		ResolverDepositTxid: o.ResolverDepositTxid,
		CustodyFromAddress:  o.CustodyFromAddress,
		CustodyToAddress:    o.CustodyToAddress,
		Transfers:           transfers,
		SettlementError:     o.SettlementError,
	}
}

func toOrdersResponse(orders []domain.Order) types.OrdersResponse {
	resp := types.OrdersResponse{Orders: make([]types.Order, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toOrder(o))
	}
	return resp
}
