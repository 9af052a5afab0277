package types

type Asset struct {
	Chain    string `json:"chain"`
	Mint     string `json:"mint,omitempty"`
	Decimals uint8  `json:"decimals,omitempty"`
}

type CreateOrderRequest struct {
	FromAsset          Asset  `json:"fromAsset"`
	ToAsset            Asset  `json:"toAsset"`
	FromAmount         string `json:"fromAmount"`
	ToAmount           string `json:"toAmount"`
	SecretHash         string `json:"secretHash"`
	TimeoutSeconds     int64  `json:"timeoutSeconds"`
	CreatorFromAddress string `json:"creatorFromAddress"`
	CreatorToAddress   string `json:"creatorToAddress"`
}

type CreateOrderResponse struct {
	Id      uint64           `json:"id"`
	Custody CustodyAddresses `json:"custody"`
}

type AcceptOrderRequest struct {
	ResolverFromAddress string `json:"resolverFromAddress"`
	ResolverToAddress   string `json:"resolverToAddress"`
}

type DepositRequest struct {
	Txid string `json:"txid"`
}

type RevealSecretRequest struct {
	Secret string `json:"secret"`
}

type CustodyAddresses struct {
	Bitcoin string `json:"bitcoin"`
	Solana  string `json:"solana"`
}

type CustodyBalance struct {
	Asset   Asset  `json:"asset"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type CustodyResponse struct {
	Addresses CustodyAddresses `json:"addresses"`
	Balances  []CustodyBalance `json:"balances"`
}

type Transfer struct {
	Leg         string `json:"leg"`
	Asset       Asset  `json:"asset"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Txid        string `json:"txid,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

type Order struct {
	Id                  uint64     `json:"id"`
	Status              string     `json:"status"`
	CreatorPrincipal    string     `json:"creatorPrincipal"`
	CreatorFromAddress  string     `json:"creatorFromAddress"`
	CreatorToAddress    string     `json:"creatorToAddress"`
	ResolverPrincipal   string     `json:"resolverPrincipal,omitempty"`
	ResolverFromAddress string     `json:"resolverFromAddress,omitempty"`
	ResolverToAddress   string     `json:"resolverToAddress,omitempty"`
	FromAsset           Asset      `json:"fromAsset"`
	ToAsset             Asset      `json:"toAsset"`
	FromAmount          string     `json:"fromAmount"`
	ToAmount            string     `json:"toAmount"`
	SecretHash          string     `json:"secretHash"`
	Secret              string     `json:"secret,omitempty"`
	CreatedAt           int64      `json:"createdAt"`
	TimeoutAt           int64      `json:"timeoutAt"`
	CreatorDepositTxid  string     `json:"creatorDepositTxid,omitempty"`
	ResolverDepositTxid string     `json:"resolverDepositTxid,omitempty"`
	CustodyFromAddress  string     `json:"custodyFromAddress"`
	CustodyToAddress    string     `json:"custodyToAddress"`
	Transfers           []Transfer `json:"transfers"`
	SettlementError     string     `json:"settlementError,omitempty"`
}

type OrdersResponse struct {
	Orders []Order `json:"orders"`
}

type SweepResponse struct {
	Expired int `json:"expired"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	NextSweep int64  `json:"nextSweep,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
