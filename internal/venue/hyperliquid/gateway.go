package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"fib-retest-bot/internal/exec"
	"fib-retest-bot/internal/trade"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// RefPrice supplies the current reference price for a symbol, used to
// place the crossing limit of an IOC order.
type RefPrice func(ctx context.Context, symbol string) (float64, error)

type Config struct {
	BaseURL    string        `yaml:"base_url"`
	Mainnet    bool          `yaml:"mainnet"`
	PrivateKey string        `yaml:"private_key"`
	Timeout    time.Duration `yaml:"timeout"`
	Asset      int           `yaml:"asset"`
	SzDecimals int           `yaml:"sz_decimals"`
	Slippage   float64       `yaml:"slippage"`
}

const defaultSlippage = 0.005

// Gateway places IOC limit orders for a single symbol. The limit price
// crosses the book by the configured slippage, so a fill is immediate or
// the order dies and the caller retries.
type Gateway struct {
	client   *Client
	asset    int
	decimals int
	slippage float64
	// direction of the trade this gateway serves: closes always trade
	// against it.
	direction trade.Direction
	ref       RefPrice
	log       *zap.Logger
}

func NewGateway(cfg Config, dir trade.Direction, ref RefPrice, store NonceStore, log *zap.Logger) (*Gateway, error) {
	if ref == nil {
		return nil, errors.New("reference price source is required")
	}
	signer, err := NewSigner(cfg.PrivateKey, cfg.Mainnet)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, err := NewClient(cfg.BaseURL, timeout, signer)
	if err != nil {
		return nil, err
	}
	client.SetLogger(log)
	if err := client.InitNonceStore(context.Background(), store); err != nil {
		return nil, err
	}
	slippage := cfg.Slippage
	if slippage <= 0 {
		slippage = defaultSlippage
	}
	return &Gateway{
		client:    client,
		asset:     cfg.Asset,
		decimals:  cfg.SzDecimals,
		slippage:  slippage,
		direction: dir,
		ref:       ref,
		log:       log,
	}, nil
}

func (g *Gateway) Open(ctx context.Context, order exec.OpenOrder) (exec.OrderResult, error) {
	isBuy := order.Direction == trade.Long
	return g.place(ctx, order.Symbol, isBuy, order.Quantity, false, order.ClientOrderID)
}

// Close always trades against the open direction; the venue's reduce-only
// flag keeps a duplicated close from flipping the position.
func (g *Gateway) Close(ctx context.Context, order exec.CloseOrder) (exec.OrderResult, error) {
	isBuy := g.direction != trade.Long
	return g.place(ctx, order.Symbol, isBuy, order.Quantity, true, order.ClientOrderID)
}

func (g *Gateway) Reopen(ctx context.Context, order exec.ReopenOrder) (exec.OrderResult, error) {
	isBuy := order.Direction == trade.Long
	return g.place(ctx, order.Symbol, isBuy, order.Quantity, false, order.ClientOrderID)
}

func (g *Gateway) place(ctx context.Context, symbol string, isBuy bool, quantity float64, reduceOnly bool, cloid string) (exec.OrderResult, error) {
	ref, err := g.ref(ctx, symbol)
	if err != nil {
		return exec.OrderResult{}, fmt.Errorf("reference price: %w", err)
	}
	if ref <= 0 {
		return exec.OrderResult{}, fmt.Errorf("reference price %v is not positive", ref)
	}
	limit := crossingPrice(ref, isBuy, g.slippage)
	size := roundSize(quantity, g.decimals)
	if size <= 0 {
		return exec.OrderResult{}, fmt.Errorf("quantity %v rounds to zero at %d decimals", quantity, g.decimals)
	}
	wire, err := LimitOrderWire(g.asset, isBuy, size, limit, reduceOnly, TifIoc, wireCloid(cloid))
	if err != nil {
		return exec.OrderResult{}, err
	}
	resp, err := g.client.PlaceOrder(ctx, wire)
	if err != nil {
		return exec.OrderResult{}, err
	}
	f, err := parseFill(resp)
	if errors.Is(err, errNoFill) {
		// Executor treats a zero fill as retryable.
		return exec.OrderResult{}, nil
	}
	if err != nil {
		return exec.OrderResult{}, err
	}
	g.log.Debug("order filled",
		zap.String("oid", f.OrderID),
		zap.Bool("buy", isBuy),
		zap.Float64("size", f.Size),
		zap.Float64("avg_px", f.AvgPrice),
	)
	return exec.OrderResult{OrderID: f.OrderID, Filled: f.Size, FillPrice: f.AvgPrice}, nil
}

// crossingPrice pushes the limit through the book by the slippage
// fraction and rounds to the venue's five significant figures.
func crossingPrice(ref float64, isBuy bool, slippage float64) float64 {
	px := ref * (1 - slippage)
	if isBuy {
		px = ref * (1 + slippage)
	}
	return roundSigFigs(px, 5)
}

func roundSigFigs(x float64, figs int) float64 {
	if x == 0 {
		return 0
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(x, 'g', figs, 64), 64)
	if err != nil {
		return x
	}
	return rounded
}

func roundSize(size float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Floor(size*scale) / scale
}

// wireCloid derives the 16-byte hex client order id the venue expects
// from an arbitrary idempotency key.
func wireCloid(cloid string) string {
	if cloid == "" {
		return ""
	}
	hash := crypto.Keccak256([]byte(cloid))
	return hexutil.Encode(hash[:16])
}
