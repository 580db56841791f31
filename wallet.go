package v4vkit

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
	log "github.com/sirupsen/logrus"
)

// Capabilities is what a wallet told us it can do when we connected.
type Capabilities struct {
	PayInvoice bool   `json:"payInvoice"`
	Keysend    bool   `json:"keysend"`
	Alias      string `json:"alias,omitempty"`
	Pubkey     string `json:"pubkey,omitempty"`
	Network    string `json:"network,omitempty"`
}

type KeysendRequest struct {
	// Destination is the hex node pubkey.
	Destination string

	AmountMsat int64

	// CustomRecords are extra TLV records delivered to the destination.
	CustomRecords map[uint64][]byte
}

type PaymentResult struct {
	Preimage string `json:"preimage"`
	FeeMsat  int64  `json:"feeMsat"`
}

// Wallet executes payments. Implementations negotiate their capabilities
// once, when they are created.
type Wallet interface {
	Capabilities() Capabilities

	PayInvoice(ctx context.Context, invoice string) (*PaymentResult, error)

	Keysend(ctx context.Context, req KeysendRequest) (*PaymentResult,
		error)
}

type LndConfig struct {
	Address        string
	Network        string
	MacaroonDir    string
	TLSPath        string
	MaxFeeSats     int64
	PaymentTimeout time.Duration
}

// LndWallet pays through an lnd node.
type LndWallet struct {
	cfg      LndConfig
	services *lndclient.GrpcLndServices
	caps     Capabilities
}

// ConnectLnd connects to lnd and records its capabilities. GetInfo is
// called exactly once here, payments never probe the node again.
func ConnectLnd(ctx context.Context, cfg LndConfig) (*LndWallet, error) {
	if cfg.MaxFeeSats == 0 {
		cfg.MaxFeeSats = 10
	}
	if cfg.PaymentTimeout == 0 {
		cfg.PaymentTimeout = time.Minute
	}

	services, err := lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:  cfg.Address,
		Network:     lndclient.Network(cfg.Network),
		MacaroonDir: cfg.MacaroonDir,
		TLSPath:     cfg.TLSPath,
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to LND: %w", err)
	}

	info, err := services.Client.GetInfo(ctx)
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("get info: %w", err)
	}

	w := &LndWallet{
		cfg:      cfg,
		services: services,
		caps: Capabilities{
			PayInvoice: true,
			Keysend:    true,
			Alias:      info.Alias,
			Pubkey:     hex.EncodeToString(info.IdentityPubkey[:]),
			Network:    cfg.Network,
		},
	}
	log.Infof("[wallet] Connected to node with alias: %s", info.Alias)

	return w, nil
}

func (w *LndWallet) Capabilities() Capabilities {
	return w.caps
}

func (w *LndWallet) Close() {
	w.services.Close()
}

func (w *LndWallet) PayInvoice(ctx context.Context,
	invoice string) (*PaymentResult, error) {

	if !w.caps.PayInvoice {
		return nil, ErrUnsupported
	}

	res := <-w.services.Client.PayInvoice(
		ctx, invoice, btcutil.Amount(w.cfg.MaxFeeSats), nil,
	)
	if res.Err != nil {
		return nil, fmt.Errorf("could not pay invoice: %w", res.Err)
	}

	return &PaymentResult{
		Preimage: res.Preimage.String(),
	}, nil
}

func (w *LndWallet) Keysend(ctx context.Context,
	req KeysendRequest) (*PaymentResult, error) {

	if !w.caps.Keysend {
		return nil, ErrUnsupported
	}

	target, err := route.NewVertexFromStr(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid keysend destination: %w", err)
	}

	statusChan, errChan, err := w.services.Router.SendPayment(
		ctx, lndclient.SendPaymentRequest{
			Target:        target,
			AmtMsat:       lnwire.MilliSatoshi(req.AmountMsat),
			MaxFee:        btcutil.Amount(w.cfg.MaxFeeSats),
			KeySend:       true,
			CustomRecords: req.CustomRecords,
			Timeout:       w.cfg.PaymentTimeout,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("keysend: %w", err)
	}

	for {
		select {
		case status := <-statusChan:
			switch status.State {
			case lnrpc.Payment_SUCCEEDED:
				return &PaymentResult{
					Preimage: status.Preimage.String(),
					FeeMsat:  int64(status.Fee),
				}, nil

			case lnrpc.Payment_FAILED:
				return nil, fmt.Errorf("keysend to %s failed",
					req.Destination)
			}

		case err := <-errChan:
			return nil, fmt.Errorf("keysend: %w", err)

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// DryRunWallet records payment requests instead of executing them.
type DryRunWallet struct {
	mu       sync.Mutex
	Invoices []string
	Keysends []KeysendRequest
}

func (w *DryRunWallet) Capabilities() Capabilities {
	return Capabilities{
		PayInvoice: true,
		Keysend:    true,
		Alias:      "dry-run",
	}
}

func (w *DryRunWallet) PayInvoice(_ context.Context,
	invoice string) (*PaymentResult, error) {

	w.mu.Lock()
	defer w.mu.Unlock()

	w.Invoices = append(w.Invoices, invoice)

	return &PaymentResult{}, nil
}

func (w *DryRunWallet) Keysend(_ context.Context,
	req KeysendRequest) (*PaymentResult, error) {

	w.mu.Lock()
	defer w.mu.Unlock()

	w.Keysends = append(w.Keysends, req)

	return &PaymentResult{}, nil
}
