package v4vkit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

// BoostagramRecord is the TLV type podcast apps read boost metadata from.
const BoostagramRecord = 7629169

// maxPaySats is the largest total whose msat value fits an int64.
const maxPaySats = math.MaxInt64 / 1000

// ErrAmountTooLarge is returned for totals that do not fit in msat.
var ErrAmountTooLarge = errors.New("amount too large")

// BoostMeta describes the payment to the receiving apps.
type BoostMeta struct {
	Podcast     string
	FeedURL     string
	Episode     string
	EpisodeGUID string
	Action      string
	AppName     string
	SenderName  string
	Message     string
}

type PaymentOutcome struct {
	Recipient  ValueRecipient `json:"recipient"`
	AmountMsat int64          `json:"amountMsat"`
	Skipped    bool           `json:"skipped,omitempty"`
	Result     *PaymentResult `json:"result,omitempty"`
	Err        error          `json:"-"`
}

// Payer streams a boost to the recipients of a value block.
type Payer struct {
	wallet Wallet
	lnurl  *LNURLPayClient
	notls  bool
}

func NewPayer(wallet Wallet, lnurlClient *LNURLPayClient, notls bool) *Payer {
	return &Payer{
		wallet: wallet,
		lnurl:  lnurlClient,
		notls:  notls,
	}
}

// PayBlock splits totalSats across the block recipients and pays each
// share. A failed recipient does not stop the others, every outcome is
// returned in recipient order.
func (p *Payer) PayBlock(ctx context.Context, block ValueBlock,
	totalSats int64, meta BoostMeta) []PaymentOutcome {

	recipients := Recipients(block)
	if totalSats > maxPaySats {
		outcomes := make([]PaymentOutcome, 0, len(recipients))
		for _, r := range recipients {
			outcomes = append(outcomes, PaymentOutcome{
				Recipient: r,
				Err: fmt.Errorf("%w: %d sats", ErrAmountTooLarge,
					totalSats),
			})
		}
		return outcomes
	}

	totalMsat := totalSats * 1000
	amounts := SplitAmounts(totalMsat, recipients)

	outcomes := make([]PaymentOutcome, 0, len(recipients))
	for i, r := range recipients {
		outcome := PaymentOutcome{
			Recipient:  r,
			AmountMsat: amounts[i],
		}

		// Invoices and keysends can not carry less than a sat.
		if amounts[i] < 1000 {
			outcome.Skipped = true
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.Result, outcome.Err = p.pay(ctx, r, amounts[i],
			totalMsat, meta)
		if outcome.Err != nil {
			log.Warnf("[payer] %s (%s): %v", r.Name, r.Address,
				outcome.Err)
		} else {
			log.Infof("[payer] sent %d msat to %s", amounts[i], r.Name)
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

func (p *Payer) pay(ctx context.Context, r ValueRecipient, msat,
	totalMsat int64, meta BoostMeta) (*PaymentResult, error) {

	caps := p.wallet.Capabilities()

	switch r.Type {
	case RecipientLightning:
		if !caps.PayInvoice {
			return nil, ErrUnsupported
		}

		comment := meta.Message
		if comment == "" {
			comment = fmt.Sprintf("Value4Value payment to %s", r.Name)
		}

		invoice, err := p.lnurl.InvoiceFor(ctx, r.Address, msat,
			comment, p.notls)
		if err != nil {
			return nil, fmt.Errorf("lightning address payment "+
				"failed: %w", err)
		}

		return p.wallet.PayInvoice(ctx, invoice)

	case RecipientNode:
		if !caps.Keysend {
			return nil, ErrUnsupported
		}
		if !IsNodePubkey(r.Address) {
			return nil, fmt.Errorf("invalid node pubkey %q", r.Address)
		}

		records, err := keysendRecords(r, msat, totalMsat, meta)
		if err != nil {
			return nil, err
		}

		return p.wallet.Keysend(ctx, KeysendRequest{
			Destination:   r.Address,
			AmountMsat:    msat,
			CustomRecords: records,
		})

	default:
		return nil, fmt.Errorf("unsupported recipient type %q", r.Type)
	}
}

func keysendRecords(r ValueRecipient, msat, totalMsat int64,
	meta BoostMeta) (map[uint64][]byte, error) {

	boost, err := Boostagram(r, msat, totalMsat, meta)
	if err != nil {
		return nil, err
	}

	records := map[uint64][]byte{
		BoostagramRecord: boost,
	}

	if r.CustomKey != "" && r.CustomValue != "" {
		key, err := strconv.ParseUint(r.CustomKey, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid customKey %q: %w",
				r.CustomKey, err)
		}
		records[key] = []byte(r.CustomValue)
	}

	return records, nil
}

// Boostagram builds the JSON payload of the boostagram TLV record.
func Boostagram(r ValueRecipient, msat, totalMsat int64,
	meta BoostMeta) ([]byte, error) {

	action := meta.Action
	if action == "" {
		action = "boost"
	}

	fields := []struct {
		path  string
		value interface{}
	}{
		{"podcast", meta.Podcast},
		{"url", meta.FeedURL},
		{"episode", meta.Episode},
		{"episode_guid", meta.EpisodeGUID},
		{"action", action},
		{"app_name", meta.AppName},
		{"sender_name", meta.SenderName},
		{"message", meta.Message},
		{"name", r.Name},
		{"value_msat", msat},
		{"value_msat_total", totalMsat},
	}

	body := "{}"
	for _, f := range fields {
		if s, ok := f.value.(string); ok && s == "" {
			continue
		}

		var err error
		body, err = sjson.Set(body, f.path, f.value)
		if err != nil {
			return nil, fmt.Errorf("boostagram %s: %w", f.path, err)
		}
	}

	return []byte(body), nil
}
