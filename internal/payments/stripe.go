package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway реализует операции Connect и PaymentIntent через stripe-go.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway создаёт клиент Stripe с секретным ключом платформы.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

// CreateAccount создаёт Express-аккаунт физлица в Бразилии с картами и переводами.
func (g *StripeGateway) CreateAccount(ctx context.Context, p CreateAccountParams) (*Account, error) {
	params := &stripe.AccountParams{
		Type:         stripe.String(string(stripe.AccountTypeExpress)),
		Country:      stripe.String("BR"),
		BusinessType: stripe.String(string(stripe.AccountBusinessTypeIndividual)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	params.Context = ctx
	params.AddMetadata("driver_id", p.DriverID)
	if p.Phone != "" {
		params.AddMetadata("phone", p.Phone)
	}
	params.SetIdempotencyKey(idempotencyKey("account", p.DriverID))

	acct, err := g.api.Accounts.New(params)
	if err != nil {
		return nil, wrapErr("create account", err)
	}
	return toAccount(acct), nil
}

// idempotencyKey действует в пределах одного вызова (повторы внутри stripe-go).
// Stripe хранит ответ по ключу сутки, поэтому постоянный ключ вернул бы удалённый аккаунт при переподключении.
func idempotencyKey(kind, id string) string {
	return kind + "-" + id + "-" + uuid.NewString()
}

// GetAccount возвращает подключённый аккаунт. Для удалённого аккаунта - ErrNotFound.
func (g *StripeGateway) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := g.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, wrapErr("get account", err)
	}
	return toAccount(acct), nil
}

// OnboardingLink выпускает одноразовую ссылку на анкету подключения.
func (g *StripeGateway) OnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := g.api.AccountLinks.New(params)
	if err != nil {
		return "", wrapErr("create account link", err)
	}
	return link.URL, nil
}

// LoginLink выпускает ссылку на Express Dashboard водителя.
func (g *StripeGateway) LoginLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx
	link, err := g.api.LoginLinks.New(params)
	if err != nil {
		return "", wrapErr("create login link", err)
	}
	return link.URL, nil
}

// CreateCustomer регистрирует клиента, чтобы сохранять его карты.
func (g *StripeGateway) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	params := &stripe.CustomerParams{Name: stripe.String(p.Name)}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Phone != "" {
		params.Phone = stripe.String(p.Phone)
	}
	params.Context = ctx
	params.AddMetadata("profile_id", p.Profile)
	params.SetIdempotencyKey(idempotencyKey("customer", p.Profile))

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return "", wrapErr("create customer", err)
	}
	return cus.ID, nil
}

// EphemeralKey выпускает ключ для мобильного/веб SDK клиента.
func (g *StripeGateway) EphemeralKey(ctx context.Context, customerID string) (string, error) {
	params := &stripe.EphemeralKeyParams{
		Customer:      stripe.String(customerID),
		StripeVersion: stripe.String(stripe.APIVersion),
	}
	params.Context = ctx
	key, err := g.api.EphemeralKeys.New(params)
	if err != nil {
		return "", wrapErr("create ephemeral key", err)
	}
	return key.Secret, nil
}

// CreateIntent создаёт PaymentIntent в BRL с автоматическим выбором способа оплаты
// (карта, Pix, кошельки) и переводом на аккаунт водителя за вычетом комиссии.
func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(string(stripe.CurrencyBRL)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		ApplicationFeeAmount: stripe.Int64(p.FeeCents),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.DestinationAccount),
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, wrapErr("create payment intent", err)
	}
	return toIntent(pi), nil
}

// UpdateIntent меняет сумму и комиссию неподтверждённого PaymentIntent.
func (g *StripeGateway) UpdateIntent(ctx context.Context, intentID string, amountCents, feeCents int64) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(amountCents),
		ApplicationFeeAmount: stripe.Int64(feeCents),
	}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Update(intentID, params)
	if err != nil {
		return nil, wrapErr("update payment intent", err)
	}
	return toIntent(pi), nil
}

// GetIntent возвращает PaymentIntent с последним списанием.
func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("payment_method")
	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, wrapErr("get payment intent", err)
	}
	return toIntent(pi), nil
}

// GetCharge возвращает списание платформы по идентификатору.
func (g *StripeGateway) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	ch, err := g.api.Charges.Get(chargeID, params)
	if err != nil {
		return nil, wrapErr("get charge", err)
	}
	return toCharge(ch), nil
}

// Balance возвращает баланс подключённого аккаунта в BRL.
func (g *StripeGateway) Balance(ctx context.Context, accountID string) (*Balance, error) {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	b, err := g.api.Balance.Get(params)
	if err != nil {
		return nil, wrapErr("get balance", err)
	}

	out := &Balance{Currency: CurrencyBRL}
	for _, a := range b.Available {
		if string(a.Currency) == CurrencyBRL {
			out.Available += a.Amount
		}
	}
	for _, a := range b.Pending {
		if string(a.Currency) == CurrencyBRL {
			out.Pending += a.Amount
		}
	}
	return out, nil
}

// Transactions объединяет балансовые операции и платежи подключённого аккаунта.
// Перевод по destination charge виден в обоих списках, поэтому строки сводятся по ID.
func (g *StripeGateway) Transactions(ctx context.Context, accountID string, limit int) ([]Transaction, error) {
	seen := make(map[string]struct{})
	var out []Transaction

	add := func(tx Transaction) {
		if _, ok := seen[tx.ID]; ok {
			return
		}
		seen[tx.ID] = struct{}{}
		out = append(out, tx)
	}

	btParams := &stripe.BalanceTransactionListParams{}
	btParams.Context = ctx
	btParams.Limit = stripe.Int64(int64(limit))
	btParams.Single = true
	btParams.SetStripeAccount(accountID)

	btIter := g.api.BalanceTransactions.List(btParams)
	for btIter.Next() {
		bt := btIter.BalanceTransaction()
		id := bt.ID
		if bt.Source != nil && bt.Source.ID != "" {
			id = bt.Source.ID
		}
		add(Transaction{
			ID:          id,
			Type:        string(bt.Type),
			AmountCents: bt.Amount,
			FeeCents:    bt.Fee,
			NetCents:    bt.Net,
			Currency:    string(bt.Currency),
			Status:      string(bt.Status),
			Description: bt.Description,
			Created:     time.Unix(bt.Created, 0),
		})
	}
	if err := btIter.Err(); err != nil {
		return nil, wrapErr("list balance transactions", err)
	}

	chParams := &stripe.ChargeListParams{}
	chParams.Context = ctx
	chParams.Limit = stripe.Int64(int64(limit))
	chParams.Single = true
	chParams.SetStripeAccount(accountID)

	chIter := g.api.Charges.List(chParams)
	for chIter.Next() {
		ch := chIter.Charge()
		add(Transaction{
			ID:          ch.ID,
			Type:        "payment",
			AmountCents: ch.Amount,
			FeeCents:    ch.ApplicationFeeAmount,
			NetCents:    ch.Amount - ch.ApplicationFeeAmount,
			Currency:    string(ch.Currency),
			Status:      string(ch.Status),
			Description: ch.Description,
			Created:     time.Unix(ch.Created, 0),
		})
	}
	if err := chIter.Err(); err != nil {
		return nil, wrapErr("list charges", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ParseWebhook проверяет подпись и разбирает событие.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("payments: decode account event: %w", err)
		}
		out.Account = toAccount(&acct)
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("payments: decode payment intent event: %w", err)
		}
		out.Intent = toIntent(&pi)
	}
	return out, nil
}

func toAccount(a *stripe.Account) *Account {
	out := &Account{
		ID:               a.ID,
		Email:            a.Email,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
	if a.Requirements != nil {
		out.DisabledReason = string(a.Requirements.DisabledReason)
	}
	return out
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	out := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		FeeCents:     pi.ApplicationFeeAmount,
		Metadata:     pi.Metadata,
	}
	if pi.TransferData != nil && pi.TransferData.Destination != nil {
		out.DestinationAccount = pi.TransferData.Destination.ID
	}
	if pi.LatestCharge != nil {
		out.LatestChargeID = pi.LatestCharge.ID
	}
	if pi.PaymentMethod != nil && pi.PaymentMethod.Type != "" {
		out.PaymentMethodType = string(pi.PaymentMethod.Type)
	}
	if pi.LastPaymentError != nil {
		out.LastError = pi.LastPaymentError.Msg
	}
	return out
}

func toCharge(ch *stripe.Charge) *Charge {
	out := &Charge{
		ID:           ch.ID,
		AmountCents:  ch.Amount,
		FeeCents:     ch.ApplicationFeeAmount,
		Currency:     string(ch.Currency),
		Status:       string(ch.Status),
		Description:  ch.Description,
		ReceiptEmail: ch.ReceiptEmail,
		Created:      time.Unix(ch.Created, 0),
	}
	if ch.PaymentIntent != nil {
		out.PaymentIntentID = ch.PaymentIntent.ID
	}
	if ch.TransferData != nil && ch.TransferData.Destination != nil {
		out.DestinationAccount = ch.TransferData.Destination.ID
	}
	if ch.BillingDetails != nil {
		out.BillingName = ch.BillingDetails.Name
	}
	if ch.PaymentMethodDetails != nil {
		out.PaymentMethodType = string(ch.PaymentMethodDetails.Type)
		if card := ch.PaymentMethodDetails.Card; card != nil {
			out.CardBrand = string(card.Brand)
			out.CardLast4 = card.Last4
		}
	}
	return out
}

// wrapErr сводит ошибки «объект не найден» к ErrNotFound.
func wrapErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing ||
			stripeErr.Code == stripe.ErrorCodeAccountInvalid ||
			stripeErr.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("payments: %s: %w (%s)", op, ErrNotFound, stripeErr.Msg)
		}
	}
	return fmt.Errorf("payments: %s: %w", op, err)
}
