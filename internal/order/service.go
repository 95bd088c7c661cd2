package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/combo"
	"github.com/noah-isme/backend-merch/internal/notify"
	"github.com/noah-isme/backend-merch/internal/obs"
	"github.com/noah-isme/backend-merch/internal/pricing"
)

// Store persists orders. Insert is the code claim: it must fail with
// ErrDuplicateCode when the order code is already taken and must not
// persist anything in that case.
type Store interface {
	Insert(ctx context.Context, o Order) error
	FindByCode(ctx context.Context, code string) (Order, error)
}

// Notifier delivers the order payload to external sinks.
type Notifier interface {
	Notify(ctx context.Context, payload notify.OrderCreated) error
}

// Service implements order creation and lookup.
type Service struct {
	catalog       catalog.Lookup
	combos        catalog.ComboSource
	store         Store
	allocator     Allocator
	notifier      Notifier
	validate      *validator.Validate
	logger        zerolog.Logger
	now           func() time.Time
	notifyTimeout time.Duration

	inflight sync.WaitGroup
}

// ServiceConfig wires the service collaborators.
type ServiceConfig struct {
	Catalog       catalog.Lookup
	Combos        catalog.ComboSource
	Store         Store
	Allocator     Allocator
	Notifier      Notifier
	Validator     *validator.Validate
	Logger        zerolog.Logger
	Now           func() time.Time
	NotifyTimeout time.Duration
}

// NewService constructs an order service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("order service requires a catalog lookup")
	}
	if cfg.Combos == nil {
		return nil, errors.New("order service requires a combo source")
	}
	if cfg.Store == nil {
		return nil, errors.New("order service requires a store")
	}
	v := cfg.Validator
	if v == nil {
		v = NewValidator()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	alloc := cfg.Allocator
	alloc.Logger = cfg.Logger
	return &Service{
		catalog:       cfg.Catalog,
		combos:        cfg.Combos,
		store:         cfg.Store,
		allocator:     alloc,
		notifier:      cfg.Notifier,
		validate:      v,
		logger:        cfg.Logger,
		now:           now,
		notifyTimeout: timeout,
	}, nil
}

// CreateOrder validates and prices the cart, claims a unique order code by
// inserting the order, and schedules the external notification.
func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (CreateOutput, error) {
	ctx, span := otel.Tracer("order.Service").Start(ctx, "Service.CreateOrder")
	defer span.End()

	out, err := s.createOrder(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order failed")
		return CreateOutput{}, err
	}
	span.SetAttributes(
		attribute.String("order.code", out.OrderCode),
		attribute.Int64("order.total", out.TotalAmount),
	)
	return out, nil
}

func (s *Service) createOrder(ctx context.Context, in CreateInput) (CreateOutput, error) {
	normalize(&in)
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return CreateOutput{}, fromValidator(err)
	}
	items := toItems(in.Items)

	var (
		priced pricing.Result
		hint   string
		err    error
	)
	if in.UseOptimalPricing {
		priced, err = s.priceTrusted(ctx, items, *in.OptimalPricing)
	} else {
		priced, hint, err = s.priceDerived(ctx, items, in.AllowPartialCombo)
	}
	if err != nil {
		return CreateOutput{}, err
	}
	if priced.TotalAmount < 0 {
		return CreateOutput{}, invalid("total amount must not be negative", nil)
	}
	if priced.ComboInfo != nil {
		if err := priced.ComboInfo.Validate(); err != nil {
			return CreateOutput{}, invalid("inconsistent combo savings", err)
		}
	}

	var saved Order
	_, err = s.allocator.Allocate(ctx, func(ctx context.Context, code string) error {
		candidate := NewOrder(code, in.Customer, priced, s.now())
		if err := s.store.Insert(ctx, candidate); err != nil {
			if errors.Is(err, ErrDuplicateCode) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		saved = candidate
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAllocationExhausted) || errors.Is(err, ErrPersistence) {
			return CreateOutput{}, err
		}
		return CreateOutput{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	obs.ObserveOrderCreated(string(saved.PricingMode))
	for _, id := range appliedCombos(saved.Lines) {
		obs.ObserveComboApplied(id)
	}
	logger := obs.LoggerWithTrace(ctx, s.logger)
	logger.Info().
		Str("order_code", saved.OrderCode).
		Str("pricing_mode", string(saved.PricingMode)).
		Int64("total_amount", saved.TotalAmount).
		Msg("order_created")

	s.notifyAsync(ctx, saved)

	return CreateOutput{
		OrderCode:   saved.OrderCode,
		TotalAmount: saved.TotalAmount,
		Status:      saved.Status,
		CreatedAt:   saved.CreatedAt,
		ComboInfo:   saved.ComboInfo,
		Lines:       saved.Lines,
		Hint:        hint,
	}, nil
}

func (s *Service) priceTrusted(ctx context.Context, items []combo.Item, payload pricing.OptimalPricing) (pricing.Result, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.IsCombo {
			return pricing.Result{}, invalid("combo items are not accepted with optimal pricing", nil)
		}
		ids = append(ids, it.ProductID)
	}
	ids = catalog.Distinct(ids)
	products, err := s.catalog.FindMany(ctx, ids, true)
	if err != nil {
		return pricing.Result{}, fmt.Errorf("%w: load products: %w", ErrPersistence, err)
	}
	index := catalog.IndexProducts(products)
	if missing := missingIDs(ids, index); len(missing) > 0 {
		return pricing.Result{}, unknownProducts(missing)
	}
	priced, err := pricing.Trust(items, index, payload)
	if err != nil {
		return pricing.Result{}, invalid("optimal pricing rejected", err)
	}
	return priced, nil
}

func (s *Service) priceDerived(ctx context.Context, items []combo.Item, allowPartial bool) (pricing.Result, string, error) {
	defs, err := s.combos.ActiveCombos(ctx)
	if err != nil {
		return pricing.Result{}, "", fmt.Errorf("%w: load combos: %w", ErrPersistence, err)
	}
	comboIndex := catalog.IndexCombos(defs)

	cartIDs := make([]string, 0, len(items))
	for _, it := range items {
		if it.IsCombo {
			def, ok := comboIndex[it.ComboID]
			if !ok {
				return pricing.Result{}, "", invalid(fmt.Sprintf("unknown or inactive combo %q", it.ComboID), nil)
			}
			for _, c := range def.Components {
				cartIDs = append(cartIDs, c.ProductID)
			}
			continue
		}
		cartIDs = append(cartIDs, it.ProductID)
	}
	cartIDs = catalog.Distinct(cartIDs)
	lookupIDs := catalog.Distinct(append(append([]string(nil), cartIDs...), catalog.ComponentIDs(defs)...))

	products, err := s.catalog.FindMany(ctx, lookupIDs, true)
	if err != nil {
		return pricing.Result{}, "", fmt.Errorf("%w: load products: %w", ErrPersistence, err)
	}
	index := catalog.IndexProducts(products)
	if missing := missingIDs(cartIDs, index); len(missing) > 0 {
		return pricing.Result{}, "", unknownProducts(missing)
	}

	match := combo.DetectAndApplyBestCombo(items, defs, catalog.Prices(products), allowPartial)
	if !match.Success {
		return pricing.Result{}, "", invalid(match.Message, nil)
	}
	expanded, err := combo.ExpandComboItems(match.FinalItems, comboIndex)
	if err != nil {
		return pricing.Result{}, "", invalid("combo expansion failed", err)
	}
	priced, err := pricing.Derive(expanded, index, comboIndex, &match)
	if err != nil {
		return pricing.Result{}, "", invalid("pricing failed", err)
	}
	hint := ""
	if !match.HasCombo {
		hint = match.Message
	}
	return priced, hint, nil
}

// GetOrderByCode returns the persisted summary for code. Codes are matched
// case-insensitively.
func (s *Service) GetOrderByCode(ctx context.Context, code string) (Summary, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Summary{}, invalid("order code is required", nil)
	}
	o, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Summary{}, err
		}
		return Summary{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return o.Summarize(), nil
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) notifyAsync(ctx context.Context, o Order) {
	if s.notifier == nil {
		return
	}
	payload := notify.OrderCreated{
		OrderCode:      o.OrderCode,
		StudentID:      o.Customer.StudentID,
		FullName:       o.Customer.FullName,
		Email:          o.Customer.Email,
		PhoneNumber:    o.Customer.PhoneNumber,
		School:         o.Customer.School,
		AdditionalNote: o.Customer.AdditionalNote,
		Items:          o.Lines,
		TotalAmount:    o.TotalAmount,
		CreatedAt:      o.CreatedAt,
	}
	logger := obs.LoggerWithTrace(ctx, s.logger)
	detached := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("order_code", o.OrderCode).Msg("order_notification_panic")
			}
		}()
		nctx, cancel := context.WithTimeout(detached, s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(nctx, payload); err != nil {
			logger.Error().Err(err).
				Str("order_code", o.OrderCode).
				Strs("sink", failedSinks(err)).
				Msg("order_notification_failed")
		}
	}()
}

func normalize(in *CreateInput) {
	c := &in.Customer
	c.StudentID = strings.TrimSpace(c.StudentID)
	c.FullName = strings.TrimSpace(c.FullName)
	c.Email = strings.TrimSpace(c.Email)
	c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)
	c.School = strings.TrimSpace(c.School)
	c.AdditionalNote = strings.TrimSpace(c.AdditionalNote)
	for i := range in.Items {
		in.Items[i].ProductID = strings.TrimSpace(in.Items[i].ProductID)
		in.Items[i].ComboID = strings.TrimSpace(in.Items[i].ComboID)
	}
}

func toItems(in []ItemInput) []combo.Item {
	out := make([]combo.Item, 0, len(in))
	for _, it := range in {
		if it.IsCombo {
			out = append(out, combo.Item{IsCombo: true, ComboID: it.ComboID, ComboName: it.ComboName, Quantity: it.Quantity})
			continue
		}
		out = append(out, combo.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func missingIDs(ids []string, index map[string]catalog.Product) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := index[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

func unknownProducts(ids []string) error {
	fields := make([]FieldError, 0, len(ids))
	for _, id := range ids {
		fields = append(fields, FieldError{Field: "items", Message: fmt.Sprintf("product %s is unknown or unavailable", id)})
	}
	return &ValidationError{
		Message: "unknown or unavailable products: " + strings.Join(ids, ", "),
		Fields:  fields,
		Err:     pricing.ErrUnknownProduct,
	}
}

func appliedCombos(lines []pricing.Line) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lines {
		if !l.FromCombo || l.ComboID == "" {
			continue
		}
		if _, ok := seen[l.ComboID]; ok {
			continue
		}
		seen[l.ComboID] = struct{}{}
		out = append(out, l.ComboID)
	}
	return out
}

func failedSinks(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var names []string
		for _, inner := range joined.Unwrap() {
			names = append(names, failedSinks(inner)...)
		}
		return names
	}
	var sinkErr *notify.SinkError
	if errors.As(err, &sinkErr) {
		return []string{sinkErr.Sink}
	}
	return nil
}
