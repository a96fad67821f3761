package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	authoritydomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	podomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/lifecycle"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/validation"
)

const (
	defaultSendChannel = "email"
	defaultSendFormat  = "pdf"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      authoritydomain.Repository
	Approvals authoritydomain.ApprovalGate
	Clock     clock.Scheduler
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      authoritydomain.Repository
	approvals authoritydomain.ApprovalGate
	clock     clock.Clock
}

func NewService(p Params) authoritydomain.Service {
	var c clock.Clock = p.Clock
	if p.Clock == nil {
		c = clock.New()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("authority.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		approvals: p.Approvals,
		clock:     c,
	}
}

func (s *Service) Create(ctx context.Context, storeID string, payload podomain.OrderPayload) (podomain.WriteResult, error) {
	store, err := resolveStore(storeID, payload.StoreID)
	if err != nil {
		return podomain.WriteResult{}, err
	}
	content, err := normalizePayload(payload)
	if err != nil {
		return podomain.WriteResult{}, err
	}

	now := s.clock.Now().UTC()
	order := &authoritydomain.Order{
		ID:        s.genID.Generate(),
		StoreID:   store,
		Version:   1,
		Status:    podomain.StatusDraft,
		Approvers: datatypes.JSON("[]"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	content.applyTo(order)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.repo.NextSequence(ctx, tx, store)
		if err != nil {
			return err
		}
		order.Number = fmt.Sprintf("PO-%s-%05d", store, seq)
		return s.repo.InsertOrder(ctx, tx, order)
	})
	if err != nil {
		return podomain.WriteResult{}, err
	}

	s.log.Info("order created",
		zap.String("store_id", store),
		zap.String("order_id", order.ID.String()),
		zap.String("po_number", order.Number),
	)
	return writeResult(order), nil
}

func (s *Service) Update(ctx context.Context, storeID, id string, payload podomain.OrderPayload) (podomain.WriteResult, error) {
	order, err := s.write(ctx, storeID, id, payload)
	if err != nil {
		return podomain.WriteResult{}, err
	}
	return writeResult(order), nil
}

func (s *Service) Autosave(ctx context.Context, storeID, id string, payload podomain.OrderPayload) (podomain.AutosaveResult, error) {
	order, err := s.write(ctx, storeID, id, payload)
	if err != nil {
		return podomain.AutosaveResult{}, err
	}
	return podomain.AutosaveResult{Version: order.Version}, nil
}

// write replaces the order content when the caller's version is current.
// A payload without a version overwrites unconditionally.
func (s *Service) write(ctx context.Context, storeID, id string, payload podomain.OrderPayload) (*authoritydomain.Order, error) {
	content, err := normalizePayload(payload)
	if err != nil {
		return nil, err
	}

	var order *authoritydomain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.loadOrder(ctx, tx, storeID, id)
		if err != nil {
			return err
		}
		if payload.StoreID != "" && payload.StoreID != current.StoreID {
			return authoritydomain.ErrForbidden
		}
		if !lifecycle.Editable(current.Status) {
			return fmt.Errorf("%w: order is %s", authoritydomain.ErrInvalidState, current.Status)
		}
		if payload.Version != nil && *payload.Version != current.Version {
			return fmt.Errorf("%w: have %d, got %d", authoritydomain.ErrVersionConflict, current.Version, *payload.Version)
		}
		content.applyTo(current)
		current.Version++
		current.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.UpdateOrder(ctx, tx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	return order, err
}

func (s *Service) Get(ctx context.Context, storeID, id string) (podomain.RemoteOrder, error) {
	order, err := s.loadOrder(ctx, s.db, storeID, id)
	if err != nil {
		return podomain.RemoteOrder{}, err
	}
	return toRemoteOrder(order)
}

func (s *Service) Send(ctx context.Context, storeID, id string, req podomain.SendRequest) (podomain.TransitionResult, error) {
	return s.transition(ctx, storeID, id, lifecycle.EventSend, func(order *authoritydomain.Order) error {
		channel := strings.TrimSpace(req.Channel)
		if channel == "" {
			channel = defaultSendChannel
		}
		format := strings.TrimSpace(req.Format)
		if format == "" {
			format = defaultSendFormat
		}
		now := s.clock.Now().UTC()
		order.SendChannel = channel
		order.SendFormat = format
		order.SentAt = &now
		return nil
	})
}

func (s *Service) RequestApproval(ctx context.Context, storeID, subject, id string, req podomain.ApprovalRequest) (podomain.TransitionResult, error) {
	approvers := make([]string, 0, len(req.Approvers))
	for _, approver := range req.Approvers {
		if approver = strings.TrimSpace(approver); approver != "" {
			approvers = append(approvers, approver)
		}
	}
	raw, err := json.Marshal(approvers)
	if err != nil {
		return podomain.TransitionResult{}, err
	}
	// Grants are written before the transaction. Approve only accepts
	// pending orders, so grants from a request that fails to commit are inert.
	order, err := s.loadOrder(ctx, s.db, storeID, id)
	if err != nil {
		return podomain.TransitionResult{}, err
	}
	if _, err := lifecycle.Next(order.Status, lifecycle.EventRequestApproval); err != nil {
		return podomain.TransitionResult{}, fmt.Errorf("%w: %v", authoritydomain.ErrInvalidState, err)
	}
	if err := s.approvals.Grant(order.ID.String(), subject, approvers); err != nil {
		return podomain.TransitionResult{}, err
	}
	return s.transition(ctx, storeID, id, lifecycle.EventRequestApproval, func(order *authoritydomain.Order) error {
		order.Approvers = datatypes.JSON(raw)
		order.ApprovalNote = strings.TrimSpace(req.Note)
		return nil
	})
}

// Approve accepts only a subject named, directly or by role, in the
// approval request. The requester can never approve their own request.
func (s *Service) Approve(ctx context.Context, storeID, subject, id string) (podomain.TransitionResult, error) {
	var orderID string
	res, err := s.transition(ctx, storeID, id, lifecycle.EventApprove, func(order *authoritydomain.Order) error {
		orderID = order.ID.String()
		return s.approvals.Authorize(orderID, subject)
	})
	if err != nil {
		return res, err
	}
	if err := s.approvals.Revoke(orderID); err != nil {
		s.log.Warn("approval grants not revoked", zap.String("order_id", id), zap.Error(err))
	}
	return res, nil
}

func (s *Service) transition(ctx context.Context, storeID, id string, ev lifecycle.Event, mutate func(*authoritydomain.Order) error) (podomain.TransitionResult, error) {
	var result podomain.TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.loadOrder(ctx, tx, storeID, id)
		if err != nil {
			return err
		}
		next, err := lifecycle.Next(order.Status, ev)
		if err != nil {
			return fmt.Errorf("%w: %v", authoritydomain.ErrInvalidState, err)
		}
		if lifecycle.RequiresValidation(ev) {
			if err := validateOrder(order); err != nil {
				return err
			}
		}
		if mutate != nil {
			if err := mutate(order); err != nil {
				return err
			}
		}
		order.Status = next
		order.Version++
		order.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.UpdateOrder(ctx, tx, order); err != nil {
			return err
		}
		result = podomain.TransitionResult{Status: next, Version: order.Version}
		return nil
	})
	if err != nil {
		return podomain.TransitionResult{}, err
	}
	s.log.Info("order transitioned",
		zap.String("order_id", id),
		zap.String("event", string(ev)),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func (s *Service) Suggestions(ctx context.Context, storeID string, query podomain.SuggestionQuery) ([]podomain.Suggestion, error) {
	store, err := resolveStore(storeID, query.StoreID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListCatalogItems(ctx, s.db, store, strings.TrimSpace(query.SupplierID))
	if err != nil {
		return nil, err
	}
	out := make([]podomain.Suggestion, 0, len(items))
	for _, item := range items {
		out = append(out, podomain.Suggestion{
			CatalogRef:  item.DrugID,
			Description: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			Reason:      item.Reason,
		})
	}
	return out, nil
}

func (s *Service) CreateTemplate(ctx context.Context, storeID string, req podomain.TemplateRequest) (podomain.TemplateResult, error) {
	store, err := resolveStore(storeID, req.StoreID)
	if err != nil {
		return podomain.TemplateResult{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return podomain.TemplateResult{}, authoritydomain.ErrTemplateName
	}
	base := slug.Make(name)
	if base == "" {
		return podomain.TemplateResult{}, authoritydomain.ErrTemplateName
	}
	lines, err := podomain.LinesFromPayload(req.Lines)
	if err != nil {
		return podomain.TemplateResult{}, fmt.Errorf("%w: %v", authoritydomain.ErrInvalidRequest, err)
	}
	items, err := json.Marshal(templateItems(lines))
	if err != nil {
		return podomain.TemplateResult{}, err
	}

	tmpl := &authoritydomain.OrderTemplate{
		ID:           s.genID.Generate(),
		StoreID:      store,
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		SupplierID:   strings.TrimSpace(req.SupplierID),
		SupplierName: strings.TrimSpace(req.SupplierName),
		Items:        datatypes.JSON(items),
		CreatedAt:    s.clock.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidate := base
		for n := 2; ; n++ {
			exists, err := s.repo.SlugExists(ctx, tx, store, candidate)
			if err != nil {
				return err
			}
			if !exists {
				break
			}
			candidate = fmt.Sprintf("%s-%d", base, n)
		}
		tmpl.Slug = candidate
		return s.repo.InsertTemplate(ctx, tx, tmpl)
	})
	if err != nil {
		return podomain.TemplateResult{}, err
	}
	return podomain.TemplateResult{ID: tmpl.ID.String(), Slug: tmpl.Slug}, nil
}

// LoadTemplate accepts a template id or slug.
func (s *Service) LoadTemplate(ctx context.Context, storeID, id string) (podomain.TemplateBody, error) {
	id = strings.TrimSpace(id)
	var (
		tmpl *authoritydomain.OrderTemplate
		err  error
	)
	if parsed, parseErr := snowflake.ParseString(id); parseErr == nil {
		tmpl, err = s.repo.FindTemplate(ctx, s.db, storeID, parsed)
	} else {
		tmpl, err = s.repo.FindTemplateBySlug(ctx, s.db, storeID, id)
	}
	if err != nil {
		return podomain.TemplateBody{}, err
	}
	if tmpl == nil {
		return podomain.TemplateBody{}, authoritydomain.ErrNotFound
	}

	var items []podomain.OrderLinePayload
	if err := json.Unmarshal(tmpl.Items, &items); err != nil {
		return podomain.TemplateBody{}, err
	}
	return podomain.TemplateBody{
		SupplierID:   tmpl.SupplierID,
		SupplierName: tmpl.SupplierName,
		Lines:        items,
	}, nil
}

func (s *Service) SeedCatalog(ctx context.Context, seeds []authoritydomain.CatalogSeed) error {
	items := make([]authoritydomain.CatalogItem, 0, len(seeds))
	for _, seed := range seeds {
		if strings.TrimSpace(seed.StoreID) == "" || strings.TrimSpace(seed.DrugID) == "" {
			return fmt.Errorf("%w: catalog seed needs store_id and drug_id", authoritydomain.ErrInvalidRequest)
		}
		if !seed.TaxRate.Valid() {
			return fmt.Errorf("%w: drug %s: tax rate %s", authoritydomain.ErrInvalidRequest, seed.DrugID, seed.TaxRate)
		}
		items = append(items, authoritydomain.CatalogItem{
			ID:         s.genID.Generate(),
			StoreID:    strings.TrimSpace(seed.StoreID),
			SupplierID: strings.TrimSpace(seed.SupplierID),
			DrugID:     strings.TrimSpace(seed.DrugID),
			Name:       strings.TrimSpace(seed.Name),
			Quantity:   seed.Quantity,
			UnitPrice:  seed.UnitPrice,
			TaxRate:    seed.TaxRate,
			Reason:     strings.TrimSpace(seed.Reason),
		})
	}
	return s.repo.InsertCatalogItems(ctx, s.db, items)
}

func (s *Service) loadOrder(ctx context.Context, db *gorm.DB, storeID, id string) (*authoritydomain.Order, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, authoritydomain.ErrNotFound
	}
	order, err := s.repo.FindOrder(ctx, db, parsed)
	if err != nil {
		return nil, err
	}
	if order == nil || (storeID != "" && order.StoreID != storeID) {
		return nil, authoritydomain.ErrNotFound
	}
	return order, nil
}

func resolveStore(authStore, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	switch {
	case requested == "" && authStore == "":
		return "", fmt.Errorf("%w: store_id is required", authoritydomain.ErrInvalidRequest)
	case requested == "":
		return authStore, nil
	case authStore != "" && authStore != requested:
		return "", authoritydomain.ErrForbidden
	default:
		return requested, nil
	}
}

func writeResult(order *authoritydomain.Order) podomain.WriteResult {
	return podomain.WriteResult{
		ID:      order.ID.String(),
		Number:  order.Number,
		Version: order.Version,
		Status:  order.Status,
	}
}

func validateOrder(order *authoritydomain.Order) error {
	remote, err := toRemoteOrder(order)
	if err != nil {
		return err
	}
	doc, err := podomain.DocumentFromRemote(remote)
	if err != nil {
		return fmt.Errorf("%w: %v", authoritydomain.ErrInvalidState, err)
	}
	result := validation.Validate(doc)
	if !result.Valid() {
		return fmt.Errorf("%w: %v", authoritydomain.ErrInvalidState, &podomain.ValidationError{Result: result})
	}
	return nil
}

func templateItems(lines []podomain.Line) []podomain.OrderLinePayload {
	items := podomain.LinePayloads(lines)
	for i := range items {
		items[i].LineID = ""
	}
	return items
}
