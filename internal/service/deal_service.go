package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/metrics"
	"dealdesk/internal/model"
	"dealdesk/internal/pricing"
	"dealdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventDealStatusChanged is published after every committed deal action.
const EventDealStatusChanged = "deal.status_changed"

// EventPublisher receives realtime notifications after a commit. Publish must not block.
type EventPublisher interface {
	Publish(eventType string, data any)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, any) {}

// --- DTOs ---

type CreateDealRequest struct {
	Title    string `json:"title"`
	ClientID string `json:"client_id" binding:"required"`
	Category string `json:"category" binding:"required"`
	Material string `json:"material" binding:"required"`
	Size     string `json:"size"`
	Printing string `json:"printing"`
	Quantity int64  `json:"quantity" binding:"required"`
	Notes    string `json:"notes"`
}

type DealResponse struct {
	ID         uuid.UUID            `json:"id"`
	Code       string               `json:"code"`
	Title      string               `json:"title"`
	ClientID   uuid.UUID            `json:"client_id"`
	ClientName string               `json:"client_name,omitempty"`
	Category   string               `json:"category"`
	Material   string               `json:"material"`
	Size       string               `json:"size"`
	Printing   string               `json:"printing"`
	Quantity   int64                `json:"quantity"`
	Notes      string               `json:"notes"`
	Status     lifecycle.Status     `json:"status"`
	StatusInfo lifecycle.StatusInfo `json:"status_info"`
	Version    int64                `json:"version"`
	RepeatOfID *uuid.UUID           `json:"repeat_of_id,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

type StatusHistoryResponse struct {
	Seq        int64      `json:"seq"`
	FromStatus *string    `json:"from_status"`
	ToStatus   string     `json:"to_status"`
	Action     string     `json:"action"`
	ChangedBy  *uuid.UUID `json:"changed_by"`
	ChangedAt  time.Time  `json:"changed_at"`
	Note       string     `json:"note,omitempty"`
}

// AvailableAction is one action the caller could fire from the deal's current status.
type AvailableAction struct {
	Action    lifecycle.Action         `json:"action"`
	To        lifecycle.Status         `json:"to"`
	Kind      lifecycle.TransitionKind `json:"kind"`
	Allowed   bool                     `json:"allowed"`
	Ready     bool                     `json:"ready"`
	Blocker   string                   `json:"blocker,omitempty"`
	Requires  []lifecycle.Fact         `json:"requires,omitempty"`
	RoleGated bool                     `json:"role_gated"`
}

type AssignFactoryRequest struct {
	FactoryID string `json:"factory_id" binding:"required"`
}

type AssignmentResponse struct {
	ID          uuid.UUID `json:"id"`
	DealID      uuid.UUID `json:"deal_id"`
	FactoryID   uuid.UUID `json:"factory_id"`
	FactoryName string    `json:"factory_name,omitempty"`
	Status      string    `json:"status"`
}

// AdoptedEstimate is the priced estimate handed to the adoptEstimate action.
type AdoptedEstimate struct {
	FactoryID     uuid.UUID
	UnitPriceUsd  decimal.Decimal
	ShippingUsd   decimal.Decimal
	Confidence    string
	CostRatio     decimal.Decimal
	ExchangeRate  decimal.Decimal
	PaymentMethod pricing.PaymentMethod
}

// ActionRequest carries the action name plus whatever data its side effect needs.
type ActionRequest struct {
	Action         lifecycle.Action
	Actor          Actor
	Note           string
	QuoteID        *uuid.UUID
	FactoryID      *uuid.UUID
	AmountUsd      *decimal.Decimal
	AmountJpy      *int64
	Carrier        string
	TrackingNumber string
	Estimate       *AdoptedEstimate
}

type ActionResult struct {
	DealID        uuid.UUID        `json:"deal_id"`
	Action        lifecycle.Action `json:"action"`
	From          lifecycle.Status `json:"from"`
	To            lifecycle.Status `json:"to"`
	Version       int64            `json:"version"`
	SpawnedDealID *uuid.UUID       `json:"spawned_deal_id,omitempty"`
}

// --- Interface ---

type DealService interface {
	CreateDeal(ctx context.Context, req CreateDealRequest, actor Actor) (DealResponse, error)
	GetDeal(ctx context.Context, id string) (DealResponse, error)
	ListDeals(ctx context.Context, filter repository.DealFilter, page, limit int) ([]DealResponse, int64, error)
	History(ctx context.Context, id string) ([]StatusHistoryResponse, error)
	AvailableActions(ctx context.Context, id string, role string) ([]AvailableAction, error)
	AssignFactory(ctx context.Context, id string, req AssignFactoryRequest, actor Actor) (AssignmentResponse, error)
	ListAssignments(ctx context.Context, id string) ([]AssignmentResponse, error)
	ApplyAction(ctx context.Context, id string, req ActionRequest) (ActionResult, error)
}

// DealDeps wires the deal service to its collaborators.
type DealDeps struct {
	TxManager     repository.TransactionManager
	Deals         repository.DealRepository
	StatusHistory repository.StatusHistoryRepository
	Quotes        repository.DealQuoteRepository
	Assignments   repository.FactoryAssignmentRepository
	Payments      repository.PaymentRepository
	Shipping      repository.ShippingRepository
	Invoices      repository.InvoiceRepository
	Partners      repository.PartnerRepository
	Audit         repository.AuditRepository
	Taxes         TaxService
	Calculator    pricing.Calculator
	AdvanceRatio  decimal.Decimal
	Metrics       *metrics.Metrics
	Events        EventPublisher
	Logger        *zap.Logger
}

type dealService struct {
	DealDeps
	now func() time.Time
}

func NewDealService(deps DealDeps) DealService {
	if deps.Events == nil {
		deps.Events = noopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &dealService{DealDeps: deps, now: time.Now}
}

// --- CRUD ---

func (s *dealService) CreateDeal(ctx context.Context, req CreateDealRequest, actor Actor) (DealResponse, error) {
	clientID, err := parseID("client_id", req.ClientID)
	if err != nil {
		return DealResponse{}, err
	}
	if strings.TrimSpace(req.Category) == "" {
		return DealResponse{}, invalid("category", "is required")
	}
	if strings.TrimSpace(req.Material) == "" {
		return DealResponse{}, invalid("material", "is required")
	}
	if req.Quantity <= 0 {
		return DealResponse{}, invalid("quantity", "must be a positive integer")
	}

	deal := &model.Deal{
		Title:     req.Title,
		ClientID:  clientID,
		Category:  req.Category,
		Material:  req.Material,
		Size:      req.Size,
		Printing:  req.Printing,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
		CreatedBy: actor.idPtr(),
	}

	err = s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		client, err := s.Partners.FindByID(txCtx, clientID)
		if err != nil {
			return notFound(err, "client")
		}
		if client.Type != model.PartnerTypeClient {
			return invalid("client_id", "partner %s is not a client", client.Code)
		}
		deal.Client = client
		if err := s.insertDeal(txCtx, deal, actor, "deal created"); err != nil {
			return err
		}
		return writeAudit(txCtx, s.Audit, actor.idPtr(), model.ActionCreateDeal, deal.ID.String(), deal.Code, req)
	})
	if err != nil {
		return DealResponse{}, err
	}

	s.Logger.Info("deal created",
		zap.String("deal_id", deal.ID.String()),
		zap.String("code", deal.Code),
		zap.String("actor", actor.UserID.String()))
	return toDealResponse(deal), nil
}

// insertDeal gives the deal its code and initial status and writes the creating history row.
func (s *dealService) insertDeal(ctx context.Context, deal *model.Deal, actor Actor, note string) error {
	now := s.now()
	prefix := fmt.Sprintf("DL-%s-", now.Format("200601"))
	n, err := s.Deals.CountByPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to allocate deal code: %w", err)
	}
	deal.Code = fmt.Sprintf("%s%04d", prefix, n+1)
	deal.Status = lifecycle.Initial
	deal.Version = 1

	client := deal.Client
	deal.Client = nil
	err = s.Deals.Create(ctx, deal)
	deal.Client = client
	if err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}

	return s.StatusHistory.Append(ctx, &model.StatusHistory{
		DealID:    deal.ID,
		ToStatus:  string(lifecycle.Initial),
		Action:    "create",
		ChangedBy: actor.idPtr(),
		ChangedAt: now,
		Note:      note,
	})
}

func (s *dealService) GetDeal(ctx context.Context, id string) (DealResponse, error) {
	deal, err := s.findDeal(ctx, id)
	if err != nil {
		return DealResponse{}, err
	}
	return toDealResponse(deal), nil
}

func (s *dealService) findDeal(ctx context.Context, id string) (*model.Deal, error) {
	dealID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	deal, err := s.Deals.FindByID(ctx, dealID)
	if err != nil {
		return nil, notFound(err, "deal")
	}
	return deal, nil
}

func (s *dealService) ListDeals(ctx context.Context, filter repository.DealFilter, page, limit int) ([]DealResponse, int64, error) {
	if filter.Status != "" && !lifecycle.Status(filter.Status).Valid() {
		return nil, 0, invalid("status", "unknown status %q", filter.Status)
	}
	deals, total, err := s.Deals.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch deals: %w", err)
	}
	res := make([]DealResponse, 0, len(deals))
	for i := range deals {
		res = append(res, toDealResponse(&deals[i]))
	}
	return res, total, nil
}

func (s *dealService) History(ctx context.Context, id string) ([]StatusHistoryResponse, error) {
	deal, err := s.findDeal(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.StatusHistory.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status history: %w", err)
	}
	res := make([]StatusHistoryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, StatusHistoryResponse{
			Seq:        e.Seq,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Action:     e.Action,
			ChangedBy:  e.ChangedBy,
			ChangedAt:  e.ChangedAt,
			Note:       e.Note,
		})
	}
	return res, nil
}

// AvailableActions lists the actions bound to the deal's status, flagging which
// ones the role may fire and which preconditions already hold.
func (s *dealService) AvailableActions(ctx context.Context, id string, role string) ([]AvailableAction, error) {
	deal, err := s.findDeal(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, deal, ActionRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate deal state: %w", err)
	}

	transitions := lifecycle.ActionsFor(deal.Status)
	res := make([]AvailableAction, 0, len(transitions))
	for _, t := range transitions {
		a := AvailableAction{
			Action:    t.Action,
			To:        t.To,
			Kind:      t.Kind,
			Allowed:   t.Allows(role),
			Requires:  t.Requires,
			RoleGated: len(t.Roles) > 0,
			Ready:     true,
		}
		if err := t.Check(snap); err != nil {
			var ae *lifecycle.ActionError
			if errors.As(err, &ae) {
				a.Blocker = ae.Fact.Message()
			}
			// the estimate is supplied with the request itself
			a.Ready = ae != nil && ae.Fact == lifecycle.FactEstimateSupplied
		}
		res = append(res, a)
	}
	return res, nil
}

func (s *dealService) AssignFactory(ctx context.Context, id string, req AssignFactoryRequest, actor Actor) (AssignmentResponse, error) {
	dealID, err := parseID("id", id)
	if err != nil {
		return AssignmentResponse{}, err
	}
	factoryID, err := parseID("factory_id", req.FactoryID)
	if err != nil {
		return AssignmentResponse{}, err
	}

	var out AssignmentResponse
	err = s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		deal, err := s.Deals.FindByIDForUpdate(txCtx, dealID)
		if err != nil {
			return notFound(err, "deal")
		}
		if deal.Status.Number() > lifecycle.M10.Number() {
			return invalid("factory_id", "factories cannot be added once a quote is approved")
		}
		factory, err := s.Partners.FindByID(txCtx, factoryID)
		if err != nil {
			return notFound(err, "factory")
		}
		if factory.Type != model.PartnerTypeFactory {
			return invalid("factory_id", "partner %s is not a factory", factory.Code)
		}

		initial := model.AssignmentCandidate
		if deal.Status != lifecycle.M01 {
			initial = model.AssignmentRequested
		}
		a, err := s.Assignments.Ensure(txCtx, dealID, factoryID, initial)
		if err != nil {
			return fmt.Errorf("failed to assign factory: %w", err)
		}
		a.Factory = factory
		out = toAssignmentResponse(*a)
		return writeAudit(txCtx, s.Audit, actor.idPtr(), model.ActionAssignFactory, deal.ID.String(), deal.Code, map[string]string{"factory_id": factoryID.String(), "factory": factory.Code})
	})
	if err != nil {
		return AssignmentResponse{}, err
	}
	return out, nil
}

func (s *dealService) ListAssignments(ctx context.Context, id string) ([]AssignmentResponse, error) {
	deal, err := s.findDeal(ctx, id)
	if err != nil {
		return nil, err
	}
	list, err := s.Assignments.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch factory assignments: %w", err)
	}
	res := make([]AssignmentResponse, 0, len(list))
	for _, a := range list {
		res = append(res, toAssignmentResponse(a))
	}
	return res, nil
}

// --- State machine ---

// ApplyAction fires one lifecycle action. Lookup, authorization, precondition
// check, side effect, status write and history append all happen inside one
// transaction holding the deal row lock; any failure leaves the deal untouched.
func (s *dealService) ApplyAction(ctx context.Context, id string, req ActionRequest) (ActionResult, error) {
	dealID, err := uuid.Parse(id)
	if err != nil {
		return ActionResult{}, invalid("id", "must be a valid UUID")
	}

	var (
		result ActionResult
		code   string
	)
	err = s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		deal, err := s.Deals.FindByIDForUpdate(txCtx, dealID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &lifecycle.ActionError{Kind: lifecycle.NotFound, DealID: id, Action: req.Action}
			}
			return persistenceError(deal, req.Action, err)
		}
		code = deal.Code

		t, err := lifecycle.Lookup(deal.Status, req.Action)
		if err != nil {
			return withDeal(err, deal)
		}
		if !t.Allows(req.Actor.Role) {
			return &lifecycle.ActionError{Kind: lifecycle.Forbidden, DealID: id, Status: deal.Status, Action: req.Action}
		}

		snap, err := s.snapshot(txCtx, deal, req)
		if err != nil {
			return persistenceError(deal, req.Action, err)
		}
		if err := t.Check(snap); err != nil {
			return withDeal(err, deal)
		}

		result = ActionResult{DealID: deal.ID, Action: req.Action, From: deal.Status, To: t.To, Version: deal.Version}

		spawned, err := s.runEffect(txCtx, deal, t, req, snap)
		if err != nil {
			return effectError(deal, req.Action, err)
		}
		if t.Kind == lifecycle.KindSpawn {
			result.SpawnedDealID = &spawned.ID
			return writeAudit(txCtx, s.Audit, req.Actor.idPtr(), model.ActionDealTransition, deal.ID.String(), deal.Code,
				map[string]string{"action": string(req.Action), "spawned_deal_id": spawned.ID.String(), "spawned_code": spawned.Code})
		}

		if err := s.Deals.UpdateStatus(txCtx, deal.ID, deal.Version, t.To); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return &lifecycle.ActionError{Kind: lifecycle.Conflict, DealID: id, Status: deal.Status, Action: req.Action, Err: err}
			}
			return persistenceError(deal, req.Action, err)
		}
		result.Version = deal.Version + 1

		from := string(deal.Status)
		if err := s.StatusHistory.Append(txCtx, &model.StatusHistory{
			DealID:     deal.ID,
			FromStatus: &from,
			ToStatus:   string(t.To),
			Action:     string(req.Action),
			ChangedBy:  req.Actor.idPtr(),
			ChangedAt:  s.now(),
			Note:       req.Note,
		}); err != nil {
			return persistenceError(deal, req.Action, err)
		}
		if err := writeAudit(txCtx, s.Audit, req.Actor.idPtr(), model.ActionDealTransition, deal.ID.String(), deal.Code,
			map[string]string{"action": string(req.Action), "from": from, "to": string(t.To)}); err != nil {
			return persistenceError(deal, req.Action, err)
		}
		return nil
	})

	if err != nil {
		s.recordFailure(req, id, err)
		return ActionResult{}, err
	}

	s.Metrics.RecordTransition(string(req.Action), "ok")
	s.Logger.Info("deal action applied",
		zap.String("deal_id", result.DealID.String()),
		zap.String("code", code),
		zap.String("action", string(req.Action)),
		zap.String("from", string(result.From)),
		zap.String("to", string(result.To)),
		zap.String("actor", req.Actor.UserID.String()))
	s.Events.Publish(EventDealStatusChanged, result)
	s.Metrics.RecordEvent(EventDealStatusChanged)
	return result, nil
}

func (s *dealService) recordFailure(req ActionRequest, id string, err error) {
	var ae *lifecycle.ActionError
	if !errors.As(err, &ae) {
		var ve *pricing.ValidationError
		if errors.As(err, &ve) {
			s.Metrics.RecordTransition(string(req.Action), "VALIDATION")
			s.Logger.Warn("deal action rejected", zap.String("deal_id", id), zap.String("action", string(req.Action)), zap.Error(err))
			return
		}
		s.Metrics.RecordTransition(string(req.Action), string(lifecycle.PersistenceFailure))
		s.Logger.Error("deal action failed", zap.String("deal_id", id), zap.String("action", string(req.Action)), zap.Error(err))
		return
	}

	s.Metrics.RecordTransition(string(req.Action), string(ae.Kind))
	fields := []zap.Field{
		zap.String("deal_id", id),
		zap.String("action", string(req.Action)),
		zap.String("status", string(ae.Status)),
		zap.String("kind", string(ae.Kind)),
		zap.String("actor", req.Actor.UserID.String()),
		zap.Error(err),
	}
	if ae.Kind == lifecycle.PersistenceFailure {
		s.Logger.Error("deal action failed", fields...)
		return
	}
	s.Logger.Warn("deal action rejected", fields...)
}

func withDeal(err error, deal *model.Deal) error {
	var ae *lifecycle.ActionError
	if errors.As(err, &ae) {
		ae.DealID = deal.ID.String()
	}
	return err
}

func persistenceError(deal *model.Deal, action lifecycle.Action, err error) error {
	ae := &lifecycle.ActionError{Kind: lifecycle.PersistenceFailure, Action: action, Err: err}
	if deal != nil {
		ae.DealID = deal.ID.String()
		ae.Status = deal.Status
	}
	return ae
}

// effectError keeps typed rejections raised by a side effect and classifies
// everything else as a storage failure.
func effectError(deal *model.Deal, action lifecycle.Action, err error) error {
	var ae *lifecycle.ActionError
	if errors.As(err, &ae) {
		if ae.DealID == "" {
			ae.DealID = deal.ID.String()
		}
		if ae.Status == "" {
			ae.Status = deal.Status
		}
		return err
	}
	var ve *pricing.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return persistenceError(deal, action, err)
}

// --- Response mappers ---

func toDealResponse(d *model.Deal) DealResponse {
	res := DealResponse{
		ID:         d.ID,
		Code:       d.Code,
		Title:      d.Title,
		ClientID:   d.ClientID,
		Category:   d.Category,
		Material:   d.Material,
		Size:       d.Size,
		Printing:   d.Printing,
		Quantity:   d.Quantity,
		Notes:      d.Notes,
		Status:     d.Status,
		Version:    d.Version,
		RepeatOfID: d.RepeatOfID,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	res.StatusInfo, _ = lifecycle.Info(d.Status)
	if d.Client != nil {
		res.ClientName = d.Client.Name
	}
	return res
}

func toAssignmentResponse(a model.FactoryAssignment) AssignmentResponse {
	res := AssignmentResponse{
		ID:        a.ID,
		DealID:    a.DealID,
		FactoryID: a.FactoryID,
		Status:    a.Status,
	}
	if a.Factory != nil {
		res.FactoryName = a.Factory.Name
	}
	return res
}
