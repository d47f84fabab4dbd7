package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"dealdesk/internal/model"
	"dealdesk/internal/repository"

	"github.com/google/uuid"
)

// --- Partner DTOs ---

type CreatePartnerRequest struct {
	Code          string `json:"code" binding:"required"`
	Name          string `json:"name" binding:"required"`
	Type          string `json:"type" binding:"required"`
	Country       string `json:"country"`
	TaxCode       string `json:"tax_code"`
	CompanyName   string `json:"company_name"`
	BankAccount   string `json:"bank_account"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
}

type UpdatePartnerRequest struct {
	Name          *string `json:"name"`
	Country       *string `json:"country"`
	TaxCode       *string `json:"tax_code"`
	CompanyName   *string `json:"company_name"`
	BankAccount   *string `json:"bank_account"`
	ContactPerson *string `json:"contact_person"`
	Phone         *string `json:"phone"`
	Email         *string `json:"email"`
	IsActive      *bool   `json:"is_active"`
}

type PartnerResponse struct {
	ID            uuid.UUID `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Country       string    `json:"country"`
	TaxCode       string    `json:"tax_code"`
	CompanyName   string    `json:"company_name"`
	BankAccount   string    `json:"bank_account"`
	ContactPerson string    `json:"contact_person"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// --- Interface ---

type PartnerService interface {
	CreatePartner(ctx context.Context, req CreatePartnerRequest, actor Actor) (PartnerResponse, error)
	UpdatePartner(ctx context.Context, id string, req UpdatePartnerRequest, actor Actor) (PartnerResponse, error)
	DeletePartner(ctx context.Context, id string, actor Actor) error
	GetPartner(ctx context.Context, id string) (PartnerResponse, error)
	GetPartners(ctx context.Context, partnerType, search string, page, limit int) ([]PartnerResponse, int64, error)
}

// --- Implementation ---

type partnerService struct {
	partnerRepo repository.PartnerRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
}

func NewPartnerService(partnerRepo repository.PartnerRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager) PartnerService {
	return &partnerService{partnerRepo: partnerRepo, auditRepo: auditRepo, txManager: txManager}
}

// --- Validation helpers ---

var validPartnerTypes = map[string]bool{
	model.PartnerTypeClient:  true,
	model.PartnerTypeFactory: true,
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return invalid("email", "invalid email format")
	}
	return nil
}

// --- CRUD ---

func (s *partnerService) CreatePartner(ctx context.Context, req CreatePartnerRequest, actor Actor) (PartnerResponse, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return PartnerResponse{}, invalid("code", "is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return PartnerResponse{}, invalid("name", "is required")
	}
	if !validPartnerTypes[req.Type] {
		return PartnerResponse{}, invalid("type", "must be one of: CLIENT, FACTORY")
	}
	if err := validateEmail(req.Email); err != nil {
		return PartnerResponse{}, err
	}

	partner := &model.Partner{
		Code:          code,
		Name:          req.Name,
		Type:          req.Type,
		Country:       strings.ToUpper(req.Country),
		TaxCode:       req.TaxCode,
		CompanyName:   req.CompanyName,
		BankAccount:   req.BankAccount,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		IsActive:      true,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.partnerRepo.FindByCode(txCtx, code); err == nil {
			return fmt.Errorf("partner code %s %w", code, ErrAlreadyExists)
		}
		if err := s.partnerRepo.Create(txCtx, partner); err != nil {
			return fmt.Errorf("failed to create partner: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor.idPtr(), model.ActionCreatePartner, partner.ID.String(), partner.Name, req)
	})
	if err != nil {
		return PartnerResponse{}, err
	}

	return toPartnerResponse(*partner), nil
}

func (s *partnerService) UpdatePartner(ctx context.Context, id string, req UpdatePartnerRequest, actor Actor) (PartnerResponse, error) {
	uid, err := parseID("id", id)
	if err != nil {
		return PartnerResponse{}, err
	}

	var partner *model.Partner
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		partner, err = s.partnerRepo.FindByID(txCtx, uid)
		if err != nil {
			return notFound(err, "partner")
		}

		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				return invalid("name", "cannot be empty")
			}
			partner.Name = *req.Name
		}
		if req.Email != nil {
			if err := validateEmail(*req.Email); err != nil {
				return err
			}
			partner.Email = *req.Email
		}
		if req.Country != nil {
			partner.Country = strings.ToUpper(*req.Country)
		}
		if req.TaxCode != nil {
			partner.TaxCode = *req.TaxCode
		}
		if req.CompanyName != nil {
			partner.CompanyName = *req.CompanyName
		}
		if req.BankAccount != nil {
			partner.BankAccount = *req.BankAccount
		}
		if req.ContactPerson != nil {
			partner.ContactPerson = *req.ContactPerson
		}
		if req.Phone != nil {
			partner.Phone = *req.Phone
		}
		if req.IsActive != nil {
			partner.IsActive = *req.IsActive
		}

		if err := s.partnerRepo.Update(txCtx, partner); err != nil {
			return fmt.Errorf("failed to update partner: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor.idPtr(), model.ActionUpdatePartner, partner.ID.String(), partner.Name, req)
	})
	if err != nil {
		return PartnerResponse{}, err
	}

	return toPartnerResponse(*partner), nil
}

func (s *partnerService) DeletePartner(ctx context.Context, id string, actor Actor) error {
	uid, err := parseID("id", id)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		partner, err := s.partnerRepo.FindByID(txCtx, uid)
		if err != nil {
			return notFound(err, "partner")
		}
		if err := s.partnerRepo.Delete(txCtx, uid); err != nil {
			return fmt.Errorf("failed to delete partner: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor.idPtr(), model.ActionDeletePartner, partner.ID.String(), partner.Name, map[string]string{"deleted_id": id})
	})
}

func (s *partnerService) GetPartner(ctx context.Context, id string) (PartnerResponse, error) {
	uid, err := parseID("id", id)
	if err != nil {
		return PartnerResponse{}, err
	}
	partner, err := s.partnerRepo.FindByID(ctx, uid)
	if err != nil {
		return PartnerResponse{}, notFound(err, "partner")
	}
	return toPartnerResponse(*partner), nil
}

func (s *partnerService) GetPartners(ctx context.Context, partnerType, search string, page, limit int) ([]PartnerResponse, int64, error) {
	partners, total, err := s.partnerRepo.List(ctx, partnerType, search, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch partners: %w", err)
	}

	res := make([]PartnerResponse, 0, len(partners))
	for _, p := range partners {
		res = append(res, toPartnerResponse(p))
	}

	return res, total, nil
}

// --- Response mappers ---

func toPartnerResponse(p model.Partner) PartnerResponse {
	return PartnerResponse{
		ID:            p.ID,
		Code:          p.Code,
		Name:          p.Name,
		Type:          p.Type,
		Country:       p.Country,
		TaxCode:       p.TaxCode,
		CompanyName:   p.CompanyName,
		BankAccount:   p.BankAccount,
		ContactPerson: p.ContactPerson,
		Phone:         p.Phone,
		Email:         p.Email,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
