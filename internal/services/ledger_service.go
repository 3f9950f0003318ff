package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/models"
)

// Ledger service errors surfaced to handlers.
var (
	ErrLedgerNotFound      = errors.New("ledger service: record not found")
	ErrDuplicateReference  = errors.New("ledger service: duplicate code or number")
	ErrInvalidReference    = errors.New("ledger service: referenced record does not exist")
	ErrInvalidTransition   = errors.New("ledger service: status transition not allowed")
	ErrContractNotEditable = errors.New("ledger service: contract is no longer editable")
)

// ContractFilters narrows contract listings.
type ContractFilters struct {
	Status         string
	CounterpartyID string
	CommodityID    string
	Page           int
	PageSize       int
}

// DashboardStats aggregates ledger counts for the overview endpoint.
type DashboardStats struct {
	Contracts         int64            `json:"contracts"`
	ContractsByStatus map[string]int64 `json:"contracts_by_status"`
	Counterparties    int64            `json:"counterparties"`
	Commodities       int64            `json:"commodities"`
}

// Allowed contract status transitions. Executed and cancelled are terminal.
var contractTransitions = map[string][]string{
	models.ContractStatusDraft: {models.ContractStatusOpen, models.ContractStatusCancelled},
	models.ContractStatusOpen:  {models.ContractStatusExecuted, models.ContractStatusCancelled},
}

// LedgerService manages counterparties, commodities, currencies, and
// contracts.
type LedgerService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(db *gorm.DB, audit *AuditService) (*LedgerService, error) {
	if db == nil {
		return nil, errors.New("ledger service: db is required")
	}
	if audit == nil {
		return nil, errors.New("ledger service: audit service is required")
	}
	return &LedgerService{db: db, audit: audit}, nil
}

// --- counterparties ---

// CreateCounterparty validates and stores a trading partner.
func (s *LedgerService) CreateCounterparty(ctx context.Context, cp *models.Counterparty, actor *models.User) error {
	ctx = ensureContext(ctx)

	cp.Name = strings.TrimSpace(cp.Name)
	cp.Code = strings.ToUpper(strings.TrimSpace(cp.Code))
	if cp.Name == "" || cp.Code == "" {
		return errors.New("ledger service: counterparty name and code are required")
	}

	if err := s.db.WithContext(ctx).Create(cp).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("ledger service: create counterparty: %w", err)
	}

	s.recordLedgerAudit(ctx, actor, AuditActionCreate, "counterparty", cp.ID, cp.Name)
	return nil
}

// ListCounterparties returns counterparties, optionally only active ones.
func (s *LedgerService) ListCounterparties(ctx context.Context, activeOnly bool) ([]models.Counterparty, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Order("name")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var results []models.Counterparty
	if err := query.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("ledger service: list counterparties: %w", err)
	}
	return results, nil
}

// GetCounterparty loads one counterparty by id.
func (s *LedgerService) GetCounterparty(ctx context.Context, id string) (*models.Counterparty, error) {
	ctx = ensureContext(ctx)

	var cp models.Counterparty
	err := s.db.WithContext(ctx).Take(&cp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger service: load counterparty: %w", err)
	}
	return &cp, nil
}

// UpdateCounterparty applies field updates to an existing counterparty.
func (s *LedgerService) UpdateCounterparty(ctx context.Context, id string, updates map[string]any, actor *models.User) (*models.Counterparty, error) {
	ctx = ensureContext(ctx)

	cp, err := s.GetCounterparty(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(cp).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrDuplicateReference
			}
			return nil, fmt.Errorf("ledger service: update counterparty: %w", err)
		}
		s.recordLedgerAudit(ctx, actor, AuditActionUpdate, "counterparty", cp.ID, cp.Name)
	}
	return cp, nil
}

// DeactivateCounterparty marks a counterparty inactive. Rows with
// contract history are never hard-deleted.
func (s *LedgerService) DeactivateCounterparty(ctx context.Context, id string, actor *models.User) error {
	ctx = ensureContext(ctx)

	cp, err := s.GetCounterparty(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(cp).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("ledger service: deactivate counterparty: %w", err)
	}
	s.recordLedgerAudit(ctx, actor, AuditActionDelete, "counterparty", cp.ID, cp.Name)
	return nil
}

// --- commodities ---

// CreateCommodity stores a tradeable good.
func (s *LedgerService) CreateCommodity(ctx context.Context, commodity *models.Commodity, actor *models.User) error {
	ctx = ensureContext(ctx)

	commodity.ShortName = strings.TrimSpace(commodity.ShortName)
	if commodity.ShortName == "" {
		return errors.New("ledger service: commodity short name is required")
	}

	if err := s.db.WithContext(ctx).Create(commodity).Error; err != nil {
		return fmt.Errorf("ledger service: create commodity: %w", err)
	}
	s.recordLedgerAudit(ctx, actor, AuditActionCreate, "commodity", commodity.ID, commodity.ShortName)
	return nil
}

// ListCommodities returns commodities, optionally filtered to a group.
func (s *LedgerService) ListCommodities(ctx context.Context, group string) ([]models.Commodity, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Order("short_name")
	if g := strings.TrimSpace(group); g != "" {
		// Map conditions let the dialector quote the reserved column name.
		query = query.Where(map[string]any{"group": g})
	}

	var results []models.Commodity
	if err := query.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("ledger service: list commodities: %w", err)
	}
	return results, nil
}

// --- currencies ---

// ListCurrencies returns the currency reference data.
func (s *LedgerService) ListCurrencies(ctx context.Context) ([]models.Currency, error) {
	ctx = ensureContext(ctx)

	var results []models.Currency
	if err := s.db.WithContext(ctx).Order("code").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("ledger service: list currencies: %w", err)
	}
	return results, nil
}

// --- contracts ---

// CreateContract validates references and stores a new draft contract.
func (s *LedgerService) CreateContract(ctx context.Context, contract *models.Contract, actor *models.User) error {
	ctx = ensureContext(ctx)

	contract.Number = strings.TrimSpace(contract.Number)
	if contract.Number == "" {
		return errors.New("ledger service: contract number is required")
	}
	if contract.Status == "" {
		contract.Status = models.ContractStatusDraft
	}
	if actor != nil {
		contract.CreatedByID = actor.ID
	}

	if err := s.verifyContractRefs(ctx, contract); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(contract).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("ledger service: create contract: %w", err)
	}

	s.recordLedgerAudit(ctx, actor, AuditActionCreate, "contract", contract.ID, contract.Number)
	return nil
}

func (s *LedgerService) verifyContractRefs(ctx context.Context, contract *models.Contract) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Counterparty{}).
		Where("id = ? AND is_active = ?", contract.CounterpartyID, true).
		Count(&count).Error; err != nil {
		return fmt.Errorf("ledger service: verify counterparty: %w", err)
	}
	if count == 0 {
		return ErrInvalidReference
	}

	if err := s.db.WithContext(ctx).Model(&models.Commodity{}).
		Where("id = ?", contract.CommodityID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("ledger service: verify commodity: %w", err)
	}
	if count == 0 {
		return ErrInvalidReference
	}

	if err := s.db.WithContext(ctx).Model(&models.Currency{}).
		Where("id = ?", contract.CurrencyID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("ledger service: verify currency: %w", err)
	}
	if count == 0 {
		return ErrInvalidReference
	}
	return nil
}

// ListContracts returns a filtered, paginated contract listing newest first.
func (s *LedgerService) ListContracts(ctx context.Context, filters ContractFilters) ([]models.Contract, int64, error) {
	ctx = ensureContext(ctx)

	page := filters.Page
	if page <= 0 {
		page = 1
	}
	perPage := filters.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Contract{})
	if v := strings.TrimSpace(filters.Status); v != "" {
		query = query.Where("status = ?", v)
	}
	if v := strings.TrimSpace(filters.CounterpartyID); v != "" {
		query = query.Where("counterparty_id = ?", v)
	}
	if v := strings.TrimSpace(filters.CommodityID); v != "" {
		query = query.Where("commodity_id = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ledger service: count contracts: %w", err)
	}

	var results []models.Contract
	err := query.
		Preload("Counterparty").
		Preload("Commodity").
		Preload("Currency").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error
	if err != nil {
		return nil, 0, fmt.Errorf("ledger service: list contracts: %w", err)
	}

	return results, total, nil
}

// GetContract loads a contract with its reference data.
func (s *LedgerService) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	ctx = ensureContext(ctx)

	var contract models.Contract
	err := s.db.WithContext(ctx).
		Preload("Counterparty").
		Preload("Commodity").
		Preload("Currency").
		Take(&contract, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger service: load contract: %w", err)
	}
	return &contract, nil
}

// UpdateContract applies field updates to a draft or open contract.
// Executed and cancelled contracts are immutable.
func (s *LedgerService) UpdateContract(ctx context.Context, id string, updates map[string]any, actor *models.User) (*models.Contract, error) {
	ctx = ensureContext(ctx)

	contract, err := s.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}

	switch contract.Status {
	case models.ContractStatusDraft, models.ContractStatusOpen:
	default:
		return nil, ErrContractNotEditable
	}

	delete(updates, "status") // transitions go through UpdateContractStatus

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(contract).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrDuplicateReference
			}
			return nil, fmt.Errorf("ledger service: update contract: %w", err)
		}
		s.recordLedgerAudit(ctx, actor, AuditActionUpdate, "contract", contract.ID, contract.Number)
	}
	return contract, nil
}

// UpdateContractStatus moves a contract along its lifecycle.
func (s *LedgerService) UpdateContractStatus(ctx context.Context, id, next string, actor *models.User) (*models.Contract, error) {
	ctx = ensureContext(ctx)

	contract, err := s.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, candidate := range contractTransitions[contract.Status] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}

	previous := contract.Status
	if err := s.db.WithContext(ctx).Model(contract).Update("status", next).Error; err != nil {
		return nil, fmt.Errorf("ledger service: update contract status: %w", err)
	}
	contract.Status = next

	var actorID *string
	var actorName string
	if actor != nil {
		actorID = &actor.ID
		actorName = actor.Username
	}
	s.audit.Record(ctx, AuditEntry{
		UserID:     actorID,
		Username:   actorName,
		Action:     AuditActionUpdate,
		TargetKind: "contract",
		TargetID:   contract.ID,
		Summary:    fmt.Sprintf("contract %s status %s to %s", contract.Number, previous, next),
		Changes:    map[string]any{"status": map[string]string{"old": previous, "new": next}},
	})

	return contract, nil
}

// DeleteContract removes a draft contract. Anything past draft stays on
// the books.
func (s *LedgerService) DeleteContract(ctx context.Context, id string, actor *models.User) error {
	ctx = ensureContext(ctx)

	contract, err := s.GetContract(ctx, id)
	if err != nil {
		return err
	}
	if contract.Status != models.ContractStatusDraft {
		return ErrContractNotEditable
	}

	if err := s.db.WithContext(ctx).Delete(contract).Error; err != nil {
		return fmt.Errorf("ledger service: delete contract: %w", err)
	}
	s.recordLedgerAudit(ctx, actor, AuditActionDelete, "contract", contract.ID, contract.Number)
	return nil
}

// Stats aggregates ledger counts for the dashboard endpoint.
func (s *LedgerService) Stats(ctx context.Context) (*DashboardStats, error) {
	ctx = ensureContext(ctx)

	stats := &DashboardStats{ContractsByStatus: map[string]int64{}}

	if err := s.db.WithContext(ctx).Model(&models.Contract{}).Count(&stats.Contracts).Error; err != nil {
		return nil, fmt.Errorf("ledger service: count contracts: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Counterparty{}).
		Where("is_active = ?", true).
		Count(&stats.Counterparties).Error; err != nil {
		return nil, fmt.Errorf("ledger service: count counterparties: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Commodity{}).
		Where("is_active = ?", true).
		Count(&stats.Commodities).Error; err != nil {
		return nil, fmt.Errorf("ledger service: count commodities: %w", err)
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := s.db.WithContext(ctx).Model(&models.Contract{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("ledger service: contracts by status: %w", err)
	}
	for _, row := range rows {
		stats.ContractsByStatus[row.Status] = row.Count
	}

	return stats, nil
}

func (s *LedgerService) recordLedgerAudit(ctx context.Context, actor *models.User, action, kind, id, summary string) {
	var actorID *string
	var actorName string
	if actor != nil {
		actorID = &actor.ID
		actorName = actor.Username
	}
	s.audit.Record(ctx, AuditEntry{
		UserID:     actorID,
		Username:   actorName,
		Action:     action,
		TargetKind: kind,
		TargetID:   id,
		Summary:    fmt.Sprintf("%s %s %s", strings.ToLower(action), kind, summary),
	})
}
