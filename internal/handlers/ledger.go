package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quayside/tradeledger/internal/middleware"
	"github.com/quayside/tradeledger/internal/models"
	"github.com/quayside/tradeledger/internal/services"
	appErrors "github.com/quayside/tradeledger/pkg/errors"
	"github.com/quayside/tradeledger/pkg/response"
)

// LedgerHandler serves the trading ledger: counterparties, commodities,
// currencies, contracts, and the dashboard aggregates.
type LedgerHandler struct {
	ledger *services.LedgerService
}

func NewLedgerHandler(ledger *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

func ledgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrLedgerNotFound):
		response.Error(c, appErrors.ErrNotFound)
	case errors.Is(err, services.ErrDuplicateReference):
		response.Error(c, appErrors.NewBadRequest("code or number already in use"))
	case errors.Is(err, services.ErrInvalidReference):
		response.Error(c, appErrors.NewBadRequest("referenced record does not exist or is inactive"))
	case errors.Is(err, services.ErrInvalidTransition):
		response.Error(c, appErrors.NewBadRequest("status transition not allowed"))
	case errors.Is(err, services.ErrContractNotEditable):
		response.Error(c, appErrors.NewBadRequest("contract is no longer editable"))
	default:
		response.Error(c, appErrors.ErrInternalServer)
	}
}

// --- counterparties ---

type counterpartyRequest struct {
	Name          string `json:"name" validate:"required,max=256"`
	Code          string `json:"code" validate:"required,max=32"`
	TaxID         string `json:"tax_id" validate:"max=64"`
	City          string `json:"city" validate:"max=128"`
	Country       string `json:"country" validate:"max=128"`
	ContactPerson string `json:"contact_person" validate:"max=128"`
	IsSupplier    bool   `json:"is_supplier"`
	IsCustomer    bool   `json:"is_customer"`
}

// POST /api/ledger/counterparties
func (h *LedgerHandler) CreateCounterparty(c *gin.Context) {
	var req counterpartyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	cp := &models.Counterparty{
		Name:          req.Name,
		Code:          req.Code,
		TaxID:         req.TaxID,
		City:          req.City,
		Country:       req.Country,
		ContactPerson: req.ContactPerson,
		IsSupplier:    req.IsSupplier,
		IsCustomer:    req.IsCustomer,
		IsActive:      true,
	}
	if err := h.ledger.CreateCounterparty(c.Request.Context(), cp, middleware.CurrentUser(c)); err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, cp)
}

// GET /api/ledger/counterparties
func (h *LedgerHandler) ListCounterparties(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	results, err := h.ledger.ListCounterparties(c.Request.Context(), activeOnly)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, results)
}

// GET /api/ledger/counterparties/:id
func (h *LedgerHandler) GetCounterparty(c *gin.Context) {
	cp, err := h.ledger.GetCounterparty(c.Request.Context(), c.Param("id"))
	if err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusOK, cp)
}

type counterpartyUpdateRequest struct {
	Name          *string `json:"name" validate:"omitempty,max=256"`
	TaxID         *string `json:"tax_id" validate:"omitempty,max=64"`
	City          *string `json:"city" validate:"omitempty,max=128"`
	Country       *string `json:"country" validate:"omitempty,max=128"`
	ContactPerson *string `json:"contact_person" validate:"omitempty,max=128"`
	IsSupplier    *bool   `json:"is_supplier"`
	IsCustomer    *bool   `json:"is_customer"`
	IsActive      *bool   `json:"is_active"`
}

// PUT /api/ledger/counterparties/:id
func (h *LedgerHandler) UpdateCounterparty(c *gin.Context) {
	var req counterpartyUpdateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	updates := map[string]any{}
	putString(updates, "name", req.Name)
	putString(updates, "tax_id", req.TaxID)
	putString(updates, "city", req.City)
	putString(updates, "country", req.Country)
	putString(updates, "contact_person", req.ContactPerson)
	putBool(updates, "is_supplier", req.IsSupplier)
	putBool(updates, "is_customer", req.IsCustomer)
	putBool(updates, "is_active", req.IsActive)

	cp, err := h.ledger.UpdateCounterparty(c.Request.Context(), c.Param("id"), updates, middleware.CurrentUser(c))
	if err != nil {
		ledgerError(c, err)
		return
	}

	cp, err = h.ledger.GetCounterparty(c.Request.Context(), cp.ID)
	if err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusOK, cp)
}

// DELETE /api/ledger/counterparties/:id
func (h *LedgerHandler) DeactivateCounterparty(c *gin.Context) {
	if err := h.ledger.DeactivateCounterparty(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c)); err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}

// --- commodities ---

type commodityRequest struct {
	ShortName string `json:"short_name" validate:"required,max=64"`
	FullName  string `json:"full_name" validate:"max=256"`
	Group     string `json:"group" validate:"max=64"`
}

// POST /api/ledger/commodities
func (h *LedgerHandler) CreateCommodity(c *gin.Context) {
	var req commodityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	commodity := &models.Commodity{
		ShortName: req.ShortName,
		FullName:  req.FullName,
		Group:     req.Group,
		IsActive:  true,
	}
	if err := h.ledger.CreateCommodity(c.Request.Context(), commodity, middleware.CurrentUser(c)); err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, commodity)
}

// GET /api/ledger/commodities
func (h *LedgerHandler) ListCommodities(c *gin.Context) {
	results, err := h.ledger.ListCommodities(c.Request.Context(), c.Query("group"))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, results)
}

// GET /api/ledger/currencies
func (h *LedgerHandler) ListCurrencies(c *gin.Context) {
	results, err := h.ledger.ListCurrencies(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, results)
}

// --- contracts ---

type contractRequest struct {
	Number         string  `json:"number" validate:"required,max=64"`
	CounterpartyID string  `json:"counterparty_id" validate:"required"`
	CommodityID    string  `json:"commodity_id" validate:"required"`
	CurrencyID     string  `json:"currency_id" validate:"required"`
	Price          string  `json:"price" validate:"required"`
	Quantity       string  `json:"quantity" validate:"required"`
	UnitOfMeasure  string  `json:"unit_of_measure" validate:"max=16"`
	PaymentDays    int     `json:"payment_days" validate:"min=0,max=365"`
	DeliveryStart  *string `json:"delivery_start"`
	DeliveryEnd    *string `json:"delivery_end"`
}

// POST /api/ledger/contracts
func (h *LedgerHandler) CreateContract(c *gin.Context) {
	var req contractRequest
	if !bindAndValidate(c, &req) {
		return
	}

	deliveryStart, ok := parseDate(c, req.DeliveryStart)
	if !ok {
		return
	}
	deliveryEnd, ok := parseDate(c, req.DeliveryEnd)
	if !ok {
		return
	}
	if deliveryStart != nil && deliveryEnd != nil && deliveryEnd.Before(*deliveryStart) {
		response.Error(c, appErrors.NewBadRequest("delivery_end must not precede delivery_start"))
		return
	}

	contract := &models.Contract{
		Number:         req.Number,
		CounterpartyID: req.CounterpartyID,
		CommodityID:    req.CommodityID,
		CurrencyID:     req.CurrencyID,
		Price:          req.Price,
		Quantity:       req.Quantity,
		UnitOfMeasure:  req.UnitOfMeasure,
		PaymentDays:    req.PaymentDays,
		DeliveryStart:  deliveryStart,
		DeliveryEnd:    deliveryEnd,
	}
	if err := h.ledger.CreateContract(c.Request.Context(), contract, middleware.CurrentUser(c)); err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, contract)
}

// GET /api/ledger/contracts
func (h *LedgerHandler) ListContracts(c *gin.Context) {
	filters := services.ContractFilters{
		Status:         c.Query("status"),
		CounterpartyID: c.Query("counterparty_id"),
		CommodityID:    c.Query("commodity_id"),
		Page:           parseIntQuery(c, "page", 1),
		PageSize:       parseIntQuery(c, "per_page", 50),
	}

	results, total, err := h.ledger.ListContracts(c.Request.Context(), filters)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	perPage := filters.PageSize
	if perPage <= 0 {
		perPage = 50
	}
	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}

	response.SuccessWithMeta(c, http.StatusOK, results, &response.Meta{
		Page:       filters.Page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}

// GET /api/ledger/contracts/:id
func (h *LedgerHandler) GetContract(c *gin.Context) {
	contract, err := h.ledger.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusOK, contract)
}

type contractUpdateRequest struct {
	Price         *string `json:"price"`
	Quantity      *string `json:"quantity"`
	UnitOfMeasure *string `json:"unit_of_measure" validate:"omitempty,max=16"`
	PaymentDays   *int    `json:"payment_days" validate:"omitempty,min=0,max=365"`
}

// PUT /api/ledger/contracts/:id
func (h *LedgerHandler) UpdateContract(c *gin.Context) {
	var req contractUpdateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	updates := map[string]any{}
	putString(updates, "price", req.Price)
	putString(updates, "quantity", req.Quantity)
	putString(updates, "unit_of_measure", req.UnitOfMeasure)
	if req.PaymentDays != nil {
		updates["payment_days"] = *req.PaymentDays
	}

	contract, err := h.ledger.UpdateContract(c.Request.Context(), c.Param("id"), updates, middleware.CurrentUser(c))
	if err != nil {
		ledgerError(c, err)
		return
	}

	contract, err = h.ledger.GetContract(c.Request.Context(), contract.ID)
	if err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusOK, contract)
}

type contractStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft open executed cancelled"`
}

// POST /api/ledger/contracts/:id/status
func (h *LedgerHandler) UpdateContractStatus(c *gin.Context) {
	var req contractStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	contract, err := h.ledger.UpdateContractStatus(c.Request.Context(), c.Param("id"), req.Status, middleware.CurrentUser(c))
	if err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusOK, contract)
}

// DELETE /api/ledger/contracts/:id
func (h *LedgerHandler) DeleteContract(c *gin.Context) {
	if err := h.ledger.DeleteContract(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c)); err != nil {
		ledgerError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/ledger/dashboard
func (h *LedgerHandler) Dashboard(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// --- helpers ---

func putString(updates map[string]any, key string, value *string) {
	if value != nil {
		updates[key] = *value
	}
}

func putBool(updates map[string]any, key string, value *bool) {
	if value != nil {
		updates[key] = *value
	}
}

func parseDate(c *gin.Context, value *string) (*time.Time, bool) {
	if value == nil || *value == "" {
		return nil, true
	}
	parsed, err := time.Parse("2006-01-02", *value)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("dates must use the YYYY-MM-DD format"))
		return nil, false
	}
	return &parsed, true
}
