package voucher

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/theopen-institute/payroll/internal/payroll/shared"
	"github.com/theopen-institute/payroll/internal/platform/httpx"
)

// Handler exposes the voucher API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) createVoucher(w http.ResponseWriter, r *http.Request) {
	var req CreateVoucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	v, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, "create voucher", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVoucherResponse(v))
}

func (h *Handler) getVoucher(w http.ResponseWriter, r *http.Request) {
	id, ok := h.voucherID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "load voucher", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoucherResponse(v))
}

func (h *Handler) listVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list vouchers", err)
		return
	}
	out := make([]VoucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		out = append(out, toVoucherResponse(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) fillRoster(w http.ResponseWriter, r *http.Request) {
	id, ok := h.voucherID(w, r)
	if !ok {
		return
	}
	v, warnings, err := h.service.FillRoster(r.Context(), id)
	if err != nil {
		h.respondError(w, "fill roster", err)
		return
	}
	httpx.JSON(w, http.StatusOK, FillRosterResponse{
		Voucher:  toVoucherResponse(v),
		Warnings: warnings,
	})
}

func (h *Handler) createSlips(w http.ResponseWriter, r *http.Request) {
	id, ok := h.voucherID(w, r)
	if !ok {
		return
	}
	res, err := h.service.CreateMissingSlips(r.Context(), id)
	if err != nil {
		h.respondError(w, "create slips", err)
		return
	}
	status := http.StatusOK
	if res.Dispatched {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, CreateSlipsResponse{
		Dispatched: res.Dispatched,
		Created:    res.Created,
		Linked:     res.Linked,
		Summary:    res.Summary,
	})
}

func (h *Handler) submitSlips(w http.ResponseWriter, r *http.Request) {
	id, ok := h.voucherID(w, r)
	if !ok {
		return
	}
	res, err := h.service.SubmitSlips(r.Context(), id)
	if errors.Is(err, shared.ErrNoSubmittedSlips) {
		// Nothing posted, but the counts and per-slip reasons still go back.
		httpx.JSON(w, http.StatusUnprocessableEntity, toSubmitResponse(res))
		return
	}
	if err != nil {
		h.respondError(w, "submit slips", err)
		return
	}
	status := http.StatusOK
	if res.Dispatched {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, toSubmitResponse(res))
}

func (h *Handler) cancelVoucher(w http.ResponseWriter, r *http.Request) {
	id, ok := h.voucherID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.respondError(w, "cancel voucher", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoucherResponse(v))
}

func (h *Handler) voucherID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "voucher id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrVoucherNotFound), errors.Is(err, shared.ErrSlipNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Invalid Status", err.Error())
	case errors.Is(err, shared.ErrCompanyRequired), errors.Is(err, shared.ErrPeriodRequired),
		errors.Is(err, shared.ErrNegativeNetPay), errors.Is(err, shared.ErrNoSubmittedSlips):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cannot Process", err.Error())
	case errors.Is(err, shared.ErrMissingComponentAccount), errors.Is(err, shared.ErrMissingInterestAccount),
		errors.Is(err, shared.ErrMissingPayableAccount), errors.Is(err, shared.ErrMissingRoundOffAccount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Missing Account Mapping", err.Error())
	case errors.Is(err, shared.ErrPostingAlreadyExists):
		httpx.Problem(w, http.StatusConflict, "Already Posted", err.Error())
	default:
		h.logger.Error(op+" failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
