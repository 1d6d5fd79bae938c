package httpApi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/go-chi/chi/v5"
)

const (
	defaultSnapshotDays = 30
	defaultJobsLimit    = 50
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := model.TransactionQuery{Symbol: q.Get("symbol")}

	if raw := q.Get("type"); raw != "" {
		t, err := model.ParseTransactionType(raw)
		if err != nil {
			h.handleError(w, r, BadRequest(err.Error()))
			return
		}
		query.Type = &t
	}

	year, err := optionalYear(q.Get("year"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	query.Year = year

	txs, err := h.ledger.List(r.Context(), userIDFromCtx(r.Context()), query)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, txs, http.StatusOK)
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in model.TransactionInput
	if err := decodeJSON(r, &in); err != nil {
		h.handleError(w, r, err)
		return
	}

	res, err := h.ledger.Create(r.Context(), userIDFromCtx(r.Context()), in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, res, http.StatusCreated)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	t, err := h.ledger.Get(r.Context(), userIDFromCtx(r.Context()), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, t, http.StatusOK)
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var in model.TransactionInput
	if err = decodeJSON(r, &in); err != nil {
		h.handleError(w, r, err)
		return
	}

	res, err := h.ledger.Update(r.Context(), userIDFromCtx(r.Context()), id, in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, res, http.StatusOK)
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if err = h.ledger.Delete(r.Context(), userIDFromCtx(r.Context()), id); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.maxImportBytes)
	defer body.Close()

	res, err := h.ledger.ImportCSV(r.Context(), userIDFromCtx(r.Context()), body)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, res, http.StatusOK)
}

func (h *Handler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	buf := &bytes.Buffer{}
	if err := h.ledger.ExportCSV(r.Context(), userIDFromCtx(r.Context()), buf); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) GetHoldings(w http.ResponseWriter, r *http.Request) {
	summary, err := h.portfolio.Holdings(r.Context(), userIDFromCtx(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, summary, http.StatusOK)
}

func (h *Handler) PutOpeningBalance(w http.ResponseWriter, r *http.Request) {
	var in model.OpeningBalanceInput
	if err := decodeJSON(r, &in); err != nil {
		h.handleError(w, r, err)
		return
	}

	holding, err := h.portfolio.OpeningBalance(r.Context(), userIDFromCtx(r.Context()), chi.URLParam(r, "symbol"), in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, holding, http.StatusOK)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) PatchHoldingNotes(w http.ResponseWriter, r *http.Request) {
	var in notesRequest
	if err := decodeJSON(r, &in); err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.portfolio.UpdateNotes(r.Context(), userIDFromCtx(r.Context()), chi.URLParam(r, "symbol"), in.Notes); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetRealizedGains(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	year, err := optionalYear(q.Get("year"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	gains, err := h.portfolio.RealizedGainsBySymbol(r.Context(), userIDFromCtx(r.Context()), q.Get("stock"), year)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, gains, http.StatusOK)
}

func (h *Handler) DownloadPortfolioReport(w http.ResponseWriter, r *http.Request) {
	fileBytes, ext, err := h.portfolio.PortfolioReport(r.Context(), userIDFromCtx(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="portfolio%s"`, ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(fileBytes)
}

func (h *Handler) SharePortfolioReport(w http.ResponseWriter, r *http.Request) {
	link, err := h.portfolio.SharePortfolioReport(r.Context(), userIDFromCtx(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, map[string]string{"link": link}, http.StatusOK)
}

func (h *Handler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	y, m, d := h.now().Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -defaultSnapshotDays)

	var err error
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(model.DateLayout, raw); err != nil {
			h.handleError(w, r, BadRequest("from must be YYYY-MM-DD"))
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(model.DateLayout, raw); err != nil {
			h.handleError(w, r, BadRequest("to must be YYYY-MM-DD"))
			return
		}
	}

	snapshots, err := h.portfolio.Snapshots(r.Context(), userIDFromCtx(r.Context()), from, to)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, snapshots, http.StatusOK)
}

func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Enqueue(r.Context(), model.JobType(chi.URLParam(r, "job")))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, job, http.StatusAccepted)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "job"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, job, http.StatusOK)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var jobType *model.JobType
	if raw := q.Get("type"); raw != "" {
		t := model.JobType(raw)
		jobType = &t
	}

	limit := defaultJobsLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.handleError(w, r, BadRequest("limit must be a positive number"))
			return
		}
		limit = n
	}

	jobs, err := h.jobs.List(r.Context(), jobType, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, jobs, http.StatusOK)
}

type linkResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) CreateTelegramLink(w http.ResponseWriter, r *http.Request) {
	code, expiresAt, err := h.users.IssueLinkCode(r.Context(), userIDFromCtx(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respond(w, r, linkResponse{Code: code, ExpiresAt: expiresAt}, http.StatusCreated)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return BadRequest("invalid json body: " + err.Error())
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequest("id must be a positive number")
	}
	return id, nil
}

func optionalYear(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 9999 {
		return nil, BadRequest("year must be a four digit number")
	}
	return &year, nil
}
