package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go-agreements/internal/models"
	"go-agreements/internal/repository"

	"github.com/gin-gonic/gin"
)

type eventLogView struct {
	TxHash       string                 `json:"tx_hash"`
	LogIndex     int                    `json:"log_index"`
	Sequence     uint64                 `json:"sequence"`
	Contract     string                 `json:"contract"`
	ContractName string                 `json:"contract_name"`
	Event        string                 `json:"event"`
	AgreementID  string                 `json:"agreement_id,omitempty"`
	Fields       map[string]interface{} `json:"fields"`
	BlockTime    uint64                 `json:"block_time"`
}

func eventLogViews(rows []*models.EventLog) []eventLogView {
	out := make([]eventLogView, 0, len(rows))
	for _, r := range rows {
		var fields map[string]interface{}
		_ = json.Unmarshal([]byte(r.Data), &fields)
		out = append(out, eventLogView{
			TxHash:       r.TxHash,
			LogIndex:     r.LogIndex,
			Sequence:     r.Sequence,
			Contract:     r.Contract,
			ContractName: r.ContractName,
			Event:        r.EventName,
			AgreementID:  r.AgreementID,
			Fields:       fields,
			BlockTime:    r.BlockTime,
		})
	}
	return out
}

func (h *ProtocolHandler) requireEventLog(c *gin.Context) bool {
	if h.eventLogs == nil {
		respondWithError(c, http.StatusServiceUnavailable, "EventLogDisabled", "no database configured for the event log", nil)
		return false
	}
	return true
}

// ListEventsHandler GET /api/events?contract=&event=&agreement_id=&tx_hash=&page=&limit=
func (h *ProtocolHandler) ListEventsHandler(c *gin.Context) {
	if !h.requireEventLog(c) {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter := repository.EventLogFilter{
		Contract:    c.Query("contract"),
		EventName:   c.Query("event"),
		AgreementID: c.Query("agreement_id"),
		TxHash:      c.Query("tx_hash"),
	}
	rows, total, err := h.eventLogs.FindEvents(c.Request.Context(), filter, page, limit)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, "DatabaseError", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"events":  eventLogViews(rows),
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// TransactionEventsHandler GET /api/events/tx/:hash
func (h *ProtocolHandler) TransactionEventsHandler(c *gin.Context) {
	if !h.requireEventLog(c) {
		return
	}
	hash, err := parseHash("hash", c.Param("hash"))
	if fail(c, err) {
		return
	}
	rows, err := h.eventLogs.FindByTxHash(c.Request.Context(), hash.Hex())
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, "DatabaseError", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tx_hash": hash.Hex(), "events": eventLogViews(rows)})
}

// AgreementEventsHandler GET /api/agreements/:id/events
func (h *ProtocolHandler) AgreementEventsHandler(c *gin.Context) {
	if !h.requireEventLog(c) {
		return
	}
	id, err := parseHash("id", c.Param("id"))
	if fail(c, err) {
		return
	}
	rows, err := h.eventLogs.FindByAgreement(c.Request.Context(), id.Hex())
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, "DatabaseError", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "agreement_id": id.Hex(), "events": eventLogViews(rows)})
}
