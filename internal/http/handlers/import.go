package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teamtriage/backend/internal/models"
	"github.com/teamtriage/backend/internal/service"
)

type HistoryImportResponse struct {
	Parsed      int                   `json:"parsed"`
	ParseErrors []string              `json:"parse_errors"`
	Ingest      service.IngestSummary `json:"ingest"`
}

// @Summary Import historical tickets
// @Description Upload a CSV of resolved tickets with their owning team and add them to the vector store
// @Tags history
// @Accept multipart/form-data
// @Produce json
// @Param history formData file true "history.csv"
// @Success 200 {object} HistoryImportResponse
// @Failure 400 {object} map[string]any
// @Router /api/history/import [post]
func (h *Handler) HistoryImport(c *gin.Context) {
	file, err := c.FormFile("history")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "history file required", nil)
		return
	}
	if !validateExt(file.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file must be .csv", nil)
		return
	}

	tickets, errs := parseHistoryCSV(file)
	if len(tickets) == 0 {
		writeError(c, http.StatusBadRequest, "CSV_PARSE_ERROR", "No usable rows", errs)
		return
	}

	resp := HistoryImportResponse{Parsed: len(tickets), ParseErrors: errs}
	if resp.ParseErrors == nil {
		resp.ParseErrors = []string{}
	}
	resp.Ingest = h.Ingestor.Ingest(c.Request.Context(), tickets)
	h.Logger.Info().
		Str("file", file.Filename).
		Int("parsed", resp.Parsed).
		Int("added", resp.Ingest.Added).
		Msg("history imported")
	c.JSON(http.StatusOK, resp)
}

// parseHistoryCSV reads one ticket per row. Rows without a key or team are
// reported and dropped.
func parseHistoryCSV(file *multipart.FileHeader) ([]models.HistoricalTicket, []string) {
	f, err := file.Open()
	if err != nil {
		return nil, []string{err.Error()}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		return nil, []string{"failed to read header"}
	}
	index := headerIndex(headers)
	var errors []string
	var out []models.HistoricalTicket

	line := 1
	for {
		rec, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			errors = append(errors, err.Error())
			continue
		}

		key := getFieldAny(rec, index, "key", "ticket_key", "issue key", "issue_key", "id")
		team := getFieldAny(rec, index, "team", "technical owner", "technical_owner", "owner")
		if key == "" || team == "" {
			errors = append(errors, fmt.Sprintf("line %d: key and team are required", line))
			continue
		}

		t := models.HistoricalTicket{
			Ticket: models.Ticket{
				Key:         key,
				Summary:     getFieldAny(rec, index, "summary", "title"),
				Description: getFieldAny(rec, index, "description", "body"),
				Components:  splitList(getFieldAny(rec, index, "components", "component")),
				Labels:      splitList(getFieldAny(rec, index, "labels", "label")),
				IssueType:   getFieldAny(rec, index, "issue_type", "issue type", "issuetype", "type"),
				Priority:    getField(rec, index, "priority"),
				Status:      getField(rec, index, "status"),
			},
			Team: team,
		}
		if created := getFieldAny(rec, index, "created", "created_at"); created != "" {
			t.CreatedAt = parseCreated(created)
		}
		out = append(out, t)
	}
	return out, errors
}

func parseCreated(v string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func headerIndex(headers []string) map[string]int {
	idx := map[string]int{}
	for i, h := range headers {
		idx[normalizeHeader(h)] = i
	}
	return idx
}

func getField(rec []string, idx map[string]int, name string) string {
	pos, ok := idx[name]
	if !ok || pos >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[pos])
}

func getFieldAny(rec []string, idx map[string]int, names ...string) string {
	for _, name := range names {
		if v := getField(rec, idx, normalizeHeader(name)); v != "" {
			return v
		}
	}
	return ""
}

func normalizeHeader(h string) string {
	h = strings.ReplaceAll(h, "\ufeff", "")
	return strings.ToLower(strings.TrimSpace(h))
}

func splitList(raw string) []string {
	raw = strings.ReplaceAll(raw, ";", ",")
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateExt(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
