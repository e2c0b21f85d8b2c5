package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"carimages/internal/fetch"
	"carimages/internal/run"
)

type createRunRequest struct {
	Catalogs []string `json:"catalogs"`
	Archive  bool     `json:"archive"`
}

type runResponse struct {
	ID         string          `json:"id"`
	Status     run.Status      `json:"status"`
	Catalogs   []string        `json:"catalogs"`
	Total      int             `json:"total"`
	CreatedAt  string          `json:"created_at"`
	FinishedAt string          `json:"finished_at,omitempty"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	Bytes      int64           `json:"bytes"`
	Outcomes   []fetch.Outcome `json:"outcomes,omitempty"`
	Error      string          `json:"error,omitempty"`
	ArchiveURL string          `json:"archive_url,omitempty"`
}

type API struct {
	runManager *run.Manager
}

func NewAPI(runManager *run.Manager) *API {
	return &API{runManager: runManager}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/catalogs", a.ListCatalogs)
		api.POST("/runs", a.CreateRun)
		api.GET("/runs", a.ListRuns)
		api.GET("/runs/:id", a.GetRun)
		api.GET("/runs/:id/archive", a.DownloadArchive)
	}
}

// RegisterMetrics exposes a Prometheus handler at /metrics.
func RegisterMetrics(router *gin.Engine, handler http.Handler) {
	router.GET("/metrics", gin.WrapH(handler))
}

// ListCatalogs returns the catalogs found in the catalog directory
func (a *API) ListCatalogs(c *gin.Context) {
	infos, err := a.runManager.Catalogs()
	if err != nil {
		log.Error().Err(err).Msg("list catalogs failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"catalogs": infos})
}

// CreateRun starts a batch over the requested catalogs
func (a *API) CreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("invalid create run request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	created, err := a.runManager.CreateRun(req.Catalogs, req.Archive)
	if err != nil {
		status := statusForError(err)
		log.Warn().Strs("catalogs", req.Catalogs).Err(err).Int("status", status).Msg("failed to create run")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("run_id", created.ID).Strs("catalogs", created.Catalogs).Msg("run created")
	c.JSON(http.StatusAccepted, toRunResponse(created, true))
}

// ListRuns returns all known runs, newest first, without per-task outcomes
func (a *API) ListRuns(c *gin.Context) {
	runs := a.runManager.ListRuns()
	resp := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		resp = append(resp, toRunResponse(r, false))
	}
	c.JSON(http.StatusOK, gin.H{"runs": resp})
}

// GetRun returns run status
func (a *API) GetRun(c *gin.Context) {
	id := c.Param("id")
	if found, ok := a.runManager.GetRun(id); ok {
		c.JSON(http.StatusOK, toRunResponse(found, true))
		return
	}
	log.Warn().Str("run_id", id).Msg("run not found on get")
	c.JSON(http.StatusNotFound, gin.H{"error": run.ErrRunNotFound.Error()})
}

// DownloadArchive serves the archive file once the run is done
func (a *API) DownloadArchive(c *gin.Context) {
	id := c.Param("id")
	found, ok := a.runManager.GetRun(id)
	if !ok {
		log.Warn().Str("run_id", id).Msg("run not found on download")
		c.JSON(http.StatusNotFound, gin.H{"error": run.ErrRunNotFound.Error()})
		return
	}
	if found.Status != run.StatusDone || found.ArchivePath == "" {
		log.Warn().Str("run_id", id).Str("status", string(found.Status)).Msg("archive not ready to download")
		c.JSON(http.StatusBadRequest, gin.H{"error": "archive not ready"})
		return
	}
	log.Info().Str("run_id", id).Str("path", found.ArchivePath).Msg("serving archive download")
	c.FileAttachment(found.ArchivePath, "carimages-"+found.ID+".zip")
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, run.ErrNoCatalogs), errors.Is(err, run.ErrUnknownCatalog):
		return http.StatusBadRequest
	case errors.Is(err, run.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toRunResponse(r run.Run, withOutcomes bool) runResponse {
	resp := runResponse{
		ID:        r.ID,
		Status:    r.Status,
		Catalogs:  r.Catalogs,
		Total:     r.Total,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		Bytes:     r.Bytes,
		Error:     r.Error,
	}
	if r.FinishedAt != nil {
		resp.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	if withOutcomes {
		resp.Outcomes = r.Outcomes
	}
	// Link is returned as soon as an archive was requested; it becomes
	// downloadable once the run is done.
	if r.Archive {
		resp.ArchiveURL = "/api/v1/runs/" + r.ID + "/archive"
	}
	return resp
}
