package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"clipforge/internal/httpkit"
	"clipforge/internal/render"
)

type CreateRenderRequest struct {
	VideoParams map[string]any `json:"video_params"`
	Template    map[string]any `json:"template"`
}

func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}
	if req.VideoParams == nil || req.Template == nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "missing video parameters or template", nil)
		return
	}

	params, err := json.Marshal(map[string]any{
		"video_params": req.VideoParams,
		"template":     req.Template,
	})
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid render params", nil)
		return
	}

	// Submit never fails for backend errors; those surface as job
	// state the same way every other outcome does.
	job, err := h.store.Submit(ctx, params)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	h.enqueueForPolling(r, job)

	httpkit.WriteJSON(w, 201, map[string]any{"render": renderView(job)})
}

func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	renderID := chi.URLParam(r, "renderId")

	job, err := h.store.GetStatus(ctx, renderID)
	if err != nil {
		if render.IsNotFound(err) {
			httpkit.WriteErr(w, 404, "RENDER_NOT_FOUND", "render not found", map[string]any{"render_id": renderID})
			return
		}
		httpkit.WriteError(w, err)
		return
	}

	httpkit.WriteJSON(w, 200, map[string]any{"render": renderView(job)})
}

func (h *Handler) DownloadRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	renderID := chi.URLParam(r, "renderId")

	job, err := h.store.GetStatus(ctx, renderID)
	if err != nil {
		if render.IsNotFound(err) {
			httpkit.WriteErr(w, 404, "RENDER_NOT_FOUND", "render not found", map[string]any{"render_id": renderID})
			return
		}
		httpkit.WriteError(w, err)
		return
	}

	switch job.State {
	case render.StateCompleted:
		if isAbsoluteURL(job.ResultLocation) {
			http.Redirect(w, r, job.ResultLocation, http.StatusFound)
			return
		}
		h.streamArtifact(w, r, job)

	case render.StateFailed:
		httpkit.WriteErr(w, 404, "RENDER_NOT_AVAILABLE", "render failed, no artifact", map[string]any{
			"render_id":      renderID,
			"failure_reason": job.FailureReason,
		})

	default:
		// Still rendering: accepted but not ready.
		httpkit.WriteJSON(w, 202, map[string]any{"render": renderView(job)})
	}
}

func (h *Handler) streamArtifact(w http.ResponseWriter, r *http.Request, job *render.Job) {
	rc, contentType, size, err := h.sp.GetObject(r.Context(), job.ResultLocation)
	if err != nil {
		h.log.FromContext(r.Context()).WithJobID(job.ID).WithError(err).Warn("artifact fetch failed",
			"object_key", job.ResultLocation,
		)
		httpkit.WriteErr(w, 404, "RENDER_NOT_AVAILABLE", "render artifact not available", map[string]any{"render_id": job.ID})
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+job.ID+`.mp4"`)
	_, _ = io.Copy(w, rc)
}

// enqueueForPolling hands a rendering job to the worker queue. Losing
// the enqueue is not fatal: status requests reconcile on their own.
func (h *Handler) enqueueForPolling(r *http.Request, job *render.Job) {
	if h.rdb == nil || job.State != render.StateRendering {
		return
	}
	if err := h.rdb.LPush(r.Context(), h.queueName, job.ID).Err(); err != nil {
		h.log.FromContext(r.Context()).WithJobID(job.ID).WithError(err).Warn("queue push failed")
	}
}

func renderView(job *render.Job) map[string]any {
	v := map[string]any{
		"id":         job.ID,
		"state":      job.State,
		"created_at": job.CreatedAt,
	}
	switch job.State {
	case render.StateCompleted:
		v["result_location"] = job.ResultLocation
		v["completed_at"] = job.CompletedAt
	case render.StateFailed:
		v["failure_reason"] = job.FailureReason
		v["completed_at"] = job.CompletedAt
	default:
		v["progress"] = job.Progress
	}
	return v
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
