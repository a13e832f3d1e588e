package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/ryan4259/r2-image-compressor/internal/config"
	"github.com/ryan4259/r2-image-compressor/internal/entities"
	"github.com/ryan4259/r2-image-compressor/internal/metrics"
	"github.com/ryan4259/r2-image-compressor/internal/naming"
	"github.com/ryan4259/r2-image-compressor/internal/pipeline"
	"github.com/ryan4259/r2-image-compressor/internal/r2"
	"github.com/ryan4259/r2-image-compressor/internal/tokens"
)

// downloadCacheTTL bounds how long proxied object bytes sit in redis.
const downloadCacheTTL = 10 * time.Minute

// Pipeline turns one upload into two stored derivatives.
type Pipeline interface {
	Process(ctx context.Context, up pipeline.Upload) (*pipeline.Result, error)
}

// Records persists and lists completed uploads.
type Records interface {
	InsertImage(ctx context.Context, img entities.Image) (entities.Image, error)
	ListImages(ctx context.Context, ownerID *string, limit int) ([]entities.Image, error)
	Ping(ctx context.Context) error
}

// ObjectGetter reads stored derivative bytes back out for the download proxy.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// ByteCache fronts the object store on the download path.
type ByteCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Ping(ctx context.Context) error
}

// TokenManager issues and verifies download grants.
type TokenManager interface {
	Issue(key string) (string, time.Time, error)
	Verify(token string) (string, error)
}

type Handler struct {
	pipe      Pipeline
	records   Records
	objects   ObjectGetter
	cache     ByteCache
	tokens    TokenManager
	cfg       *config.Config
	validator *validator.Validate
}

func New(pipe Pipeline, records Records, objects ObjectGetter, cache ByteCache, tm TokenManager, cfg *config.Config) *Handler {
	return &Handler{
		pipe:      pipe,
		records:   records,
		objects:   objects,
		cache:     cache,
		tokens:    tm,
		cfg:       cfg,
		validator: validator.New(),
	}
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	// One MiB of slack on top of the file cap so multipart framing does not
	// trip the transport limit before the validator rules on the file size.
	r.Body = http.MaxBytesReader(w, r.Body, (h.cfg.Upload.MaxUploadMB+1)<<20)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	file, fh, err := r.FormFile("image")
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			writeJSONError(w, `missing image file: form field key should be "image"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	params := UploadImageParams{
		OwnerID: r.Form.Get("ownerId"),
	}
	if err := h.validator.Struct(params); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, "failed to read uploaded file", http.StatusInternalServerError)
		return
	}

	declared := fh.Header.Get("Content-Type")
	if (declared == "" || declared == "application/octet-stream") && len(data) > 0 {
		// The client did not say what it is sending; sniff the bytes instead.
		declared = mimetype.Detect(data).String()
	}

	start := time.Now()
	res, err := h.pipe.Process(r.Context(), pipeline.Upload{
		OriginalName: fh.Filename,
		ContentType:  declared,
		Data:         data,
		OwnerID:      params.OwnerID,
	})
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	metrics.UploadsTotal.WithLabelValues("created").Inc()
	metrics.FullDerivativeBytes.Observe(float64(res.Bytes))

	h.recordUpload(r.Context(), fh.Filename, params.OwnerID, res)

	writeJSON(w, http.StatusCreated, UploadImageResponse{
		Success:  true,
		FullKey:  res.FullKey,
		ThumbKey: res.ThumbKey,
		FullURL:  h.publicURL(res.FullKey),
		ThumbURL: h.publicURL(res.ThumbKey),
	})
}

func (h *Handler) writePipelineError(w http.ResponseWriter, err error) {
	stage := "unknown"
	var se *pipeline.StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}
	metrics.UploadFailures.WithLabelValues(stage).Inc()

	if pipeline.ClientError(err) {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		msg := err.Error()
		if se != nil {
			msg = se.Err.Error()
		}
		writeJSONError(w, msg, http.StatusBadRequest)
		return
	}

	metrics.UploadsTotal.WithLabelValues("failed").Inc()
	log.Error().Err(err).Str("stage", stage).Msg("upload pipeline failed")
	sentry.CaptureException(err)
	// Internal details stay in the logs.
	writeJSONError(w, "image processing failed", http.StatusInternalServerError)
}

// recordUpload files the bookkeeping row. The derivatives are already
// persisted at this point, so a record failure is logged rather than turned
// into a client-facing error that would provoke a duplicate upload.
func (h *Handler) recordUpload(ctx context.Context, filename, ownerID string, res *pipeline.Result) {
	img := entities.Image{
		BaseName:  naming.SanitizeBase(filename),
		FullKey:   res.FullKey,
		ThumbKey:  res.ThumbKey,
		Width:     res.Width,
		Height:    res.Height,
		SizeBytes: res.Bytes,
	}
	if ownerID != "" {
		img.OwnerID = &ownerID
	}
	if _, err := h.records.InsertImage(ctx, img); err != nil {
		log.Error().Err(err).Str("full_key", res.FullKey).Msg("failed to record upload")
		sentry.CaptureException(err)
	}
}

func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		writeJSONError(w, "key is required", http.StatusBadRequest)
		return
	}

	token, expiresAt, err := h.tokens.Issue(req.Key)
	if err != nil {
		if errors.Is(err, tokens.ErrKeyNotAllowed) {
			writeJSONError(w, "key is not downloadable", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("failed to issue download token")
		writeJSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	metrics.TokensIssued.Inc()
	writeJSON(w, http.StatusOK, IssueTokenResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (h *Handler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, "token is required", http.StatusBadRequest)
		return
	}

	key, err := h.tokens.Verify(token)
	if err != nil {
		writeJSONError(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	source := "cache"
	contentType := "image/webp"

	data, err := h.cache.Get(ctx, key)
	if err != nil {
		// Any cache failure is a miss; the bucket is the source of truth.
		source = "store"
		var fetchedType string
		data, fetchedType, err = h.objects.Get(ctx, key)
		if err != nil {
			if errors.Is(err, r2.ErrObjectNotFound) {
				writeJSONError(w, "object not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("key", key).Msg("failed to fetch object")
			sentry.CaptureException(err)
			writeJSONError(w, "failed to fetch object", http.StatusInternalServerError)
			return
		}
		if fetchedType != "" {
			contentType = fetchedType
		}
		if err := h.cache.Store(ctx, key, downloadCacheTTL, data); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache object")
		}
	}

	metrics.DownloadsTotal.WithLabelValues(source).Inc()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=600")
	_, _ = w.Write(data)
}

func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	var ownerID *string
	if owner := r.URL.Query().Get("owner"); owner != "" {
		ownerID = &owner
	}

	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	images, err := h.records.ListImages(r.Context(), ownerID, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list images")
		writeJSONError(w, "failed to list images", http.StatusInternalServerError)
		return
	}
	if images == nil {
		images = []entities.Image{}
	}

	writeJSON(w, http.StatusOK, ListImagesResponse{Success: true, Images: images})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbErr := h.records.Ping(ctx)
	redisErr := h.cache.Ping(ctx)

	if dbErr != nil || redisErr != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "degraded",
			DB:     errorString(dbErr),
			Redis:  errorString(redisErr),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (h *Handler) publicURL(key string) string {
	if h.cfg.R2.PublicBaseURL == "" {
		return ""
	}
	return h.cfg.R2.PublicBaseURL + "/" + key
}
