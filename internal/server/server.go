// Package server は合成セッションを HTTP API として公開します。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shouni/gemini-composite-kit/pkg/composite"
	"github.com/shouni/gemini-composite-kit/pkg/domain"
	"github.com/shouni/gemini-composite-kit/pkg/generator"
	"github.com/shouni/gemini-composite-kit/pkg/session"
)

const (
	maxUploadBytes         = 25 << 20
	defaultGenerateTimeout = 240 * time.Second
)

// Options は Server の設定です。
type Options struct {
	// GenerateTimeout は1回の生成リクエストに許す時間です。
	GenerateTimeout time.Duration
	Logger          *slog.Logger
}

// Server はセッションとジェネレーターを束ねる HTTP ハンドラーです。
type Server struct {
	session         *session.Session
	gen             generator.ImageGenerator
	generateTimeout time.Duration
	logger          *slog.Logger
}

// New は Server を作成します。gen が nil の場合、生成 API は 503 を返します。
func New(sess *session.Session, gen generator.ImageGenerator, opts Options) (*Server, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = defaultGenerateTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		session:         sess,
		gen:             gen,
		generateTimeout: opts.GenerateTimeout,
		logger:          opts.Logger,
	}, nil
}

// Handler はルーティング済みの http.Handler を返します。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/select", s.handleSelect)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/overlays", s.handleAddOverlay)
	mux.HandleFunc("PATCH /api/overlays/{id}", s.handleUpdateOverlay)
	mux.HandleFunc("DELETE /api/overlays/{id}", s.handleRemoveOverlay)
	mux.HandleFunc("PUT /api/overlays/{id}/file", s.handleUploadOverlay)
	mux.HandleFunc("DELETE /api/overlays/{id}/file", s.handleClearOverlay)
	mux.HandleFunc("PUT /api/reference/photo", s.handleUploadReference)
	mux.HandleFunc("DELETE /api/reference/photo", s.handleClearReference)
	mux.HandleFunc("PATCH /api/reference", s.handleUpdateReference)
	mux.HandleFunc("GET /api/display", s.handleDisplay)
	mux.HandleFunc("GET /api/download", s.handleDownload)
	return withLogging(mux, s.logger)
}

// --- 生成 ---

type generateRequest struct {
	Prompt      string `json:"prompt"`
	Tier        string `json:"tier"`
	Count       int    `json:"count"`
	AspectRatio string `json:"aspectRatio"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "image generator is not configured"})
		return
	}
	var body generateRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	req := domain.GenerationRequest{
		Prompt:      body.Prompt,
		AspectRatio: body.AspectRatio,
		NumImages:   body.Count,
		Tier:        domain.Tier(strings.ToLower(strings.TrimSpace(body.Tier))),
	}
	if ref := s.session.Reference(); ref.Active() && ref.HasPhoto() {
		req.ReferencePhoto = ref.Photo
		req.ReferenceMIME = ref.PhotoMIME
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.generateTimeout)
	defer cancel()

	s.session.ClearGeneratedImages(ctx)
	set, err := s.gen.Generate(ctx, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "画像生成に失敗しました", "error", err)
		writeError(w, err)
		return
	}
	s.session.SetGeneratedImages(ctx, set.Images)
	writeJSON(w, http.StatusOK, newStateResponse(s.session.Snapshot()))
}

type selectRequest struct {
	Index int `json:"index"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body selectRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := s.session.Select(r.Context(), body.Index); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(s.session.Snapshot()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStateResponse(s.session.Snapshot()))
}

// --- オーバーレイ ---

func (s *Server) handleAddOverlay(w http.ResponseWriter, r *http.Request) {
	e, err := s.session.AddOverlay(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOverlayResponse(e))
}

// updateOverlayRequest は省略されたフィールドを現在の値のまま残します。
type updateOverlayRequest struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Scale  *float64 `json:"scale"`
	Source *string  `json:"source"`
}

func (s *Server) handleUpdateOverlay(w http.ResponseWriter, r *http.Request) {
	id, ok := overlayID(w, r)
	if !ok {
		return
	}
	var body updateOverlayRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	current, found := s.findOverlay(id)
	if !found {
		writeError(w, fmt.Errorf("%w: id=%d", domain.ErrOverlayNotFound, id))
		return
	}

	ctx := r.Context()
	if body.X != nil || body.Y != nil || body.Scale != nil {
		x, y, scale := current.X, current.Y, current.Scale
		if body.X != nil {
			x = *body.X
		}
		if body.Y != nil {
			y = *body.Y
		}
		if body.Scale != nil {
			scale = *body.Scale
		}
		if err := s.session.SetOverlayPlacement(ctx, id, x, y, scale); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.Source != nil {
		var err error
		if *body.Source == "" {
			err = s.session.ClearOverlaySource(ctx, id)
		} else {
			err = s.session.SetOverlaySource(ctx, id, *body.Source)
		}
		if err != nil {
			writeError(w, err)
			return
		}
	}

	updated, _ := s.findOverlay(id)
	writeJSON(w, http.StatusOK, newOverlayResponse(updated))
}

func (s *Server) handleRemoveOverlay(w http.ResponseWriter, r *http.Request) {
	id, ok := overlayID(w, r)
	if !ok {
		return
	}
	if err := s.session.RemoveOverlay(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadOverlay(w http.ResponseWriter, r *http.Request) {
	id, ok := overlayID(w, r)
	if !ok {
		return
	}
	data, ok := readUpload(w, r, "file")
	if !ok {
		return
	}
	if err := s.session.SetOverlaySourceBytes(r.Context(), id, data); err != nil {
		writeError(w, err)
		return
	}
	updated, _ := s.findOverlay(id)
	writeJSON(w, http.StatusOK, newOverlayResponse(updated))
}

func (s *Server) handleClearOverlay(w http.ResponseWriter, r *http.Request) {
	id, ok := overlayID(w, r)
	if !ok {
		return
	}
	if err := s.session.ClearOverlaySource(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) findOverlay(id int64) (domain.OverlayEntry, bool) {
	for _, e := range s.session.Snapshot().Overlays {
		if e.ID == id {
			return e, true
		}
	}
	return domain.OverlayEntry{}, false
}

// --- 参照写真 ---

func (s *Server) handleUploadReference(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r, "photo")
	if !ok {
		return
	}
	if err := s.session.SetReferencePhoto(r.Context(), data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(s.session.Snapshot()))
}

func (s *Server) handleClearReference(w http.ResponseWriter, r *http.Request) {
	_ = s.session.SetReferencePhoto(r.Context(), nil)
	w.WriteHeader(http.StatusNoContent)
}

type updateReferenceRequest struct {
	UsePhoto       *bool `json:"usePhoto"`
	UseStyle       *bool `json:"useStyle"`
	UseComposition *bool `json:"useComposition"`
	KeepOverlays   *bool `json:"keepOverlays"`
}

func (s *Server) handleUpdateReference(w http.ResponseWriter, r *http.Request) {
	var body updateReferenceRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	ctx := r.Context()
	if body.UsePhoto != nil {
		s.session.SetUsePhoto(ctx, *body.UsePhoto)
	}
	if body.UseStyle != nil || body.UseComposition != nil || body.KeepOverlays != nil {
		ref := s.session.Reference()
		style, comp, keep := ref.UseStyle, ref.UseComposition, ref.KeepOverlays
		if body.UseStyle != nil {
			style = *body.UseStyle
		}
		if body.UseComposition != nil {
			comp = *body.UseComposition
		}
		if body.KeepOverlays != nil {
			keep = *body.KeepOverlays
		}
		if err := s.session.SetReferenceFlags(ctx, style, comp, keep); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newStateResponse(s.session.Snapshot()))
}

// --- 出力 ---

type displayResponse struct {
	Source        string `json:"source,omitempty"`
	FromComposite bool   `json:"fromComposite"`
	Placeholder   bool   `json:"placeholder"`
	Message       string `json:"message,omitempty"`
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	d := s.session.Display()
	writeJSON(w, http.StatusOK, displayResponse{
		Source:        d.Source,
		FromComposite: d.FromComposite,
		Placeholder:   d.Placeholder,
		Message:       d.Message,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	dl, err := s.session.Download()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", dl.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Data)
}

// --- レスポンス ---

type apiError struct {
	Error string `json:"error"`
}

type overlayResponse struct {
	ID        int64   `json:"id"`
	HasSource bool    `json:"hasSource"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Scale     float64 `json:"scale"`
	Active    bool    `json:"active"`
}

func newOverlayResponse(e domain.OverlayEntry) overlayResponse {
	return overlayResponse{
		ID:        e.ID,
		HasSource: e.HasSource(),
		X:         e.X,
		Y:         e.Y,
		Scale:     e.Scale,
		Active:    e.Active(),
	}
}

type referenceResponse struct {
	UsePhoto       bool   `json:"usePhoto"`
	HasPhoto       bool   `json:"hasPhoto"`
	PhotoMIME      string `json:"photoMime,omitempty"`
	UseStyle       bool   `json:"useStyle"`
	UseComposition bool   `json:"useComposition"`
	KeepOverlays   bool   `json:"keepOverlays"`
}

type renderResponse struct {
	Generation uint64 `json:"generation"`
	Pending    bool   `json:"pending"`
	Ready      bool   `json:"ready"`
	Error      string `json:"error,omitempty"`
}

type stateResponse struct {
	ImageCount int               `json:"imageCount"`
	Selected   int               `json:"selected"`
	Overlays   []overlayResponse `json:"overlays"`
	Reference  referenceResponse `json:"reference"`
	Render     renderResponse    `json:"render"`
}

func newStateResponse(snap session.Snapshot) stateResponse {
	overlays := make([]overlayResponse, 0, len(snap.Overlays))
	for _, e := range snap.Overlays {
		overlays = append(overlays, newOverlayResponse(e))
	}
	resp := stateResponse{
		ImageCount: snap.Images.Len(),
		Selected:   snap.Images.Selected,
		Overlays:   overlays,
		Reference: referenceResponse{
			UsePhoto:       snap.Reference.UsePhoto,
			HasPhoto:       snap.Reference.HasPhoto(),
			PhotoMIME:      snap.Reference.PhotoMIME,
			UseStyle:       snap.Reference.UseStyle,
			UseComposition: snap.Reference.UseComposition,
			KeepOverlays:   snap.Reference.KeepOverlays,
		},
		Render: renderResponse{
			Generation: snap.Render.Generation,
			Pending:    snap.Render.Pending,
			Ready:      snap.Render.Composite != nil,
		},
	}
	if snap.Render.Err != nil {
		resp.Render.Error = snap.Render.Err.Message
	}
	return resp
}

// --- ヘルパー ---

func overlayID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid overlay id"})
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
		return false
	}
	return true
}

func readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return nil, false
	}
	file, _, err := r.FormFile(field)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing " + field})
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read " + field})
		return nil, false
	}
	return data, true
}

// statusFor はドメインエラーを HTTP ステータスに対応付けます。
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOverlayNotFound),
		errors.Is(err, composite.ErrNothingToDownload):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPlacement),
		errors.Is(err, domain.ErrIndexOutOfRange),
		errors.Is(err, session.ErrNotImage),
		errors.Is(err, generator.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrReferenceActive),
		errors.Is(err, session.ErrOverlayLimit),
		errors.Is(err, session.ErrNoReferencePhoto):
		return http.StatusConflict
	case errors.Is(err, generator.ErrBilling):
		return http.StatusPaymentRequired
	case errors.Is(err, generator.ErrInvalidAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), apiError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}
