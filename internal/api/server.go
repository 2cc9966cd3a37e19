package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"scholira/internal/consult"
	"scholira/internal/model"
	"scholira/internal/scheduler"
	"scholira/internal/search"
	"scholira/internal/storage"
	"scholira/internal/tracker"
)

const maxBodyBytes = 1 << 20

// Searcher 抽象搜索编排器，search.Service 满足该接口。
type Searcher interface {
	SearchScholarships(ctx context.Context, params model.SearchParams) search.SlotState[model.SearchResult]
	SearchCourses(ctx context.Context, params model.CourseSearchParams) search.SlotState[model.CourseSearchResult]
	Scholarships() search.SlotState[model.SearchResult]
	Courses() search.SlotState[model.CourseSearchResult]
	Recommend(ctx context.Context, profile model.UserProfile, filters model.ScholarshipFilters) (search.Dashboard, error)
	AutoRecommend(ctx context.Context, profile model.UserProfile, filters model.ScholarshipFilters) (search.Dashboard, bool)
}

// Profiles 抽象资料存储，profile.Store 满足该接口。
type Profiles interface {
	Profile() model.UserProfile
	Filters() model.ScholarshipFilters
	SaveProfile(ctx context.Context, p model.UserProfile) error
	SaveFilters(ctx context.Context, f model.ScholarshipFilters) error
}

// Tracker 抽象收藏服务。
type Tracker interface {
	Track(ctx context.Context, s model.Scholarship, status model.TrackedScholarshipStatus, matchScore *int) (*model.TrackedScholarship, error)
	UpdateStatus(ctx context.Context, id string, status model.TrackedScholarshipStatus) (*model.TrackedScholarship, error)
	List(ctx context.Context) ([]model.TrackedScholarship, error)
	Remove(ctx context.Context, id string) error
}

// Consultant 抽象咨询对话服务。
type Consultant interface {
	Send(ctx context.Context, text string) (*model.ChatMessage, error)
	History(ctx context.Context) ([]model.ChatMessage, error)
	Clear(ctx context.Context) error
}

// Refresher 抽象推荐刷新调度。
type Refresher interface {
	RunOnce(ctx context.Context) (int, error)
}

// Deps 汇总 Handler 依赖，Refresher 可为空。
type Deps struct {
	Search    Searcher
	Profiles  Profiles
	Tracker   Tracker
	Consult   Consultant
	Refresher Refresher
	Logger    *log.Logger
}

type handler struct {
	Deps
	validate *validator.Validate
}

type dashboardResponse struct {
	search.Dashboard
	ProfileComplete bool `json:"profileComplete"`
	Triggered       bool `json:"triggered"`
}

type profileResponse struct {
	model.UserProfile
	Complete bool `json:"complete"`
}

type trackRequest struct {
	Scholarship model.Scholarship `json:"scholarship"`
	Status      string            `json:"status"`
	MatchScore  *int              `json:"matchScore"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type chatRequest struct {
	Message string `json:"message" validate:"required"`
}

type chatMessageView struct {
	model.ChatMessage
	ContentHTML string `json:"content_html,omitempty"`
}

// NewHandler 构造 HTTP 多路复用器。
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = log.New(os.Stdout, "[api] ", log.LstdFlags)
	}
	h := &handler{Deps: deps, validate: newValidator()}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "scholira api"})
	})

	mux.HandleFunc("POST /api/scholarships/search", h.searchScholarships)
	mux.HandleFunc("GET /api/scholarships", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.Search.Scholarships())
	})
	mux.HandleFunc("POST /api/courses/search", h.searchCourses)
	mux.HandleFunc("GET /api/courses", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.Search.Courses())
	})

	mux.HandleFunc("GET /api/dashboard", h.dashboard)
	mux.HandleFunc("POST /api/dashboard/refresh", h.refreshDashboard)
	mux.HandleFunc("POST /api/dashboard/digest", h.digest)

	mux.HandleFunc("GET /api/profile", h.getProfile)
	mux.HandleFunc("PUT /api/profile", h.putProfile)
	mux.HandleFunc("GET /api/filters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.Profiles.Filters())
	})
	mux.HandleFunc("PUT /api/filters", h.putFilters)

	mux.HandleFunc("GET /api/tracked", h.listTracked)
	mux.HandleFunc("POST /api/tracked", h.createTracked)
	mux.HandleFunc("PATCH /api/tracked/{id}", h.updateTracked)
	mux.HandleFunc("DELETE /api/tracked/{id}", h.deleteTracked)

	mux.HandleFunc("GET /api/chat", h.chatHistory)
	mux.HandleFunc("POST /api/chat", h.chatSend)
	mux.HandleFunc("DELETE /api/chat", h.chatClear)

	return mux
}

func (h *handler) searchScholarships(w http.ResponseWriter, r *http.Request) {
	var params model.SearchParams
	if !h.decode(w, r, &params) {
		return
	}
	params = search.ResolveParams(params, h.Profiles.Profile())
	writeJSON(w, http.StatusOK, h.Search.SearchScholarships(r.Context(), params))
}

func (h *handler) searchCourses(w http.ResponseWriter, r *http.Request) {
	var params model.CourseSearchParams
	if !h.decode(w, r, &params) {
		return
	}
	writeJSON(w, http.StatusOK, h.Search.SearchCourses(r.Context(), params))
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	p := h.Profiles.Profile()
	d, ran := h.Search.AutoRecommend(r.Context(), p, h.Profiles.Filters())
	writeJSON(w, http.StatusOK, dashboardResponse{Dashboard: d, ProfileComplete: p.IsComplete(), Triggered: ran})
}

func (h *handler) refreshDashboard(w http.ResponseWriter, r *http.Request) {
	p := h.Profiles.Profile()
	d, err := h.Search.Recommend(r.Context(), p, h.Profiles.Filters())
	if errors.Is(err, search.ErrProfileIncomplete) {
		writeError(w, http.StatusConflict, "complete your profile first")
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{Dashboard: d, ProfileComplete: true, Triggered: true})
}

func (h *handler) digest(w http.ResponseWriter, r *http.Request) {
	if h.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresher disabled")
		return
	}
	created, err := h.Refresher.RunOnce(r.Context())
	if errors.Is(err, scheduler.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "a refresh is already running")
		return
	}
	if err != nil {
		h.Logger.Printf("digest failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"new": created})
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p := h.Profiles.Profile()
	writeJSON(w, http.StatusOK, profileResponse{UserProfile: p, Complete: p.IsComplete()})
}

func (h *handler) putProfile(w http.ResponseWriter, r *http.Request) {
	var p model.UserProfile
	if !h.decode(w, r, &p) {
		return
	}
	if err := h.Profiles.SaveProfile(r.Context(), p); err != nil {
		h.internalError(w, "save profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{UserProfile: p, Complete: p.IsComplete()})
}

func (h *handler) putFilters(w http.ResponseWriter, r *http.Request) {
	var f model.ScholarshipFilters
	if !h.decode(w, r, &f) {
		return
	}
	if err := h.Profiles.SaveFilters(r.Context(), f); err != nil {
		h.internalError(w, "save filters", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *handler) listTracked(w http.ResponseWriter, r *http.Request) {
	items, err := h.Tracker.List(r.Context())
	if err != nil {
		h.internalError(w, "list tracked", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) createTracked(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Scholarship.Name == "" {
		writeError(w, http.StatusBadRequest, "scholarship name is required")
		return
	}
	item, err := h.Tracker.Track(r.Context(), req.Scholarship, model.TrackedScholarshipStatus(req.Status), req.MatchScore)
	if err != nil {
		h.trackerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *handler) updateTracked(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.Tracker.UpdateStatus(r.Context(), r.PathValue("id"), model.TrackedScholarshipStatus(req.Status))
	if err != nil {
		h.trackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handler) deleteTracked(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.Remove(r.Context(), r.PathValue("id")); err != nil {
		h.trackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) chatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Consult.History(r.Context())
	if err != nil {
		h.internalError(w, "chat history", err)
		return
	}
	views := make([]chatMessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, h.chatView(m))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) chatSend(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}
	reply, err := h.Consult.Send(r.Context(), req.Message)
	if errors.Is(err, consult.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.Logger.Printf("chat send failed: %v", err)
		writeError(w, http.StatusBadGateway, search.Message(err))
		return
	}
	writeJSON(w, http.StatusOK, h.chatView(*reply))
}

func (h *handler) chatClear(w http.ResponseWriter, r *http.Request) {
	if err := h.Consult.Clear(r.Context()); err != nil {
		h.internalError(w, "chat clear", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) chatView(m model.ChatMessage) chatMessageView {
	v := chatMessageView{ChatMessage: m}
	if m.Role != model.ChatRoleModel {
		return v
	}
	html, err := consult.RenderMarkdown(m.Content)
	if err != nil {
		h.Logger.Printf("render message %s: %v", m.ID, err)
		return v
	}
	v.ContentHTML = html
	return v
}

func (h *handler) trackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "tracked scholarship not found")
	default:
		h.internalError(w, "tracker", err)
	}
}

func (h *handler) internalError(w http.ResponseWriter, op string, err error) {
	h.Logger.Printf("%s: %v", op, err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// decode 解析请求体并校验，失败时写入 400 并返回 false。
func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid payload"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+" is "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
