package main

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/bjaus/apikit"
)

// Shade is the finish of a widget.
type Shade string

const (
	ShadeLight Shade = "light"
	ShadeDark  Shade = "dark"
)

func (Shade) EnumValues() []string { return []string{string(ShadeLight), string(ShadeDark)} }

// Widget is the core domain entity.
type Widget struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Shade     Shade     `json:"shade"`
	Size      int       `json:"size"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type widgetStore struct {
	mu      sync.RWMutex
	widgets map[string]*Widget
	nextID  int
}

func newWidgetStore() *widgetStore {
	now := time.Now().UTC()
	return &widgetStore{
		widgets: map[string]*Widget{
			"1": {ID: "1", Name: "sprocket", Shade: ShadeDark, Size: 3, CreatedAt: now},
			"2": {ID: "2", Name: "gizmo", Shade: ShadeLight, Size: 7, CreatedAt: now},
		},
		nextID: 3,
	}
}

func (s *widgetStore) list(shade Shade) []Widget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Widget, 0, len(s.widgets))
	for _, w := range s.widgets {
		if shade != "" && w.Shade != shade {
			continue
		}
		out = append(out, *w)
	}
	slices.SortFunc(out, func(a, b Widget) int {
		x, _ := strconv.Atoi(a.ID)
		y, _ := strconv.Atoi(b.ID)
		return cmp.Compare(x, y)
	})
	return out
}

func (s *widgetStore) get(id string) (*Widget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.widgets[id]
	if !ok {
		return nil, false
	}
	cp := *w
	return &cp, true
}

func (s *widgetStore) create(in widgetInput) *Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &Widget{
		ID:        strconv.Itoa(s.nextID),
		Name:      in.Name,
		Shade:     in.Shade,
		Size:      in.Size,
		Tags:      in.Tags,
		CreatedAt: time.Now().UTC(),
	}
	if w.Shade == "" {
		w.Shade = ShadeLight
	}
	s.nextID++
	s.widgets[w.ID] = w
	cp := *w
	return &cp
}

func (s *widgetStore) replace(id string, in widgetInput) (*Widget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.widgets[id]
	if !ok {
		return nil, false
	}
	w.Name, w.Size, w.Tags = in.Name, in.Size, in.Tags
	if in.Shade != "" {
		w.Shade = in.Shade
	}
	cp := *w
	return &cp, true
}

func (s *widgetStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.widgets[id]; !ok {
		return false
	}
	delete(s.widgets, id)
	return true
}

type healthResp struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

type listWidgetsReq struct {
	Shade  Shade `query:"shade" doc:"Only widgets with this shade"`
	Limit  int   `query:"limit" doc:"Max results" default:"50" minimum:"1" maximum:"100"`
	Offset int   `query:"offset" doc:"Pagination offset" minimum:"0"`
}

type widgetPage struct {
	Items []Widget `json:"items"`
	Total int      `json:"total"`
}

type widgetInput struct {
	Name  string   `json:"name" doc:"Display name" minLength:"1" maxLength:"64" validate:"required"`
	Shade Shade    `json:"shade,omitempty"`
	Size  int      `json:"size" minimum:"1" maximum:"1000"`
	Tags  []string `json:"tags,omitempty" maxItems:"8" validate:"omitempty,dive,alphanum"`
}

type createWidgetReq struct {
	Body widgetInput
}

type widgetByID struct {
	ID string `path:"id" doc:"Widget ID"`
}

type replaceWidgetReq struct {
	ID   string `path:"id" doc:"Widget ID"`
	Body widgetInput
}

type widgetFileReq struct {
	ID   string `path:"id" doc:"Widget ID"`
	Path string `path:"path" doc:"File path inside the widget bundle"`
}

type eventsReq struct {
	Count int `query:"count" doc:"Number of ticks before the stream ends" default:"10" minimum:"1" maximum:"60"`
}

// widgetAPI holds the handlers for the widgets service.
type widgetAPI struct {
	store *widgetStore
	tick  time.Duration
}

func newWidgetAPI() *widgetAPI {
	return &widgetAPI{store: newWidgetStore(), tick: time.Second}
}

func widgetNotFound(id string) error {
	return apikit.ClientError(http.StatusNotFound, "WidgetNotFound", fmt.Sprintf("widget %s not found", id))
}

func (a *widgetAPI) health(_ context.Context, _ *apikit.Void) (*healthResp, error) {
	return &healthResp{Status: "ok", Time: time.Now().UTC()}, nil
}

func (a *widgetAPI) listWidgets(_ context.Context, req *listWidgetsReq) (*widgetPage, error) {
	items := a.store.list(req.Shade)
	total := len(items)

	items = items[min(req.Offset, len(items)):]
	if req.Limit > 0 && req.Limit < len(items) {
		items = items[:req.Limit]
	}
	return &widgetPage{Items: items, Total: total}, nil
}

func (a *widgetAPI) createWidget(_ context.Context, req *createWidgetReq) (*Widget, error) {
	return a.store.create(req.Body), nil
}

func (a *widgetAPI) getWidget(_ context.Context, req *widgetByID) (*Widget, error) {
	w, ok := a.store.get(req.ID)
	if !ok {
		return nil, widgetNotFound(req.ID)
	}
	return w, nil
}

func (a *widgetAPI) replaceWidget(_ context.Context, req *replaceWidgetReq) (*Widget, error) {
	w, ok := a.store.replace(req.ID, req.Body)
	if !ok {
		return nil, widgetNotFound(req.ID)
	}
	return w, nil
}

func (a *widgetAPI) deleteWidget(_ context.Context, req *widgetByID) (*apikit.Void, error) {
	if !a.store.delete(req.ID) {
		return nil, widgetNotFound(req.ID)
	}
	return nil, nil
}

func (a *widgetAPI) widgetFile(_ context.Context, req *widgetFileReq) (*apikit.Stream, error) {
	w, ok := a.store.get(req.ID)
	if !ok {
		return nil, widgetNotFound(req.ID)
	}
	body := fmt.Sprintf("widget %s (%s)\nfile: %s\n", w.Name, w.Shade, req.Path)
	return &apikit.Stream{
		ContentType: "text/plain; charset=utf-8",
		Body:        bytes.NewBufferString(body),
	}, nil
}

func (a *widgetAPI) events(ctx context.Context, req *eventsReq) (*apikit.SSEStream, error) {
	ch := make(chan apikit.SSEEvent)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(a.tick)
		defer ticker.Stop()

		for i := 1; i <= req.Count; i++ {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				ev := apikit.SSEEvent{
					ID:    strconv.Itoa(i),
					Event: "tick",
					Data:  map[string]any{"time": t.UTC().Format(time.RFC3339), "seq": i},
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return &apikit.SSEStream{Events: ch}, nil
}

func (a *widgetAPI) legacyHealth(_ context.Context, _ *apikit.Void) (*apikit.Redirect, error) {
	return &apikit.Redirect{URL: "/v1/health", Status: http.StatusPermanentRedirect}, nil
}

// register adds every widgets route to api.
func (a *widgetAPI) register(api *apikit.API) error {
	v1 := api.Group("/v1", apikit.WithGroupTags("v1"))
	widgets := v1.Group("/widgets", apikit.WithGroupTags("widgets"))

	return errors.Join(
		apikit.Get(v1, "/health", a.health,
			apikit.WithOperationID("health"),
			apikit.WithSummary("Health check"),
			apikit.WithDescription("Returns the current server time and status."),
			apikit.WithTags("ops"),
		),
		apikit.Get(v1, "/legacy/health", a.legacyHealth,
			apikit.WithOperationID("legacyHealth"),
			apikit.WithSummary("Legacy health check"),
			apikit.WithDeprecated(),
			apikit.WithTags("ops"),
		),
		apikit.Get(widgets, "/", a.listWidgets,
			apikit.WithOperationID("listWidgets"),
			apikit.WithSummary("List widgets"),
			apikit.WithDescription("Returns widgets, optionally filtered by shade."),
		),
		apikit.Post(widgets, "/", a.createWidget,
			apikit.WithOperationID("createWidget"),
			apikit.WithStatus(http.StatusCreated),
			apikit.WithSummary("Create widget"),
			apikit.WithBodyLimit(64*1024),
		),
		apikit.Get(widgets, "/{id}", a.getWidget,
			apikit.WithOperationID("getWidget"),
			apikit.WithSummary("Get widget"),
			apikit.WithErrors(http.StatusNotFound),
		),
		apikit.Put(widgets, "/{id}", a.replaceWidget,
			apikit.WithOperationID("replaceWidget"),
			apikit.WithSummary("Replace widget"),
			apikit.WithErrors(http.StatusNotFound),
		),
		apikit.Delete(widgets, "/{id}", a.deleteWidget,
			apikit.WithOperationID("deleteWidget"),
			apikit.WithSummary("Delete widget"),
			apikit.WithErrors(http.StatusNotFound),
		),
		apikit.Get(widgets, "/{id}/files/{path...}", a.widgetFile,
			apikit.WithOperationID("getWidgetFile"),
			apikit.WithSummary("Download widget file"),
			apikit.WithErrors(http.StatusNotFound),
		),
		apikit.Get(v1, "/events", a.events,
			apikit.WithOperationID("streamEvents"),
			apikit.WithSummary("Event stream"),
			apikit.WithDescription("Server-sent events emitting a tick on an interval."),
			apikit.WithTags("streaming"),
			apikit.WithExtension("x-streaming", true),
		),
		apikit.ServeDocument(api, "/openapi.json"),
		apikit.ServeDocumentYAML(api, "/openapi.yaml"),
		apikit.ServeDocs(api, "/docs"),
	)
}
