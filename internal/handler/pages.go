package handler

import (
	"net/http"

	"github.com/bluefermion/annotator/internal/catalog"
	"github.com/bluefermion/annotator/internal/model"
)

// sidebarPage is the data behind sidebar.html.
type sidebarPage struct {
	State      model.SessionState
	Pending    int
	Categories []model.Category
	Priorities []model.Priority
	// Tree lists every registered usage when the component tree is shown.
	Tree []catalog.ResolvedComponent
}

// demoPage is the data behind demo.html.
type demoPage struct {
	State  model.SessionState
	Usages []catalog.ResolvedComponent
}

// HandleSidebarPage renders the change request list. The overlay polls it with
// HTMX to refresh the panel content.
// Endpoint: GET /sidebar
func (h *AnnotationHandler) HandleSidebarPage(w http.ResponseWriter, r *http.Request) {
	st := h.store.Snapshot()
	data := sidebarPage{
		State:      st,
		Pending:    st.PendingCount(),
		Categories: model.Categories,
		Priorities: model.Priorities,
	}
	if st.Config.ShowComponentTree {
		data.Tree = h.resolvedUsages()
	}
	h.render(w, r, "sidebar.html", data)
}

// HandleDemo renders a page whose elements are bound to the registered usages.
// Endpoint: GET /demo
func (h *AnnotationHandler) HandleDemo(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "demo.html", demoPage{
		State:  h.store.Snapshot(),
		Usages: h.resolvedUsages(),
	})
}

func (h *AnnotationHandler) resolvedUsages() []catalog.ResolvedComponent {
	res := h.store.Resolver()
	if res == nil {
		return nil
	}
	ids := res.Registry.IDs()
	out := make([]catalog.ResolvedComponent, 0, len(ids))
	for _, id := range ids {
		out = append(out, res.Resolve(id))
	}
	return out
}
