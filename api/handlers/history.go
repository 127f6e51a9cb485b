package handlers

import (
	"errors"
	"html/template"
	"mime"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/afc/objstore"
	"github.com/BaSui01/afcflow/internal/pool"
	"github.com/BaSui01/afcflow/types"
)

// =============================================================================
// 🗃️ 调试历史浏览 Handler
// =============================================================================

var historyPage = template.Must(template.New("history").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h2>{{range $i, $c := .Crumbs}}{{if $i}} / {{end}}<a href="{{$c.Href}}">{{$c.Name}}</a>{{end}}</h2>
<ul>
{{range .Dirs}}<li><a href="{{.Href}}">{{.Name}}/</a></li>
{{end}}{{range .Files}}<li><a href="{{.Href}}">{{.Name}}</a></li>
{{end}}</ul>
</body>
</html>
`))

type historyLink struct {
	Name string
	Href string
}

type historyView struct {
	Title  string
	Crumbs []historyLink
	Dirs   []historyLink
	Files  []historyLink
}

// HistoryHandler 浏览 dbg 命名空间：目录渲染为 HTML 列表，文件作为附件下载
type HistoryHandler struct {
	store  objstore.Store
	prefix string
	logger *zap.Logger
}

// NewHistoryHandler 创建历史浏览处理器，prefix 为路由前缀（如 "/dbg"）
func NewHistoryHandler(store objstore.Store, prefix string, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{
		store:  store,
		prefix: "/" + strings.Trim(prefix, "/"),
		logger: logger.With(zap.String("handler", "history")),
	}
}

// HandleBrowse GET {prefix}/{path...}
func (h *HistoryHandler) HandleBrowse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	key := strings.Trim(r.PathValue("path"), "/")

	err := objstore.Use(r.Context(), h.store, objstore.NamespaceHistory, key, func(hd objstore.Handle) error {
		isDir, err := hd.IsDir(r.Context())
		if err != nil {
			return err
		}
		if isDir || key == "" {
			dirs, files, err := hd.List(r.Context())
			if err != nil {
				return err
			}
			return h.renderDir(w, key, dirs, files)
		}
		data, err := hd.Read(r.Context())
		if err != nil {
			return err
		}
		h.serveFile(w, key, data)
		return nil
	})

	switch {
	case err == nil:
	case objstore.IsNotFound(err):
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "no such history entry", nil)
	case errors.Is(err, objstore.ErrInvalidKey):
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid path", nil)
	default:
		WriteError(w, types.NewStorageError("failed to browse history", err), h.logger)
	}
}

func (h *HistoryHandler) renderDir(w http.ResponseWriter, key string, dirs, files []string) error {
	view := historyView{Title: path.Join(h.prefix, key)}

	view.Crumbs = append(view.Crumbs, historyLink{Name: strings.TrimPrefix(h.prefix, "/"), Href: h.prefix + "/"})
	if key != "" {
		acc := h.prefix
		for _, seg := range strings.Split(key, "/") {
			acc += "/" + seg
			view.Crumbs = append(view.Crumbs, historyLink{Name: seg, Href: acc + "/"})
		}
	}

	base := h.prefix + "/"
	if key != "" {
		base += key + "/"
	}
	for _, d := range dirs {
		view.Dirs = append(view.Dirs, historyLink{Name: d, Href: base + d + "/"})
	}
	for _, f := range files {
		view.Files = append(view.Files, historyLink{Name: f, Href: base + f})
	}

	buf := pool.Buffers.Get()
	defer pool.Buffers.Put(buf)
	if err := historyPage.Execute(buf, view); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	return nil
}

func (h *HistoryHandler) serveFile(w http.ResponseWriter, key string, data []byte) {
	name := path.Base(key)
	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
