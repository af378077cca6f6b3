// Package web はGoテンプレートによるページ描画と埋め込み静的ファイルの配信を提供する。
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/csrf"

	"github.com/hitoshi/docdownload/internal/middleware"
)

//go:embed templates
var templateFS embed.FS

const layoutName = "layout"

// ViewDef はテンプレートファイルとページタイトルの組。
type ViewDef struct {
	Template string
	Title    string
}

var (
	ViewIndex           = ViewDef{Template: "views/index.html", Title: "You have a file to download"}
	ViewConfirmEmail    = ViewDef{Template: "views/confirm_email_address.html", Title: "Confirm your email address"}
	ViewDownload        = ViewDef{Template: "views/download.html", Title: "Download your file"}
	ViewFileUnavailable = ViewDef{Template: "views/file_unavailable.html", Title: "No longer available"}
)

// errorViews はステータスコードごとのエラーページ。ここにないステータスは500のページで描画する。
var errorViews = map[int]ViewDef{
	http.StatusBadRequest:          {Template: "error/400.html", Title: "Something went wrong"},
	http.StatusUnauthorized:        {Template: "error/401.html", Title: "You cannot view this page"},
	http.StatusForbidden:           {Template: "error/403.html", Title: "You cannot view this page"},
	http.StatusNotFound:            {Template: "error/404.html", Title: "Page not found"},
	http.StatusGone:                {Template: "error/410.html", Title: "This file is no longer available"},
	http.StatusTooManyRequests:     {Template: "error/429.html", Title: "Too many attempts"},
	http.StatusInternalServerError: {Template: "error/500.html", Title: "Sorry, there is a problem with the service"},
	http.StatusGatewayTimeout:      {Template: "error/504.html", Title: "Sorry, the service is taking too long to respond"},
}

// ErrorView はステータスコードに対応するエラーページ定義を返す。
func ErrorView(status int) ViewDef {
	if v, ok := errorViews[status]; ok {
		return v
	}
	return errorViews[http.StatusInternalServerError]
}

// ViewData はレイアウトとページテンプレートに渡すデータ。
// Dataにページ固有の値が入る。
type ViewData struct {
	Title        string
	Nonce        string
	HeaderColour string
	AssetPath    string
	CSRFField    template.HTML
	Data         any
}

// Options はTemplateSet全体に共通の表示設定。
type Options struct {
	HeaderColour string
	AssetPath    string
	// Debug が有効な場合はエラーページに詳細を表示する。
	Debug bool
}

// TemplateSet は起動時に解析済みのテンプレートを保持する。
// レイアウトをビューごとに複製して解析するため、ビュー間でブロック定義は衝突しない。
type TemplateSet struct {
	views  map[string]*template.Template
	opts   Options
	logger *slog.Logger
}

// NewTemplateSet は埋め込みテンプレートを全て解析する。解析に失敗した場合は起動を中止させる。
func NewTemplateSet(opts Options, logger *slog.Logger) (*TemplateSet, error) {
	if opts.AssetPath == "" {
		opts.AssetPath = "/static"
	}

	layouts, err := template.ParseFS(templateFS, "templates/layouts/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layouts: %w", err)
	}

	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}

	defs := []ViewDef{ViewIndex, ViewConfirmEmail, ViewDownload, ViewFileUnavailable}
	for _, v := range errorViews {
		defs = append(defs, v)
	}

	views := make(map[string]*template.Template, len(defs))
	for _, v := range defs {
		t, err := layouts.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layouts for %s: %w", v.Template, err)
		}
		if _, err := t.ParseFS(sub, v.Template); err != nil {
			return nil, fmt.Errorf("parse template: %s: %w", v.Template, err)
		}
		views[v.Template] = t
	}

	return &TemplateSet{
		views:  views,
		opts:   opts,
		logger: logger,
	}, nil
}

// Render はviewを描画してstatusで書き込む。
// 描画結果は一旦バッファに溜めるため、エラー時にはレスポンスに何も書き込まれていない。
func (ts *TemplateSet) Render(w http.ResponseWriter, r *http.Request, status int, view ViewDef, data any) error {
	t, ok := ts.views[view.Template]
	if !ok {
		return fmt.Errorf("template not found: %s", view.Template)
	}

	vd := ViewData{
		Title:        view.Title,
		Nonce:        middleware.NonceFromContext(r.Context()),
		HeaderColour: ts.opts.HeaderColour,
		AssetPath:    ts.opts.AssetPath,
		CSRFField:    csrf.TemplateField(r),
		Data:         data,
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, layoutName, vd); err != nil {
		return fmt.Errorf("execute %s: %w", view.Template, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// ErrorPage はエラーページに渡すデータ。
type ErrorPage struct {
	// GoBackLink と PageName は429のページで「もう一度試す」リンクに使う。
	GoBackLink string
	PageName   string
	// Detail はデバッグモードでのみ表示される。
	Detail string
}

// RenderError はstatusに対応するエラーページを書き込む。
// errはデバッグモードでのみページに表示する。テンプレートの描画にも失敗した場合はプレーンテキストで応答する。
func (ts *TemplateSet) RenderError(w http.ResponseWriter, r *http.Request, status int, page ErrorPage, err error) {
	if ts.opts.Debug && err != nil && page.Detail == "" {
		page.Detail = err.Error()
	}
	if renderErr := ts.Render(w, r, status, ErrorView(status), page); renderErr != nil {
		ts.logger.Error("failed to render error page",
			slog.Int("status", status),
			slog.String("error", renderErr.Error()),
		)
		http.Error(w, http.StatusText(status), status)
	}
}

// ErrorRenderer はミドルウェアから使うエラーページ描画関数を返す。
func (ts *TemplateSet) ErrorRenderer() middleware.ErrorRenderer {
	return func(w http.ResponseWriter, r *http.Request, status int, err error) {
		ts.RenderError(w, r, status, ErrorPage{}, err)
	}
}

// ErrorHandler は指定ステータスのエラーページを返すハンドラー。NotFound等に使う。
func (ts *TemplateSet) ErrorHandler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts.RenderError(w, r, status, ErrorPage{}, nil)
	}
}
