package handler

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

// legacyAPIPath は転送対象の旧形式パス。
// /services/_status, /services/{s}/documents/{d}, /services/{s}/documents/{d}.{ext}, /services/{s}/documents/{d}/check
var legacyAPIPath = regexp.MustCompile(`^/services/(_status|` + uuidPattern + `/documents/` + uuidPattern + `(\.[^/]+|/check)?)$`)

// StatusHandler は死活監視とリダイレクトのみを行うエンドポイントのハンドラー。
type StatusHandler struct {
	apiHostName       string
	securityPolicyURL string
	notFound          http.HandlerFunc
}

// NewStatusHandler はStatusHandlerを生成する。
// apiHostNameは旧形式のリンクの転送先（ドキュメントダウンロードAPIの公開URL）。
// notFoundは転送対象外のパスに使う。
func NewStatusHandler(apiHostName, securityPolicyURL string, notFound http.HandlerFunc) *StatusHandler {
	if notFound == nil {
		notFound = http.NotFound
	}
	return &StatusHandler{
		apiHostName:       strings.TrimRight(apiHostName, "/"),
		securityPolicyURL: securityPolicyURL,
		notFound:          notFound,
	}
}

// Status は稼働状態を返す。
// GET /_status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// SecurityPolicy は脆弱性開示ポリシーへリダイレクトする。
// GET /security.txt, GET /.well-known/security.txt
func (h *StatusHandler) SecurityPolicy(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.securityPolicyURL, http.StatusFound)
}

// LegacyAPIRedirect は旧形式の /services/... リンクを同じパスとクエリのままAPIホストへ恒久的に転送する。
func (h *StatusHandler) LegacyAPIRedirect(w http.ResponseWriter, r *http.Request) {
	if !legacyAPIPath.MatchString(r.URL.Path) {
		h.notFound(w, r)
		return
	}
	target := h.apiHostName + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}
