package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/docdownload/internal/docapi"
	"github.com/hitoshi/docdownload/internal/form"
	"github.com/hitoshi/docdownload/internal/formatting"
	"github.com/hitoshi/docdownload/internal/metrics"
	"github.com/hitoshi/docdownload/internal/model"
	"github.com/hitoshi/docdownload/internal/security"
	"github.com/hitoshi/docdownload/internal/shortid"
	"github.com/hitoshi/docdownload/internal/web"
)

// statusClientClosedRequest はクライアントが応答前に切断したことを示すアクセスログ上のステータス。
const statusClientClosedRequest = 499

// AccessCookieName は上流が発行した署名データを受信者のブラウザに渡すCookie名。
// ダウンロードAPIがファイル取得時に読む。
const AccessCookieName = "document_access_signed_data"

// メトリクスとログに使うルート名。
const (
	routeLanding      = "landing"
	routeConfirmEmail = "confirm_email_address"
	routeDownload     = "download"
)

// confirmPageName は429ページの「〜を何度も試した」に入る文言。
const confirmPageName = "confirm your email address"

// DocumentAPI はアクセスフローが必要とする上流APIのインターフェース。
// docapi.Client が実装する。
type DocumentAPI interface {
	GetService(ctx context.Context, serviceID uuid.UUID, onward http.Header) (*model.ServiceInfo, error)
	CheckDocument(ctx context.Context, ref model.DocumentReference, onward http.Header) (*model.DocumentMetadata, error)
	Authenticate(ctx context.Context, ref model.DocumentReference, emailAddress string, onward http.Header) (*model.AuthorizationGrant, error)
}

// PageRenderer はページ描画のインターフェース。web.TemplateSet が実装する。
type PageRenderer interface {
	Render(w http.ResponseWriter, r *http.Request, status int, view web.ViewDef, data any) error
	RenderError(w http.ResponseWriter, r *http.Request, status int, page web.ErrorPage, err error)
}

// AccessHandlerConfig はアクセスフローの設定。
type AccessHandlerConfig struct {
	// CookieSecure はHTTP_PROTOCOLがhttpsの場合にtrue。
	CookieSecure bool
	// CookieDomain が空でなければ認可CookieのDomain属性に設定する。
	CookieDomain string
}

// AccessHandler は署名付きリンクからダウンロードまでのページ遷移を処理するHTTPハンドラー。
// どのページも「サービス情報の取得」「ドキュメントの確認」を順に行ってから描画する。
type AccessHandler struct {
	api       DocumentAPI
	views     PageRenderer
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	config    AccessHandlerConfig
	now       func() time.Time // テスト用に差し替え可能
}

// NewAccessHandler はAccessHandlerを生成する。
func NewAccessHandler(
	api DocumentAPI,
	views PageRenderer,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config AccessHandlerConfig,
) *AccessHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AccessHandler{
		api:       api,
		views:     views,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// accessRequest は共通の前処理を通過したリクエストの状態。
type accessRequest struct {
	ref      model.DocumentReference
	onward   http.Header
	contact  web.ServiceContact
	metadata *model.DocumentMetadata
}

// Landing はファイルがあることを知らせる最初のページを表示する。
// GET /d/{serviceId}/{documentId}?key=
func (h *AccessHandler) Landing(w http.ResponseWriter, r *http.Request) {
	ar, ok := h.prepare(w, r, routeLanding)
	if !ok {
		return
	}

	next := downloadPath(ar.ref)
	if ar.metadata.RequiresEmailConfirmation {
		next = confirmEmailPath(ar.ref)
	}

	h.render(w, r, routeLanding, http.StatusOK, web.ViewIndex, web.LandingPage{
		ServiceContact: ar.contact,
		ContinueURL:    next,
	})
}

// ConfirmEmailAddress はメールアドレス確認フォームの表示と送信を処理する。
// GET|POST /d/{serviceId}/{documentId}/confirm-email-address?key=
func (h *AccessHandler) ConfirmEmailAddress(w http.ResponseWriter, r *http.Request) {
	ar, ok := h.prepare(w, r, routeConfirmEmail)
	if !ok {
		return
	}

	if !ar.metadata.RequiresEmailConfirmation {
		h.metrics.RecordAccessOutcome(routeConfirmEmail, metrics.OutcomeRedirected)
		http.Redirect(w, r, downloadPath(ar.ref), http.StatusFound)
		return
	}

	page := web.ConfirmEmailPage{
		ServiceContact: ar.contact,
		ActionURL:      confirmEmailPath(ar.ref),
		Form:           &form.EmailAddressForm{},
	}

	if r.Method != http.MethodPost {
		h.render(w, r, routeConfirmEmail, http.StatusOK, web.ViewConfirmEmail, page)
		return
	}

	page.Form = form.NewEmailAddressForm(r)
	if !page.Form.Validate() {
		h.metrics.RecordAccessOutcome(routeConfirmEmail, metrics.OutcomeInvalidEmail)
		h.renderView(w, r, routeConfirmEmail, http.StatusBadRequest, web.ViewConfirmEmail, page)
		return
	}

	grant, err := h.api.Authenticate(r.Context(), ar.ref, page.Form.EmailAddress, ar.onward)
	if err != nil {
		if errors.Is(err, model.ErrRateLimited) {
			h.TooManyAttempts(w, r, http.StatusTooManyRequests, err)
			return
		}
		h.handleUpstreamError(w, r, routeConfirmEmail, ar.ref, err)
		return
	}

	if grant == nil {
		h.metrics.RecordAccessOutcome(routeConfirmEmail, metrics.OutcomeWrongEmail)
		page.Form.AddFormError(wrongEmailMessage(ar.contact.ServiceName))
		h.renderView(w, r, routeConfirmEmail, http.StatusBadRequest, web.ViewConfirmEmail, page)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    grant.SignedData,
		Path:     grant.CookiePath,
		Domain:   h.config.CookieDomain,
		Secure:   h.config.CookieSecure,
		HttpOnly: true,
	})
	h.metrics.RecordAccessOutcome(routeConfirmEmail, metrics.OutcomeAuthorized)
	http.Redirect(w, r, downloadPath(ar.ref), http.StatusFound)
}

// Download はダウンロードリンクとファイル情報を表示する。
// ページ自体は何度表示しても上流の状態を変えない。
// GET /d/{serviceId}/{documentId}/download?key=
func (h *AccessHandler) Download(w http.ResponseWriter, r *http.Request) {
	ar, ok := h.prepare(w, r, routeDownload)
	if !ok {
		return
	}

	fileType, known := formatting.PrettyFileType(ar.metadata.FileExtension)
	if !known {
		h.logger.Error("unknown file extension in document metadata",
			slog.String("service_id", ar.ref.ServiceID.String()),
			slog.String("document_id", ar.ref.DocumentID.String()),
			slog.String("file_extension", ar.metadata.FileExtension),
		)
		h.metrics.RecordAccessOutcome(routeDownload, metrics.OutcomeFailed)
		h.views.RenderError(w, r, http.StatusInternalServerError, web.ErrorPage{},
			fmt.Errorf("unknown file extension %q", ar.metadata.FileExtension))
		return
	}

	h.render(w, r, routeDownload, http.StatusOK, web.ViewDownload, web.DownloadPage{
		ServiceContact: ar.contact,
		DownloadLink:   ar.metadata.DirectFileURL,
		FileSize:       formatting.BytesToPrettyFileSize(ar.metadata.SizeInBytes),
		FileType:       fileType,
		ExpiryDate:     formatting.FormatExpiryDate(ar.metadata.AvailableUntil, h.now()),
	})
}

// prepare は3つのページに共通の前処理を行う。
// 鍵の有無とIDの形式を上流呼び出しの前に確認し、サービス情報とドキュメント情報を順に取得する。
// 応答を書き込み済みの場合はfalseを返す。
func (h *AccessHandler) prepare(w http.ResponseWriter, r *http.Request, route string) (*accessRequest, bool) {
	key := r.URL.Query().Get("key")
	if key == "" {
		h.notFound(w, r, route)
		return nil, false
	}

	serviceID, err := shortid.Decode(chi.URLParam(r, "serviceId"))
	if err != nil {
		h.notFound(w, r, route)
		return nil, false
	}
	documentID, err := shortid.Decode(chi.URLParam(r, "documentId"))
	if err != nil {
		h.notFound(w, r, route)
		return nil, false
	}

	ar := &accessRequest{
		ref: model.DocumentReference{
			ServiceID:  serviceID,
			DocumentID: documentID,
			Key:        key,
		},
		onward: docapi.OnwardHeaders(r),
	}

	service, err := h.api.GetService(r.Context(), serviceID, ar.onward)
	if err != nil {
		h.handleUpstreamError(w, r, route, ar.ref, err)
		return nil, false
	}
	ar.contact = h.serviceContact(service)

	metadata, err := h.api.CheckDocument(r.Context(), ar.ref, ar.onward)
	if err != nil {
		h.handleUpstreamError(w, r, route, ar.ref, err)
		return nil, false
	}

	if metadata == nil || formatting.HasExpired(metadata.AvailableUntil, h.now()) {
		h.metrics.RecordAccessOutcome(route, metrics.OutcomeUnavailable)
		h.renderView(w, r, route, http.StatusOK, web.ViewFileUnavailable, web.FileUnavailablePage{
			ServiceContact: ar.contact,
		})
		return nil, false
	}

	ar.metadata = metadata
	return ar, true
}

// serviceContact は上流のサービス情報からマークアップを除いた表示用の値を作る。
func (h *AccessHandler) serviceContact(service *model.ServiceInfo) web.ServiceContact {
	contactInfo := h.sanitizer.Sanitize(service.ContactInfo)
	return web.ServiceContact{
		ServiceName: h.sanitizer.Sanitize(service.Name),
		ContactInfo: contactInfo,
		ContactType: formatting.AssessContactType(contactInfo),
	}
}

// handleUpstreamError は上流呼び出しのエラーをステータスコードに変換してエラーページを返す。
// ログにはサービスIDとドキュメントIDのみを含め、鍵やメールアドレスは含めない。
func (h *AccessHandler) handleUpstreamError(w http.ResponseWriter, r *http.Request, route string, ref model.DocumentReference, err error) {
	var lookupErr *model.ServiceLookupError

	switch {
	case errors.Is(err, model.ErrNotFound):
		h.notFound(w, r, route)

	case errors.As(err, &lookupErr):
		status := lookupErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		h.logger.Warn("service lookup failed",
			slog.String("route", route),
			slog.String("service_id", ref.ServiceID.String()),
			slog.Int("http_status", lookupErr.StatusCode),
		)
		if status == http.StatusNotFound {
			h.metrics.RecordAccessOutcome(route, metrics.OutcomeNotFound)
		} else {
			h.metrics.RecordAccessOutcome(route, metrics.OutcomeFailed)
		}
		h.views.RenderError(w, r, status, web.ErrorPage{}, err)

	case errors.Is(err, model.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("upstream call exceeded request deadline",
			slog.String("route", route),
			slog.String("service_id", ref.ServiceID.String()),
			slog.String("document_id", ref.DocumentID.String()),
		)
		h.metrics.RecordAccessOutcome(route, metrics.OutcomeTimeout)
		h.views.RenderError(w, r, http.StatusGatewayTimeout, web.ErrorPage{}, err)

	case errors.Is(err, context.Canceled):
		// クライアントが切断済みのため本文は書かない
		h.logger.Info("client closed request during upstream call",
			slog.String("route", route),
			slog.String("service_id", ref.ServiceID.String()),
			slog.String("document_id", ref.DocumentID.String()),
		)
		h.metrics.RecordAccessOutcome(route, metrics.OutcomeCanceled)
		w.WriteHeader(statusClientClosedRequest)

	default:
		h.logger.Error("upstream call failed",
			slog.String("route", route),
			slog.String("service_id", ref.ServiceID.String()),
			slog.String("document_id", ref.DocumentID.String()),
			slog.String("error", err.Error()),
		)
		h.metrics.RecordAccessOutcome(route, metrics.OutcomeFailed)
		h.views.RenderError(w, r, http.StatusInternalServerError, web.ErrorPage{}, err)
	}
}

// TooManyAttempts はメールアドレス確認の試行回数超過ページを描画する。
// ページには同じ確認ページ（鍵付き）へ戻るリンクを載せる。
// middleware.ErrorRendererとしてクライアントIP単位のレート制限にも渡す。
func (h *AccessHandler) TooManyAttempts(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.metrics.RecordAccessOutcome(routeConfirmEmail, metrics.OutcomeRateLimited)
	h.views.RenderError(w, r, status, web.ErrorPage{
		GoBackLink: r.URL.RequestURI(),
		PageName:   confirmPageName,
	}, err)
}

func (h *AccessHandler) notFound(w http.ResponseWriter, r *http.Request, route string) {
	h.metrics.RecordAccessOutcome(route, metrics.OutcomeNotFound)
	h.views.RenderError(w, r, http.StatusNotFound, web.ErrorPage{}, nil)
}

// render は正常系のページを描画し、結果を記録する。
func (h *AccessHandler) render(w http.ResponseWriter, r *http.Request, route string, status int, view web.ViewDef, data any) {
	h.metrics.RecordAccessOutcome(route, metrics.OutcomeRendered)
	h.renderView(w, r, route, status, view, data)
}

// renderView はページを描画する。描画に失敗した場合は500のページに切り替える。
func (h *AccessHandler) renderView(w http.ResponseWriter, r *http.Request, route string, status int, view web.ViewDef, data any) {
	if err := h.views.Render(w, r, status, view, data); err != nil {
		h.logger.Error("failed to render page",
			slog.String("route", route),
			slog.String("template", view.Template),
			slog.String("error", err.Error()),
		)
		h.views.RenderError(w, r, http.StatusInternalServerError, web.ErrorPage{}, err)
	}
}

// wrongEmailMessage は入力されたメールアドレスが送信先と一致しなかった場合のメッセージ。
func wrongEmailMessage(serviceName string) string {
	return "This is not the email address the file was sent to. " +
		"To confirm the file was meant for you, enter the email address " + serviceName + " sent the file to."
}

func documentPath(ref model.DocumentReference, suffix string) string {
	q := url.Values{"key": {ref.Key}}
	return fmt.Sprintf("/d/%s/%s%s?%s",
		shortid.Encode(ref.ServiceID), shortid.Encode(ref.DocumentID), suffix, q.Encode())
}

func downloadPath(ref model.DocumentReference) string {
	return documentPath(ref, "/download")
}

func confirmEmailPath(ref model.DocumentReference) string {
	return documentPath(ref, "/confirm-email-address")
}
