package config

// Presets は環境名ごとの既定値。
// 実際の環境変数が設定されていればそちらが優先される。
var Presets = map[string]map[string]string{
	"development": development,
	"test":        test,
	"preview": {
		"HTTP_PROTOCOL": "https",
		"HEADER_COLOUR": "#F499BE",
	},
	"staging": {
		"HTTP_PROTOCOL": "https",
		"HEADER_COLOUR": "#6F72AF",
	},
	"production": {
		"HTTP_PROTOCOL": "https",
		"HEADER_COLOUR": "#005EA5",
	},
}

var development = map[string]string{
	"API_HOST_NAME":                   "http://localhost:6011",
	"DOCUMENT_DOWNLOAD_API_HOST_NAME": "http://localhost:7000",
	"ADMIN_CLIENT_SECRET":             "dev-notify-secret-key",
	"SECRET_KEY":                      "dev-notify-secret-key-0123456789",
	"HTTP_PROTOCOL":                   "http",
	"HEADER_COLOUR":                   "#FFBF47",
	"DEBUG":                           "true",
	"LOG_LEVEL":                       "debug",
}

var test = withOverrides(development, map[string]string{
	"API_HOST_NAME":                   "http://test-notify-api",
	"DOCUMENT_DOWNLOAD_API_HOST_NAME": "http://test-doc-download-api",
	"CSRF_ENABLED":                    "false",
	"DEBUG":                           "false",
	"LOG_LEVEL":                       "warn",
})

func withOverrides(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
