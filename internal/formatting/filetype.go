package formatting

// prettyFileTypes は上流が発行し得る拡張子と表示名の対応表。
// 上流で許可する拡張子を追加した場合はここにも追加すること。
var prettyFileTypes = map[string]string{
	"csv":  "CSV file",
	"doc":  "Microsoft Word document",
	"docx": "Microsoft Word document",
	"odt":  "text file",
	"pdf":  "PDF",
	"png":  "PNG file",
	"rtf":  "text file",
	"txt":  "text file",
	"jpeg": "JPEG file",
	"json": "JSON file",
	"xlsx": "Microsoft Excel spreadsheet",
}

// PrettyFileType は拡張子に対応する表示名を返す。
// 対応表にない拡張子の場合は ok=false を返す。
func PrettyFileType(extension string) (string, bool) {
	name, ok := prettyFileTypes[extension]
	return name, ok
}
