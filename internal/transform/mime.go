package transform

import "strings"

// DefaultMIMEType is used for documents whose extension is not in the table.
const DefaultMIMEType = "application/octet-stream"

// mimeTypes maps lower-case file extensions to the content types the
// ingestion system recognizes.
var mimeTypes = map[string]string{
	"arj":     "application/x-arj-compressed",
	"avi":     "video/x-msvideo",
	"bmp":     "application/x-bmp",
	"cdf":     "application/x-netcdf",
	"cpio":    "application/x-cpio",
	"csh":     "application/x-csh",
	"doc":     "application/msword",
	"docx":    "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"dvi":     "application/x-dvi",
	"dwg":     "application/x-acad",
	"emf":     "application/x-emf",
	"exe":     "application/x-exe",
	"flv":     "video/x-flv",
	"gif":     "image/gif",
	"gtar":    "application/x-gtar",
	"gz":      "application/x-gzip",
	"hdf":     "application/x-hdf",
	"jpeg":    "image/jpeg",
	"jpg":     "image/jpeg",
	"js":      "application/x-javascript",
	"latex":   "application/x-latex",
	"mif":     "application/x-mif",
	"mov":     "video/x-sgi-movie",
	"mp3":     "audio/x-mpeg",
	"msg":     "application/x-outlook-msg",
	"nc":      "application/x-netcdf",
	"pdf":     "application/x-pdf",
	"png":     "application/x-png",
	"ppt":     "application/x-mspowerpoint",
	"pptx":    "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"rar":     "application/x-rar-compressed",
	"sh":      "application/x-sh",
	"tar":     "application/x-tar",
	"tcl":     "application/x-tcl",
	"tex":     "application/x-tex",
	"texinfo": "application/x-texinfo",
	"tgz":     "application/x-compressed",
	"tif":     "image/x-tiff",
	"tiff":    "image/x-tiff",
	"wav":     "audio/x-wav",
	"xls":     "application/x-msexcel",
	"xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"zip":     "application/x-zip-compressed",
}

// MIMEType returns the content type for a file extension, with or without
// the leading dot.
func MIMEType(ext string) (string, bool) {
	t, ok := mimeTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return t, ok
}
