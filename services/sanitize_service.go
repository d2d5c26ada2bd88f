package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"

	"document-archive-platform/internal/logger"
)

// Source kinds recognised by the sanitiser.
const (
	SourcePDF     = "pdf"
	SourceImage   = "image"
	SourceXLSX    = "xlsx"
	SourceCSV     = "csv"
	SourceDocx    = "docx"
	SourceHTML    = "html"
	SourceRTF     = "rtf"
	SourceText    = "text"
	SourceUnknown = "unknown"
)

// SanitizeResult is the only artifact intake persists. The original
// upload bytes are discarded after sanitisation.
type SanitizeResult struct {
	PDFData       []byte
	OutputName    string
	SourceKind    string
	ExtractedText string // text already recovered during conversion
	Language      string // set when conversion fixes the language
	Converted     bool   // true when the source was not a PDF
}

// SanitizeService converts any accepted upload into a privacy-stripped
// PDF. Conversion failures yield a placeholder PDF rather than an error,
// only the malware scan can reject a file outright.
type SanitizeService struct {
	scanner   *MalwareScanner
	stripper  *PDFSanitizer
	builder   *PDFBuilder
	jpegQual  int
	textLimit int
}

func NewSanitizeService(scanner *MalwareScanner) *SanitizeService {
	return &SanitizeService{
		scanner:   scanner,
		stripper:  NewPDFSanitizer(),
		builder:   NewPDFBuilder(),
		jpegQual:  85,
		textLimit: 2 << 20, // cap text recovered from converted formats
	}
}

// Sanitize runs the scan-classify-convert pipeline for one upload.
func (s *SanitizeService) Sanitize(ctx context.Context, filename string, data []byte) (*SanitizeResult, error) {
	if err := s.scanner.Scan(ctx, filename, data); err != nil {
		return nil, err
	}

	kind := classifyUpload(filename, data)
	result := &SanitizeResult{
		SourceKind: kind,
		OutputName: outputPDFName(time.Now().UTC()),
	}

	switch kind {
	case SourcePDF:
		result.PDFData = s.stripper.Strip(data)

	case SourceImage:
		s.convertImage(result, data)

	case SourceXLSX:
		s.convertText(result, extractXLSXText(data))

	case SourceCSV:
		s.convertText(result, extractCSVText(data))

	case SourceDocx:
		s.convertText(result, extractDocxText(data))

	case SourceHTML:
		s.convertText(result, extractHTMLText(data))

	case SourceRTF:
		s.convertText(result, filterPrintableText(extractRTFText(data)))

	case SourceText:
		s.convertText(result, filterPrintableText(string(data)))

	default:
		s.convertText(result, extractPrintableRuns(data))
	}

	if len(result.PDFData) == 0 {
		logger.Logger.Warn("sanitiser produced no output, storing placeholder",
			"filename", filename, "kind", kind)
		result.PDFData = s.builder.BuildErrorPDF("the file format could not be converted")
	}
	return result, nil
}

// convertImage embeds the image on an A4 page. Re-encoding to JPEG
// drops EXIF and all other embedded metadata.
func (s *SanitizeService) convertImage(result *SanitizeResult, data []byte) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		result.PDFData = s.builder.BuildErrorPDF("the image could not be decoded")
		return
	}
	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, img, &jpeg.Options{Quality: s.jpegQual}); err != nil {
		result.PDFData = s.builder.BuildErrorPDF("the image could not be re-encoded")
		return
	}
	bounds := img.Bounds()
	result.PDFData = s.builder.BuildImagePDF(jpegBuf.Bytes(), bounds.Dx(), bounds.Dy())
	result.Converted = true
}

// convertText finishes all text-born branches. Converted text documents
// are treated as English downstream.
func (s *SanitizeService) convertText(result *SanitizeResult, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		result.PDFData = s.builder.BuildErrorPDF("no readable text was found in the file")
		return
	}
	if len(text) > s.textLimit {
		text = text[:s.textLimit]
	}
	result.PDFData = s.builder.BuildTextPDF(text)
	result.ExtractedText = text
	result.Language = "english"
	result.Converted = true
}

// outputPDFName names every sanitised file by timestamp only, nothing of
// the original filename survives.
func outputPDFName(now time.Time) string {
	return "document_" + now.Format("20060102_150405") + ".pdf"
}

// classifyUpload decides the conversion branch from the extension, then
// falls back to content sniffing for missing or lying extensions.
func classifyUpload(filename string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		if IsPDF(data) {
			return SourcePDF
		}
	case ".jpg", ".jpeg", ".png", ".gif":
		return SourceImage
	case ".xlsx", ".xls":
		return SourceXLSX
	case ".csv", ".tsv":
		return SourceCSV
	case ".docx", ".doc":
		return SourceDocx
	case ".html", ".htm":
		return SourceHTML
	case ".rtf":
		return SourceRTF
	case ".txt", ".md", ".log":
		return SourceText
	}

	switch {
	case IsPDF(data):
		return SourcePDF
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}),
		bytes.HasPrefix(data, []byte("\x89PNG")),
		bytes.HasPrefix(data, []byte("GIF8")):
		return SourceImage
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		if zipContains(data, "word/") {
			return SourceDocx
		}
		if zipContains(data, "xl/") {
			return SourceXLSX
		}
	case bytes.HasPrefix(data, []byte("{\\rtf")):
		return SourceRTF
	case looksLikeHTML(data):
		return SourceHTML
	case utf8.Valid(data) && looksLikeText(data):
		return SourceText
	}
	return SourceUnknown
}

func zipContains(data []byte, prefix string) bool {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, prefix) {
			return true
		}
	}
	return false
}

func looksLikeHTML(data []byte) bool {
	head := strings.ToLower(string(data[:min(len(data), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// looksLikeText samples the head of the file for control characters.
func looksLikeText(data []byte) bool {
	sample := data[:min(len(data), 4096)]
	control := 0
	for _, b := range sample {
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			control++
		}
	}
	return control*20 < len(sample)
}

// extractXLSXText flattens every sheet into tab-separated rows.
func extractXLSXText(data []byte) string {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Sheet: " + sheet + "\n")
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func extractCSVText(data []byte) string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var sb strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed rows end the parse, keep what was read.
			break
		}
		sb.WriteString(strings.Join(record, "\t"))
		sb.WriteString("\n")
	}
	return sb.String()
}

// extractDocxText pulls paragraph text out of the main document part.
func extractDocxText(data []byte) string {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	var docXML io.ReadCloser
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return ""
			}
			break
		}
	}
	if docXML == nil {
		return ""
	}
	defer docXML.Close()

	var sb strings.Builder
	decoder := xml.NewDecoder(docXML)
	inText := false
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String()
}

func extractHTMLText(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return tokenizeHTMLText(data)
	}
	doc.Find("script, style, noscript, head").Remove()
	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return collapseBlankRuns(text)
}

// tokenizeHTMLText walks raw tokens when the document is too mangled to
// parse into a tree, skipping script and style contents.
func tokenizeHTMLText(data []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(data))
	var sb strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapseBlankRuns(sb.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "noscript", "head":
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "noscript", "head":
				if skipDepth > 0 {
					skipDepth--
				}
			case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteString("\n")
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tokenizer.Text())
				sb.WriteString(" ")
			}
		}
	}
}

// rtfSkipGroups are destinations whose contents are formatting data or
// embedded objects, never document text.
var rtfSkipGroups = map[string]bool{
	"fonttbl":    true,
	"colortbl":   true,
	"stylesheet": true,
	"info":       true,
	"pict":       true,
	"object":     true,
	"header":     true,
	"footer":     true,
	"themedata":  true,
}

// extractRTFText strips RTF braces and control words down to the
// document text. Skipped destination groups are dropped whole. Plain
// text without RTF syntax passes through unchanged.
func extractRTFText(data []byte) string {
	var sb strings.Builder
	depth, skip := 0, 0
	i := 0
	for i < len(data) {
		switch c := data[i]; c {
		case '{':
			depth++
			i++
		case '}':
			if skip == depth {
				skip = 0
			}
			depth--
			i++
		case '\\':
			i = consumeRTFControl(&sb, data, i+1, depth, &skip)
		case '\r', '\n':
			i++
		default:
			if skip == 0 {
				sb.WriteByte(c)
			}
			i++
		}
	}
	return collapseBlankRuns(sb.String())
}

// consumeRTFControl handles one control word or symbol, with i just past
// the backslash, and returns the offset of the next unread byte.
func consumeRTFControl(sb *strings.Builder, data []byte, i, depth int, skip *int) int {
	if i >= len(data) {
		return i
	}

	c := data[i]
	if !isRTFWordChar(c) {
		switch c {
		case '\\', '{', '}':
			if *skip == 0 {
				sb.WriteByte(c)
			}
		case '~':
			if *skip == 0 {
				sb.WriteByte(' ')
			}
		case '*':
			if *skip == 0 {
				*skip = depth
			}
		case '\'':
			if i+2 < len(data) {
				if b, err := strconv.ParseUint(string(data[i+1:i+3]), 16, 8); err == nil {
					if *skip == 0 {
						sb.WriteRune(rune(b))
					}
					return i + 3
				}
			}
		}
		return i + 1
	}

	start := i
	for i < len(data) && isRTFWordChar(data[i]) {
		i++
	}
	word := string(data[start:i])

	numStart := i
	if i < len(data) && data[i] == '-' {
		i++
	}
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}
	param := string(data[numStart:i])

	// A single space terminates the control word and belongs to it.
	if i < len(data) && data[i] == ' ' {
		i++
	}

	if word == "bin" {
		// Raw binary payload; brace bytes inside it are data, not
		// group markers.
		if n, err := strconv.Atoi(param); err == nil && n > 0 {
			i += min(n, len(data)-i)
		}
		return i
	}

	if *skip == 0 {
		switch word {
		case "par", "line", "sect", "page":
			sb.WriteString("\n")
		case "tab", "cell":
			sb.WriteString("\t")
		case "emdash", "endash":
			sb.WriteString("-")
		case "lquote", "rquote":
			sb.WriteString("'")
		case "ldblquote", "rdblquote":
			sb.WriteString(`"`)
		case "u":
			if n, err := strconv.Atoi(param); err == nil {
				if n < 0 {
					n += 65536
				}
				sb.WriteRune(rune(n))
				// The following character is the fallback for readers
				// without unicode support.
				if i < len(data) && data[i] == '?' {
					i++
				}
			}
		default:
			if rtfSkipGroups[word] {
				*skip = depth
			}
		}
	}
	return i
}

// Control words are lowercase ASCII letters only.
func isRTFWordChar(c byte) bool {
	return c >= 'a' && c <= 'z'
}

// filterPrintableText keeps printable runes plus newline and tab.
func filterPrintableText(text string) string {
	var sb strings.Builder
	for _, r := range text {
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// extractPrintableRuns salvages readable fragments from binary data,
// keeping runs of at least four printable characters.
func extractPrintableRuns(data []byte) string {
	const minRun = 4
	var sb strings.Builder
	var run []rune
	flush := func() {
		if len(run) >= minRun {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(string(run))
		}
		run = run[:0]
	}
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r != utf8.RuneError && (r == ' ' || r == '\t' || unicode.IsPrint(r)) {
			run = append(run, r)
		} else {
			flush()
		}
		i += size
	}
	flush()
	return sb.String()
}

// collapseBlankRuns folds 3+ consecutive newlines into paragraph breaks
// and trims trailing spaces per line.
func collapseBlankRuns(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
