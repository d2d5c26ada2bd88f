package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"document-archive-platform/utils"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestClassifyUpload(t *testing.T) {
	pdfData := NewPDFBuilder().BuildTextPDF("sample")
	docxZip := buildZip(t, map[string]string{"word/document.xml": "<w:document/>"})
	xlsxZip := buildZip(t, map[string]string{"xl/workbook.xml": "<workbook/>"})

	cases := []struct {
		name     string
		filename string
		data     []byte
		want     string
	}{
		{"pdf by magic", "report.pdf", pdfData, SourcePDF},
		{"pdf extension on plain text falls to sniffing", "report.pdf", []byte("just plain words here"), SourceText},
		{"image by extension", "photo.jpg", []byte("anything"), SourceImage},
		{"jpeg by magic", "upload", []byte{0xFF, 0xD8, 0xFF, 0xE0}, SourceImage},
		{"png by magic", "upload", []byte("\x89PNG\r\n\x1a\n"), SourceImage},
		{"gif by magic", "upload", []byte("GIF89a...."), SourceImage},
		{"docx by zip layout", "upload", docxZip, SourceDocx},
		{"xlsx by zip layout", "upload", xlsxZip, SourceXLSX},
		{"csv by extension", "rows.csv", []byte("a,b\n"), SourceCSV},
		{"html by doctype", "upload", []byte("<!doctype html><p>x</p>"), SourceHTML},
		{"rtf by extension", "letter.rtf", []byte(`{\rtf1 words}`), SourceRTF},
		{"rtf by magic", "upload", []byte(`{\rtf1\ansi Hello}`), SourceRTF},
		{"text by content", "upload", []byte("readable sentences only"), SourceText},
		{"binary is unknown", "blob.bin", []byte{0x00, 0xFF, 0xFE, 0x01}, SourceUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyUpload(tc.filename, tc.data))
		})
	}
}

func TestSanitizeRejectsKnownSignature(t *testing.T) {
	svc := NewSanitizeService(NewMalwareScanner(true, "", nil))

	_, err := svc.Sanitize(context.Background(), "payload.txt", []byte("prefix "+eicarSignature+" suffix"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrSecurityRejected))
}

func TestSanitizeDisabledScannerPasses(t *testing.T) {
	svc := NewSanitizeService(NewMalwareScanner(false, "", nil))

	result, err := svc.Sanitize(context.Background(), "payload.txt", []byte("prefix "+eicarSignature))
	require.NoError(t, err)
	assert.True(t, IsPDF(result.PDFData))
}

func TestSanitizeTextToPDF(t *testing.T) {
	svc := NewSanitizeService(NewMalwareScanner(false, "", nil))

	result, err := svc.Sanitize(context.Background(), "notes.txt", []byte("Hello archive\nSecond line"))
	require.NoError(t, err)

	assert.Equal(t, SourceText, result.SourceKind)
	assert.True(t, result.Converted)
	assert.Equal(t, "english", result.Language)
	assert.Equal(t, "Hello archive\nSecond line", result.ExtractedText)
	assert.True(t, IsPDF(result.PDFData))
	assert.Regexp(t, `^document_\d{8}_\d{6}\.pdf$`, result.OutputName,
		"output names carry a timestamp only, never the original filename")
}

func TestSanitizePDFPassthrough(t *testing.T) {
	svc := NewSanitizeService(NewMalwareScanner(false, "", nil))
	original := NewPDFBuilder().BuildTextPDF("already a pdf")

	result, err := svc.Sanitize(context.Background(), "doc.pdf", original)
	require.NoError(t, err)

	assert.Equal(t, SourcePDF, result.SourceKind)
	assert.False(t, result.Converted)
	assert.Empty(t, result.ExtractedText)
	assert.True(t, IsPDF(result.PDFData))
	assert.Len(t, result.PDFData, len(original), "stripping never changes the file length")
}

func TestSanitizeEmptyFileGetsPlaceholder(t *testing.T) {
	svc := NewSanitizeService(NewMalwareScanner(false, "", nil))

	result, err := svc.Sanitize(context.Background(), "empty.txt", nil)
	require.NoError(t, err)

	assert.False(t, result.Converted)
	assert.Empty(t, result.ExtractedText)
	assert.True(t, IsPDF(result.PDFData), "unconvertible input still yields a valid placeholder PDF")
}

func TestSanitizeCSV(t *testing.T) {
	svc := NewSanitizeService(NewMalwareScanner(false, "", nil))

	result, err := svc.Sanitize(context.Background(), "rows.csv", []byte("a,b,c\nd,e,f\n"))
	require.NoError(t, err)

	assert.Equal(t, "a\tb\tc\nd\te\tf", result.ExtractedText)
	assert.True(t, result.Converted)
}

func TestSanitizeDocx(t *testing.T) {
	docXML := `<?xml version="1.0"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` +
		`<w:p><w:r><w:t>First paragraph</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	data := buildZip(t, map[string]string{"word/document.xml": docXML})

	svc := NewSanitizeService(NewMalwareScanner(false, "", nil))
	result, err := svc.Sanitize(context.Background(), "memo.docx", data)
	require.NoError(t, err)

	assert.Equal(t, SourceDocx, result.SourceKind)
	assert.Equal(t, "First paragraph\nSecond paragraph", result.ExtractedText)
}

func TestSanitizeXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Budget"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Total"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	svc := NewSanitizeService(NewMalwareScanner(false, "", nil))
	result, err := svc.Sanitize(context.Background(), "figures.xlsx", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, SourceXLSX, result.SourceKind)
	assert.Contains(t, result.ExtractedText, "Sheet: Sheet1")
	assert.Contains(t, result.ExtractedText, "Budget\tTotal")
}

func TestSanitizeRTF(t *testing.T) {
	data := []byte(`{\rtf1\ansi\deff0{\fonttbl{\f0 Helvetica;}}{\*\generator TestWriter;}` +
		`\f0\fs24 First paragraph.\par Second with caf\'e9 and \ldblquote quotes\rdblquote .\par}`)

	svc := NewSanitizeService(NewMalwareScanner(false, "", nil))
	result, err := svc.Sanitize(context.Background(), "letter.rtf", data)
	require.NoError(t, err)

	assert.Equal(t, SourceRTF, result.SourceKind)
	assert.True(t, result.Converted)
	assert.Equal(t, "english", result.Language)
	assert.Contains(t, result.ExtractedText, "First paragraph.")
	assert.Contains(t, result.ExtractedText, "café")
	assert.Contains(t, result.ExtractedText, `"quotes"`)
	assert.NotContains(t, result.ExtractedText, "Helvetica")
	assert.NotContains(t, result.ExtractedText, "fonttbl")
	assert.NotContains(t, result.ExtractedText, "TestWriter")
}

func TestSanitizeImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * x), G: uint8(60 * y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	svc := NewSanitizeService(NewMalwareScanner(false, "", nil))
	result, err := svc.Sanitize(context.Background(), "scan.png", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, SourceImage, result.SourceKind)
	assert.True(t, result.Converted)
	assert.True(t, IsPDF(result.PDFData))
	assert.Empty(t, result.ExtractedText, "image text recovery is left to OCR")
}

func TestExtractHTMLTextDropsScriptsAndHead(t *testing.T) {
	data := []byte(`<html><head><title>Secret Title</title><script>var x = 1;</script></head>` +
		`<body><p>Visible paragraph</p><style>.a{color:red}</style><p>Another one</p></body></html>`)

	text := extractHTMLText(data)
	assert.Contains(t, text, "Visible paragraph")
	assert.Contains(t, text, "Another one")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "Secret Title")
	assert.NotContains(t, text, "color:red")
}

func TestTokenizeHTMLText(t *testing.T) {
	data := []byte(`<p>Hello</p><p>World</p><script>var x = 1;</script>`)
	got := tokenizeHTMLText(data)
	assert.Equal(t, "Hello\nWorld", got)
}

func TestExtractRTFText(t *testing.T) {
	got := extractRTFText([]byte(`{\rtf1\ansi{\fonttbl{\f0 Arial;}}\f0 Line one\par Line two\tab end}`))
	assert.Equal(t, "Line one\nLine two\tend", got)

	got = extractRTFText([]byte(`{\rtf1 A\u8217?s mark}`))
	assert.Equal(t, "A’s mark", got)

	assert.Equal(t, "no rtf syntax at all",
		extractRTFText([]byte("no rtf syntax at all")))
}

func TestFilterPrintableText(t *testing.T) {
	assert.Equal(t, "abcd\tword", filterPrintableText("ab\x00cd\tword"))
	assert.Equal(t, "line one\nline two", filterPrintableText("line one\nline two"))
}

func TestExtractPrintableRuns(t *testing.T) {
	data := []byte("\x00\x01Hi!\x02LongerRun here\x03ok")
	assert.Equal(t, "LongerRun here", extractPrintableRuns(data),
		"runs shorter than four characters are noise")
}

func TestCollapseBlankRuns(t *testing.T) {
	assert.Equal(t, "a\n\nb", collapseBlankRuns("a  \n\n\n\nb"))
	assert.Equal(t, "word", collapseBlankRuns("\n\n  word  \n\n"))
}

func TestLooksLikeText(t *testing.T) {
	assert.True(t, looksLikeText([]byte("ordinary prose with\nnewlines\tand tabs")))
	assert.False(t, looksLikeText(bytes.Repeat([]byte{0x01}, 64)))
}
