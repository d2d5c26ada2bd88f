package services

import (
	"bytes"
	"fmt"
	"strings"
)

// PDF page geometry, A4 in points.
const (
	pdfPageWidth  = 595.0
	pdfPageHeight = 842.0
	pdfMargin     = 50.0
	pdfFontSize   = 11.0
	pdfLineHeight = 14.0
)

const (
	pdfMaxLineChars  = 88
	pdfLinesPerPage  = 52
	pdfMaxImageRatio = 0.9 // fraction of the page an embedded image may fill
)

// PDFBuilder writes minimal single-font PDFs from scratch. Every
// document it emits starts with an empty metadata dictionary, so output
// never carries author or tool information.
type PDFBuilder struct{}

func NewPDFBuilder() *PDFBuilder {
	return &PDFBuilder{}
}

type pdfWriter struct {
	buf     bytes.Buffer
	offsets []int
}

func newPDFWriter() *pdfWriter {
	w := &pdfWriter{}
	w.buf.WriteString("%PDF-1.4\n")
	return w
}

// addObject appends one numbered object body and records its offset for
// the xref table. Objects must be added in numeric order starting at 1.
func (w *pdfWriter) addObject(body string) int {
	num := len(w.offsets) + 1
	w.offsets = append(w.offsets, w.buf.Len())
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
	return num
}

func (w *pdfWriter) addStreamObject(dict string, stream []byte) int {
	num := len(w.offsets) + 1
	w.offsets = append(w.offsets, w.buf.Len())
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nstream\n", num, dict)
	w.buf.Write(stream)
	w.buf.WriteString("\nendstream\nendobj\n")
	return num
}

func (w *pdfWriter) finish(rootObj int) []byte {
	xrefOffset := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n", len(w.offsets)+1)
	w.buf.WriteString("0000000000 65535 f \n")
	for _, off := range w.offsets {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(w.offsets)+1, rootObj, xrefOffset)
	return w.buf.Bytes()
}

// BuildTextPDF renders text onto A4 pages with a built-in Helvetica.
// Characters outside Latin-1 are replaced, the built-in fonts cannot
// encode them.
func (b *PDFBuilder) BuildTextPDF(text string) []byte {
	lines := wrapPDFLines(text, pdfMaxLineChars)
	if len(lines) == 0 {
		lines = []string{""}
	}

	pages := make([][]string, 0, len(lines)/pdfLinesPerPage+1)
	for start := 0; start < len(lines); start += pdfLinesPerPage {
		end := start + pdfLinesPerPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, lines[start:end])
	}

	w := newPDFWriter()
	// Object layout: 1 catalog, 2 page tree, 3 font, then one page and
	// one content stream per rendered page.
	pageCount := len(pages)
	kids := make([]string, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+i*2))
	}

	w.addObject("<< /Type /Catalog /Pages 2 0 R >>")
	w.addObject(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), pageCount))
	w.addObject("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, pageLines := range pages {
		contentObj := 5 + i*2
		w.addObject(fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.0f %.0f] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			pdfPageWidth, pdfPageHeight, contentObj))

		var content bytes.Buffer
		fmt.Fprintf(&content, "BT\n/F1 %.0f Tf\n%.0f %.0f Td\n%.0f TL\n",
			pdfFontSize, pdfMargin, pdfPageHeight-pdfMargin, pdfLineHeight)
		for _, line := range pageLines {
			fmt.Fprintf(&content, "(%s) Tj\nT*\n", escapePDFString(line))
		}
		content.WriteString("ET")
		w.addStreamObject(fmt.Sprintf("<< /Length %d >>", content.Len()), content.Bytes())
	}

	return w.finish(1)
}

// BuildImagePDF embeds a JPEG centred on a single A4 page, scaled to fit.
func (b *PDFBuilder) BuildImagePDF(jpegData []byte, width, height int) []byte {
	if width <= 0 || height <= 0 {
		return b.BuildTextPDF("Image could not be rendered.")
	}

	maxW := pdfPageWidth * pdfMaxImageRatio
	maxH := pdfPageHeight * pdfMaxImageRatio
	scale := maxW / float64(width)
	if s := maxH / float64(height); s < scale {
		scale = s
	}
	if scale > 1 {
		scale = 1
	}
	drawW := float64(width) * scale
	drawH := float64(height) * scale
	offX := (pdfPageWidth - drawW) / 2
	offY := (pdfPageHeight - drawH) / 2

	w := newPDFWriter()
	w.addObject("<< /Type /Catalog /Pages 2 0 R >>")
	w.addObject("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	w.addObject(fmt.Sprintf(
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.0f %.0f] /Resources << /XObject << /Im0 5 0 R >> >> /Contents 4 0 R >>",
		pdfPageWidth, pdfPageHeight))

	content := fmt.Sprintf("q\n%.2f 0 0 %.2f %.2f %.2f cm\n/Im0 Do\nQ", drawW, drawH, offX, offY)
	w.addStreamObject(fmt.Sprintf("<< /Length %d >>", len(content)), []byte(content))

	imageDict := fmt.Sprintf(
		"<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>",
		width, height, len(jpegData))
	w.addStreamObject(imageDict, jpegData)

	return w.finish(1)
}

// BuildErrorPDF produces the fallback document stored when a file cannot
// be converted. Intake never surfaces the raw upload.
func (b *PDFBuilder) BuildErrorPDF(reason string) []byte {
	text := "This file could not be converted to a readable document.\n\n" +
		"Reason: " + reason + "\n\n" +
		"The original upload was not preserved."
	return b.BuildTextPDF(text)
}

// wrapPDFLines splits text into render lines, breaking on words where
// possible.
func wrapPDFLines(text string, limit int) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		if line == "" {
			out = append(out, "")
			continue
		}
		for len(line) > limit {
			cut := strings.LastIndex(line[:limit], " ")
			if cut < limit/2 {
				cut = limit
			}
			out = append(out, line[:cut])
			line = strings.TrimLeft(line[cut:], " ")
		}
		out = append(out, line)
	}
	return out
}

// escapePDFString maps a Go string into a PDF literal string. Characters
// the built-in encoding cannot represent become question marks.
func escapePDFString(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '\\' || r == '(' || r == ')':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\t':
			sb.WriteString("    ")
		case r >= 32 && r < 127:
			sb.WriteRune(r)
		case r >= 160 && r <= 255:
			sb.WriteByte(byte(r))
		default:
			sb.WriteByte('?')
		}
	}
	return sb.String()
}
