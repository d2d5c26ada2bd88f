package services

import (
	"bytes"
	"regexp"
	"strconv"
)

// PDFSanitizer strips identifying metadata from uploaded PDFs: the
// trailer Info dictionary (author, creator, producer, dates) and any XMP
// metadata streams. All edits are same-length overwrites so existing
// cross-reference offsets stay valid.
type PDFSanitizer struct{}

func NewPDFSanitizer() *PDFSanitizer {
	return &PDFSanitizer{}
}

var (
	pdfObjHeaderRe = regexp.MustCompile(`(\d+)\s+\d+\s+obj`)
	pdfInfoRefRe   = regexp.MustCompile(`/Info\s+(\d+)\s+\d+\s+R`)
	pdfMetaTypeRe  = regexp.MustCompile(`/Type\s*/Metadata`)
	xpacketRe      = regexp.MustCompile(`(?s)<\?xpacket begin.*?<\?xpacket end[^>]*\?>`)
)

type pdfObject struct {
	number    int
	bodyStart int // first byte after the obj keyword
	bodyEnd   int // index of the endobj keyword
}

// IsPDF reports whether data carries the PDF magic header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// Strip returns a copy of the PDF with metadata blanked. Running it on
// already-stripped output is a no-op beyond the copy.
func (s *PDFSanitizer) Strip(pdf []byte) []byte {
	out := make([]byte, len(pdf))
	copy(out, pdf)

	objects := mapPDFObjects(out)

	for _, num := range infoObjectNumbers(out) {
		if obj, ok := objects[num]; ok {
			blankInfoDictionary(out, obj)
		}
	}
	for _, obj := range objects {
		if pdfMetaTypeRe.Match(out[obj.bodyStart:obj.bodyEnd]) {
			blankStreamPayload(out, obj)
		}
	}

	// XMP packets can also appear outside a typed metadata object.
	for _, loc := range xpacketRe.FindAllIndex(out, -1) {
		blankRange(out, loc[0], loc[1])
	}
	return out
}

// mapPDFObjects indexes every "N 0 obj ... endobj" span in the file.
func mapPDFObjects(pdf []byte) map[int]pdfObject {
	objects := make(map[int]pdfObject)
	for _, match := range pdfObjHeaderRe.FindAllSubmatchIndex(pdf, -1) {
		num, err := strconv.Atoi(string(pdf[match[2]:match[3]]))
		if err != nil {
			continue
		}
		end := bytes.Index(pdf[match[1]:], []byte("endobj"))
		if end < 0 {
			continue
		}
		// Later definitions of the same object number win, matching how
		// readers resolve incremental updates.
		objects[num] = pdfObject{number: num, bodyStart: match[1], bodyEnd: match[1] + end}
	}
	return objects
}

// infoObjectNumbers collects every /Info reference across all trailers,
// including incremental-update trailers.
func infoObjectNumbers(pdf []byte) []int {
	var nums []int
	for _, match := range pdfInfoRefRe.FindAllSubmatch(pdf, -1) {
		if n, err := strconv.Atoi(string(match[1])); err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}

// blankInfoDictionary replaces the Info dictionary body with an empty
// dictionary padded to the original length.
func blankInfoDictionary(pdf []byte, obj pdfObject) {
	if obj.bodyEnd-obj.bodyStart < 4 {
		return
	}
	blankRange(pdf, obj.bodyStart, obj.bodyEnd)
	copy(pdf[obj.bodyStart:], "<<>>")
}

// blankStreamPayload wipes the bytes between stream and endstream while
// keeping the declared length intact.
func blankStreamPayload(pdf []byte, obj pdfObject) {
	body := pdf[obj.bodyStart:obj.bodyEnd]
	start := bytes.Index(body, []byte("stream"))
	if start < 0 {
		// Metadata held inline in the dictionary, wipe the whole body.
		blankInfoDictionary(pdf, obj)
		return
	}
	start += len("stream")
	end := bytes.LastIndex(body, []byte("endstream"))
	if end <= start {
		return
	}
	blankRange(pdf, obj.bodyStart+start, obj.bodyStart+end)
}

// blankRange space-fills a byte range, preserving newlines so keyword
// boundaries stay on their own lines.
func blankRange(pdf []byte, from, to int) {
	for i := from; i < to && i < len(pdf); i++ {
		if pdf[i] != '\n' && pdf[i] != '\r' {
			pdf[i] = ' '
		}
	}
}
