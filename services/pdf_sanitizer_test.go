package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataPDF = `%PDF-1.4
1 0 obj
<< /Title (Quarterly Report) /Author (Alice Smith) /Producer (WriterApp 3.1) >>
endobj
2 0 obj
<< /Type /Metadata /Subtype /XML /Length 84 >>
stream
<?xpacket begin="x" id="W5M0"?><x:xmpmeta>Alice Smith authored this</x:xmpmeta><?xpacket end="w"?>
endstream
endobj
3 0 obj
<< /Type /Catalog >>
endobj
trailer
<< /Root 3 0 R /Info 1 0 R >>
%%EOF
`

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF([]byte("plain text")))
	assert.False(t, IsPDF(nil))
}

func TestStripBlanksInfoAndMetadata(t *testing.T) {
	sanitizer := NewPDFSanitizer()
	out := sanitizer.Strip([]byte(metadataPDF))

	require.Len(t, out, len(metadataPDF), "edits must keep byte offsets valid")
	assert.True(t, IsPDF(out))

	stripped := string(out)
	assert.NotContains(t, stripped, "Alice Smith")
	assert.NotContains(t, stripped, "Quarterly Report")
	assert.NotContains(t, stripped, "WriterApp")
	assert.NotContains(t, stripped, "xmpmeta")
	assert.NotContains(t, stripped, "xpacket")

	assert.Contains(t, stripped, "<<>>", "the Info dictionary collapses to an empty one")
	assert.Contains(t, stripped, "trailer")
	assert.Contains(t, stripped, "\nendobj", "structure keywords keep their line starts")
	assert.Contains(t, stripped, "\nendstream")
}

func TestStripLeavesInputUntouched(t *testing.T) {
	input := []byte(metadataPDF)
	NewPDFSanitizer().Strip(input)
	assert.Equal(t, metadataPDF, string(input))
}

func TestStripIsIdempotent(t *testing.T) {
	sanitizer := NewPDFSanitizer()
	once := sanitizer.Strip([]byte(metadataPDF))
	twice := sanitizer.Strip(once)
	assert.Equal(t, once, twice)
}

func TestStripWipesLooseXMPPackets(t *testing.T) {
	doc := "%PDF-1.4\n4 0 obj\n<< /Length 40 >>\nstream\n" +
		`<?xpacket begin="x"?><rdf:RDF>creator tool trace</rdf:RDF><?xpacket end="w"?>` +
		"\nendstream\nendobj\n%%EOF\n"

	out := string(NewPDFSanitizer().Strip([]byte(doc)))
	assert.NotContains(t, out, "creator tool trace",
		"XMP packets outside typed metadata objects are wiped too")
	assert.Contains(t, out, "endstream")
	assert.Len(t, out, len(doc))
}

func TestStripWithoutMetadataIsACopy(t *testing.T) {
	plain := NewPDFBuilder().BuildTextPDF("no metadata here")
	out := NewPDFSanitizer().Strip(plain)
	assert.Equal(t, plain, out)
}
