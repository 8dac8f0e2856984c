package parser

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/localrag/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner is a test double for CommandRunner.
type fakeRunner struct {
	output []byte
	err    error

	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeDOCX(t *testing.T, dir, name, documentXML string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func TestParserFor(t *testing.T) {
	p := New()

	tests := []struct {
		ext     string
		want    any
		wantErr bool
	}{
		{ext: ".pdf", want: &PDFParser{}},
		{ext: ".PDF", want: &PDFParser{}},
		{ext: "docx", want: &DOCXParser{}},
		{ext: ".txt", want: &TextParser{}},
		{ext: ".md", want: &TextParser{}},
		{ext: ".csv", want: &CSVParser{}},
		{ext: ".xlsx", wantErr: true},
		{ext: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			fp, err := p.ParserFor(tt.ext)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				assert.Nil(t, fp)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, fp)
		})
	}
}

func TestSupportedExtensions(t *testing.T) {
	p := New()
	assert.Equal(t, []string{".csv", ".docx", ".md", ".pdf", ".txt"}, p.SupportedExtensions())
	assert.True(t, p.Supports(".MD"))
	assert.False(t, p.Supports(".html"))
}

func TestParse_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sheet.xlsx", "whatever")

	units, err := New().Parse(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "sheet.xlsx")
	assert.Nil(t, units)
}

func TestParse_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Parse(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTextParser(t *testing.T) {
	dir := t.TempDir()

	t.Run("txt verbatim", func(t *testing.T) {
		content := "  line one\n\nline two\n"
		path := writeFile(t, dir, "notes.txt", content)

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, units, 1)
		assert.Equal(t, content, units[0].Content)
		assert.Equal(t, "notes.txt", units[0].Source())
		assert.Equal(t, "txt", units[0].Metadata[document.KeyFileType])
	})

	t.Run("markdown file type", func(t *testing.T) {
		path := writeFile(t, dir, "README.md", "# Title\n\nBody")

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, units, 1)
		assert.Equal(t, "md", units[0].Metadata[document.KeyFileType])
		assert.Equal(t, "README.md", units[0].Source())
	})

	t.Run("invalid utf8", func(t *testing.T) {
		path := writeFile(t, dir, "bad.txt", string([]byte{0xff, 0xfe, 0x00}))

		_, err := New().Parse(context.Background(), path)
		assert.ErrorIs(t, err, ErrMalformedDocument)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := New().Parse(context.Background(), filepath.Join(dir, "nope.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestCSVParser(t *testing.T) {
	dir := t.TempDir()

	t.Run("one unit per row", func(t *testing.T) {
		path := writeFile(t, dir, "people.csv", "name,age\nAlice,30\nBob,25\n")

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, units, 2)

		assert.Equal(t, "name: Alice | age: 30", units[0].Content)
		assert.Equal(t, 1, units[0].Metadata[document.KeyRow])
		assert.Equal(t, "csv", units[0].Metadata[document.KeyFileType])
		assert.Equal(t, "people.csv", units[0].Source())

		assert.Equal(t, "name: Bob | age: 25", units[1].Content)
		assert.Equal(t, 2, units[1].Metadata[document.KeyRow])
	})

	t.Run("empty values omitted", func(t *testing.T) {
		path := writeFile(t, dir, "sparse.csv", "a,b,c\n1,,3\n,,\n")

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, units, 2)
		assert.Equal(t, "a: 1 | c: 3", units[0].Content)
		assert.Equal(t, "", units[1].Content)
	})

	t.Run("short and long rows", func(t *testing.T) {
		path := writeFile(t, dir, "ragged.csv", "a,b\n1\n1,2,3\n")

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, units, 2)
		assert.Equal(t, "a: 1", units[0].Content)
		assert.Equal(t, "a: 1 | b: 2", units[1].Content)
	})

	t.Run("byte order mark stripped", func(t *testing.T) {
		path := writeFile(t, dir, "bom.csv", "\ufeffname\nAlice\n")

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, units, 1)
		assert.Equal(t, "name: Alice", units[0].Content)
	})

	t.Run("header only", func(t *testing.T) {
		path := writeFile(t, dir, "header.csv", "name,age\n")

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		assert.Empty(t, units)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, dir, "empty.csv", "")

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		assert.Empty(t, units)
	})
}

func TestDOCXParser(t *testing.T) {
	dir := t.TempDir()

	t.Run("joins non-empty body paragraphs", func(t *testing.T) {
		xml := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t xml:space="preserve">   </w:t></w:r></w:p>
    <w:tbl><w:tr><w:tc><w:p><w:r><w:t>table cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
    <w:p><w:r><w:t>Second</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>
  </w:body>
</w:document>`
		path := writeDOCX(t, dir, "report.docx", xml)

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, units, 1)
		assert.Equal(t, "First paragraph\nSecond\ttabbed", units[0].Content)
		assert.Equal(t, "docx", units[0].Metadata[document.KeyFileType])
		assert.Equal(t, "report.docx", units[0].Source())
	})

	t.Run("ignores tab stops and text boxes", func(t *testing.T) {
		xml := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
    xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006"
    xmlns:wps="http://schemas.microsoft.com/office/word/2010/wordprocessingShape">
  <w:body>
    <w:p>
      <w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/><w:tab w:val="right" w:pos="9360"/></w:tabs></w:pPr>
      <w:r><w:t>Hello</w:t></w:r>
    </w:p>
    <w:p>
      <w:r><w:t>Outer</w:t></w:r>
      <w:r>
        <mc:AlternateContent><mc:Choice Requires="wps"><w:drawing><wps:txbx>
          <w:txbxContent><w:p><w:r><w:t>BOX</w:t></w:r></w:p></w:txbxContent>
        </wps:txbx></w:drawing></mc:Choice></mc:AlternateContent>
      </w:r>
    </w:p>
    <w:p><w:hyperlink r:id="rId1" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><w:r><w:t>linked</w:t></w:r></w:hyperlink></w:p>
  </w:body>
</w:document>`
		path := writeDOCX(t, dir, "layout.docx", xml)

		units, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, units, 1)
		assert.Equal(t, "Hello\nOuter\nlinked", units[0].Content)
	})

	t.Run("not a zip archive", func(t *testing.T) {
		path := writeFile(t, dir, "fake.docx", "plain text pretending")

		_, err := New().Parse(context.Background(), path)
		assert.ErrorIs(t, err, ErrMalformedDocument)
	})

	t.Run("archive without body", func(t *testing.T) {
		path := filepath.Join(dir, "nobody.docx")
		f, err := os.Create(path)
		require.NoError(t, err)
		zw := zip.NewWriter(f)
		_, err = zw.Create("docProps/core.xml")
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())

		_, err = New().Parse(context.Background(), path)
		assert.ErrorIs(t, err, ErrMalformedDocument)
	})
}

func TestPDFParser(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.pdf", "%PDF-1.4 stub")

	t.Run("drops blank pages", func(t *testing.T) {
		runner := &fakeRunner{output: []byte("Intro text\f   \n\fConclusion\f")}

		units, err := New(WithCommandRunner(runner)).Parse(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, units, 2)

		assert.Equal(t, "Intro text", units[0].Content)
		assert.Equal(t, 1, units[0].Metadata[document.KeyPage])
		assert.Equal(t, 3, units[0].Metadata[document.KeyTotalPages])
		assert.Equal(t, "pdf", units[0].Metadata[document.KeyFileType])
		assert.Equal(t, "paper.pdf", units[0].Source())

		assert.Equal(t, "Conclusion", units[1].Content)
		assert.Equal(t, 3, units[1].Metadata[document.KeyPage])
		assert.Equal(t, 3, units[1].Metadata[document.KeyTotalPages])

		require.Len(t, runner.calls, 1)
		assert.Equal(t, []string{pdfToolName, "-enc", "UTF-8", path, "-"}, runner.calls[0])
		assert.NotContains(t, runner.calls[0], "-layout")
	})

	t.Run("no text", func(t *testing.T) {
		runner := &fakeRunner{output: []byte("\f\f")}

		units, err := New(WithCommandRunner(runner)).Parse(context.Background(), path)
		require.NoError(t, err)
		assert.Empty(t, units)
	})

	t.Run("runner error", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("pdftotext crashed")}

		_, err := New(WithCommandRunner(runner)).Parse(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pdftotext crashed")
	})

	t.Run("tool missing", func(t *testing.T) {
		runner := &fakeRunner{err: ErrPDFToolNotFound}

		_, err := New(WithCommandRunner(runner)).Parse(context.Background(), path)
		assert.ErrorIs(t, err, ErrPDFToolNotFound)
	})

	t.Run("missing file never reaches runner", func(t *testing.T) {
		runner := &fakeRunner{}

		_, err := New(WithCommandRunner(runner)).Parse(context.Background(), filepath.Join(dir, "gone.pdf"))
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Empty(t, runner.calls)
	})
}

func TestSplitPages(t *testing.T) {
	assert.Nil(t, splitPages(""))
	assert.Equal(t, []string{"a"}, splitPages("a"))
	assert.Equal(t, []string{"a"}, splitPages("a\f"))
	assert.Equal(t, []string{"a", "", "b"}, splitPages("a\f\fb\f"))
}
