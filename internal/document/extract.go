// Package document turns raw uploaded bytes into chunks with metadata.
// Extraction is best-effort; chunking never truncates mid-sentence or
// mid-word when a nearby break boundary exists.
package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	ferrors "github.com/figurechat/figurechat/internal/errors"
)

// Accepted file types.
const (
	TypePDF  = "pdf"
	TypeTXT  = "txt"
	TypeText = "text"
	TypeDOCX = "docx"
)

// SupportedType reports whether the declared file type can be extracted.
func SupportedType(fileType string) bool {
	switch strings.ToLower(fileType) {
	case TypePDF, TypeTXT, TypeText, TypeDOCX:
		return true
	}
	return false
}

// ExtractText extracts plain text from the raw bytes of a file with the
// declared type. An unsupported type or empty extraction yields a decode
// error; callers skip the file.
func ExtractText(data []byte, fileType string) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(fileType) {
	case TypePDF:
		text, err = extractPDF(data)
	case TypeTXT, TypeText:
		text, err = extractTXT(data)
	case TypeDOCX:
		text, err = extractDOCX(data)
	default:
		return "", ferrors.New(ferrors.ErrCodeUnsupportedFileType,
			"unsupported file type: "+fileType, nil)
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", ferrors.Decode("no text extracted", nil)
	}

	return text, nil
}

// extractPDF extracts text page by page. Pages that fail to extract are
// skipped with a warning.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", ferrors.Decode("opening PDF", err)
	}

	var sb strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unextractable PDF page",
				slog.Int("page", i),
				slog.String("error", err.Error()))
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}

	return sb.String(), nil
}

// extractTXT decodes text attempting UTF-8, UTF-16, then Latin-1, with a
// final fallback of UTF-8 with replacement runes.
func extractTXT(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	// UTF-16 with BOM.
	if len(data) >= 2 {
		bom := [2]byte{data[0], data[1]}
		if bom == [2]byte{0xFF, 0xFE} || bom == [2]byte{0xFE, 0xFF} {
			dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
			if decoded, err := dec.Bytes(data); err == nil {
				return string(decoded), nil
			}
		}
	}

	// Latin-1 maps every byte, so this cannot fail; it is the terminal
	// single-byte fallback before UTF-8-with-replacement.
	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		return string(decoded), nil
	}

	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil
}

// docx XML fragments we care about: paragraphs and text runs. Table cell
// text appears in document order, so streaming the <w:t> elements and
// emitting a newline per closed paragraph yields paragraphs followed by
// table rows with newlines between structural units.
func extractDOCX(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", ferrors.Decode("opening DOCX", err)
	}

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", ferrors.Decode("word/document.xml not found in DOCX", nil)
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", ferrors.Decode("opening document.xml", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", ferrors.Decode("reading document.xml", err)
	}

	decoder := xml.NewDecoder(bytes.NewReader(raw))

	var sb strings.Builder
	var inText bool
	paraHasText := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", ferrors.Decode("parsing DOCX XML", err)
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
				if paraHasText {
					sb.WriteString("\n")
					paraHasText = false
				}
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
				paraHasText = true
			}
		}
	}

	return sb.String(), nil
}
