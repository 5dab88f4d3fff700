package harvest

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// fallbacks are tried in order when detection is inconclusive. Single-byte
// Western encodings come first since they are the most common on pages that
// are not UTF-8.
var fallbacks = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
	charmap.ISO8859_15,
	japanese.ShiftJIS,
	japanese.EUCJP,
	korean.EUCKR,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
}

// toUTF8 returns data as UTF-8. Valid UTF-8 is returned unchanged;
// otherwise the charset is detected, then common encodings are tried, and
// finally invalid bytes are replaced with U+FFFD.
func toUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res.Confidence >= minConfidence {
		if enc := encodingByName(res.Charset); enc != nil {
			if out, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(out) {
				return out
			}
		}
	}

	for _, enc := range fallbacks {
		if out, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(out) {
			return out
		}
	}
	return []byte(strings.ToValidUTF8(string(data), "\uFFFD"))
}

// encodingByName maps the charset names chardet reports to decoders.
func encodingByName(name string) encoding.Encoding {
	switch name {
	case "windows-1252":
		return charmap.Windows1252
	case "ISO-8859-1":
		return charmap.ISO8859_1
	case "ISO-8859-2":
		return charmap.ISO8859_2
	case "ISO-8859-15":
		return charmap.ISO8859_15
	case "KOI8-R":
		return charmap.KOI8R
	case "Shift_JIS":
		return japanese.ShiftJIS
	case "EUC-JP":
		return japanese.EUCJP
	case "ISO-2022-JP":
		return japanese.ISO2022JP
	case "EUC-KR":
		return korean.EUCKR
	case "GB-18030":
		return simplifiedchinese.GB18030
	case "Big5":
		return traditionalchinese.Big5
	default:
		return nil
	}
}
