package protocol

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

const xmlDeclaration = `<?xml version="1.0" encoding="GB2312" standalone="yes" ?>` + "\n"

// MakeBody wraps an inner XML fragment in the command envelope the firmware
// expects: declaration, Command element with the id attribute, and a
// terminating NUL.
func MakeBody(cmdID int, inner string) []byte {
	var b bytes.Buffer
	b.WriteString(xmlDeclaration)
	fmt.Fprintf(&b, "<Command ID=\"%d\">\n    %s\n</Command>\n", cmdID, inner)
	b.WriteByte(0)
	return b.Bytes()
}

// ParseBody turns raw body bytes into a string. Trailing NULs are stripped.
// Despite the GB2312 declaration most firmware replies are plain ASCII;
// bodies that are not valid UTF-8 are decoded as GBK, and anything still
// undecodable is kept with replacement runes rather than dropped.
func ParseBody(raw []byte) string {
	b := bytes.TrimRight(raw, "\x00")
	if utf8.Valid(b) {
		return string(b)
	}
	if dec, err := simplifiedchinese.GBK.NewDecoder().Bytes(b); err == nil {
		return string(dec)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// Snippet truncates a body for inclusion in errors and logs.
func Snippet(body string) string {
	const max = 200
	if len(body) <= max {
		return body
	}
	return body[:max]
}
