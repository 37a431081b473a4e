package extract

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// decoder normalizes entry bytes to UTF-8: a UTF-8 BOM is stripped and
// content that is not valid UTF-8 is decoded with the fallback charset.
type decoder struct {
	fallback encoding.Encoding
}

func newDecoder(charset string) (*decoder, error) {
	if charset == "" {
		return &decoder{}, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("extract: unknown fallback charset %q: %w", charset, err)
	}
	return &decoder{fallback: enc}, nil
}

func (d *decoder) decode(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		out, err := unicode.UTF8BOM.NewDecoder().Bytes(raw)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	if d.fallback == nil {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	out, err := d.fallback.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
