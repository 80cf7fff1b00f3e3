package utils

import (
	"net/url"
	"strings"
)

func hexValue(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// unescapeLenient decodes %XX escapes and keeps every other byte as is,
// including '+' and malformed escapes. Subset expressions carry quotes,
// commas and '+' signs that url.QueryUnescape would reject or rewrite.
func unescapeLenient(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := hexValue(s[i+1])
			lo, ok2 := hexValue(s[i+2])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ParseQuery splits a KVP query string into lower cased keys and their
// values. A '&' preceded by a backslash does not separate parameters.
// Subset, where and geometry values are decoded leniently. The first
// decoding error is returned along with every parameter that parsed.
func ParseQuery(query string) (url.Values, error) {
	m := make(url.Values)
	var firstErr error
	for query != "" {
		pair := query
		sep := -1
		for i := 0; i < len(pair); i++ {
			if pair[i] == '&' && (i == 0 || pair[i-1] != '\\') {
				sep = i
				break
			}
		}
		if sep >= 0 {
			pair, query = pair[:sep], pair[sep+1:]
		} else {
			query = ""
		}
		if pair == "" {
			continue
		}

		key, value := pair, ""
		if i := strings.Index(pair, "="); i >= 0 {
			key, value = pair[:i], strings.ReplaceAll(pair[i+1:], `\&`, "&")
		}
		key, err := url.QueryUnescape(key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		key = strings.ToLower(key)

		switch key {
		case "subset", "where", "geometry":
			value = unescapeLenient(value)
		default:
			value, err = url.QueryUnescape(value)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}
		m[key] = append(m[key], value)
	}
	return m, firstErr
}
