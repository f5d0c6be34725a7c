package fetch

import (
	"fmt"
	"net/url"
	"strings"
)

// Key builds a cache key from a query name, the user and the parameters.
// url.Values are encoded with sorted keys so equal parameter sets always map
// to the same key.
func Key(name, userID string, params ...any) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('|')
	b.WriteString(userID)
	for _, p := range params {
		b.WriteByte('|')
		switch v := p.(type) {
		case url.Values:
			b.WriteString(v.Encode())
		case fmt.Stringer:
			b.WriteString(v.String())
		default:
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// UserPrefix is the common prefix of every key Key builds for name and user.
func UserPrefix(name, userID string) string {
	return name + "|" + userID
}
