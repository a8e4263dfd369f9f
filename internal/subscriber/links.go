package subscriber

import (
	"net/url"
	"strings"
)

// Links builds the capability links carried in emails. The verification
// token doubles as the unsubscribe capability.
type Links struct {
	Base string
}

func (l Links) Verify(token string) string {
	return l.with("/verify", token)
}

func (l Links) Unsubscribe(token string) string {
	return l.with("/unsubscribe", token)
}

func (l Links) with(path, token string) string {
	return strings.TrimRight(l.Base, "/") + path + "?token=" + url.QueryEscape(token)
}
