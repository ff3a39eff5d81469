package stream

import (
	"strings"
)

// Key identifies a stream by application and stream name.
type Key struct {
	App  string
	Name string
}

// String returns the stream path in "/app/name" form.
func (k Key) String() string {
	return "/" + k.App + "/" + k.Name
}

// ParseKey는 "/app/name" 형태의 경로를 Key로 변환한다.
func ParseKey(path string) (Key, bool) {
	path = strings.TrimPrefix(path, "/")
	app, name, ok := strings.Cut(path, "/")
	if !ok || app == "" || name == "" {
		return Key{}, false
	}
	return Key{App: app, Name: name}, true
}
