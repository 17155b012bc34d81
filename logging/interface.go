package logging

import (
	"fmt"
	"sort"
	"strings"
)

// LoggerInterface is what components depend on
type LoggerInterface interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
}

var _ LoggerInterface = (*Logger)(nil)

// Fields formats key/value context as "k1=v1 k2=v2" with sorted keys
type Fields map[string]interface{}

func (f Fields) String() string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, f[k])
	}
	return b.String()
}
