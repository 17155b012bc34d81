package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/penwyp/ScreenCat/models"
)

// Key layout. Every composite natural key maps to exactly one badger key, so
// writes are upserts.
const (
	prefixSession  = "session/"
	prefixHour     = "hour/"
	prefixDaily    = "daily/"
	prefixPeriod   = "period/"
	prefixRPDaily  = "rp/daily/"
	prefixRPPeriod = "rp/period/"
	prefixNotified = "notified/"

	keyWatermark   = "state/watermark"
	keySessionSeq  = "seq/session"
	sessionIDWidth = 20
)

func sessionDatePrefix(date string) string {
	return prefixSession + date + "/"
}

func sessionKey(date string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%0*d", prefixSession, date, sessionIDWidth, id))
}

// sessionKeyDate extracts the date segment of a session key
func sessionKeyDate(key []byte) string {
	rest := strings.TrimPrefix(string(key), prefixSession)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}

func hourDatePrefix(date string) string {
	return prefixHour + date + "/"
}

func hourKey(b models.HourBucket) []byte {
	offline := 0
	if b.Offline {
		offline = 1
	}
	return []byte(fmt.Sprintf("%s%s/%d/%02d/%d", prefixHour, b.Date, b.CategoryID, b.Hour, offline))
}

func dailyDatePrefix(date string) string {
	return prefixDaily + date + "/"
}

func dailyKey(date string, categoryID int64) []byte {
	return []byte(dailyDatePrefix(date) + strconv.FormatInt(categoryID, 10))
}

func periodPrefix(kind models.PeriodKind, key string) string {
	return prefixPeriod + string(kind) + "/" + key + "/"
}

func periodKey(kind models.PeriodKind, key string, categoryID int64) []byte {
	return []byte(periodPrefix(kind, key) + strconv.FormatInt(categoryID, 10))
}

func rpDailyPrefix(date string) string {
	return prefixRPDaily + date + "/"
}

func rpDailyKey(date string, categoryID int64) []byte {
	return []byte(rpDailyPrefix(date) + strconv.FormatInt(categoryID, 10))
}

func rpPeriodPrefix(kind models.PeriodKind, key string) string {
	return prefixRPPeriod + string(kind) + "/" + key + "/"
}

func rpPeriodKey(kind models.PeriodKind, key string, categoryID int64) []byte {
	return []byte(rpPeriodPrefix(kind, key) + strconv.FormatInt(categoryID, 10))
}

func notifiedKey(date string, categoryID int64, kind string) []byte {
	return []byte(fmt.Sprintf("%s%s/%d/%s", prefixNotified, date, categoryID, kind))
}

// dateBetween reports whether date lies in [first, last]; YYYY-MM-DD sorts lexically
func dateBetween(date, first, last string) bool {
	return date >= first && date <= last
}
