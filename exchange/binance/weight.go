package binance

import (
	"net/http"
	"strconv"
	"strings"

	"tradeflow/logger"
)

// ReportUsedWeight parses the used request weight from the response
// headers and emits a single `used_weight` gauge. limit is the
// per-minute budget fetched from the instrument metadata, 0 if unknown.
func ReportUsedWeight(log *logger.Log, header http.Header, limit int64) {
	usedStr := header.Get("X-MBX-USED-WEIGHT-1M")
	if usedStr == "" {
		return
	}
	used, _ := strconv.ParseInt(usedStr, 10, 64)

	fields := logger.Fields{}
	if limit > 0 {
		fields["limit"] = limit
	}
	log.WithComponent("binance_client").LogMetric("binance_client", "used_weight", used, "gauge", fields)
}

// detectLimit inspects a rejection and determines whether it signals a
// rate limit exceed or an IP ban. HTTP 429 means backing off is
// required; 418 means the IP has been auto-banned for not doing so.
func detectLimit(status int, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	ipBan = status == http.StatusTeapot ||
		(strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
	rateLimit = !ipBan &&
		(status == http.StatusTooManyRequests ||
			strings.Contains(lowerMsg, "too many requests") ||
			strings.Contains(lowerMsg, "rate limit"))
	return
}

// ReportLimitFromError checks an exchange rejection for rate limit or IP
// ban signals and records the matching metrics. Other rejections are
// left alone.
func ReportLimitFromError(log *logger.Log, apiErr *APIError) {
	rateLimit, ipBan := detectLimit(apiErr.Status, apiErr.Message)
	l := log.WithComponent("binance_client")
	fields := logger.Fields{"status": apiErr.Status, "code": apiErr.Code}
	if rateLimit {
		l.LogMetric("binance_client", "rate_limit_exceeded", int64(1), "counter", fields)
		l.WithFields(fields).Warn("rate limit exceeded")
	}
	if ipBan {
		l.LogMetric("binance_client", "ip_ban", int64(1), "counter", fields)
		l.WithFields(fields).Error("ip banned")
	}
}
