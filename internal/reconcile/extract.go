package reconcile

import (
	"net/url"
	"strings"
)

// Payload paths are walked segment by segment; an int segment indexes into
// an array, a string segment into an object.
type path []any

// Provider payloads disagree on where the finished asset lives. The first
// candidate holding an absolute http(s) URL wins.
var mediaURLPaths = []path{
	{"output"},
	{"output", 0},
	{"output", 0, "url"},
	{"video_url"},
	{"url"},
	{"data", "task_result", "videos", 0, "url"},
	{"data", "video_url"},
	{"result", "url"},
	{"videos", 0, "url"},
	{"assets", "video"},
}

var nativeIDPaths = []path{
	{"id"},
	{"task_id"},
	{"data", "task_id"},
	{"prediction_id"},
}

var statusPaths = []path{
	{"status"},
	{"task_status"},
	{"data", "task_status"},
	{"state"},
}

var errorPaths = []path{
	{"error", "message"},
	{"error"},
	{"data", "task_status_msg"},
	{"failure_reason"},
}

func lookup(node any, p path) (any, bool) {
	cur := node
	for _, seg := range p {
		switch key := seg.(type) {
		case string:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = obj[key]; !ok {
				return nil, false
			}
		case int:
			arr, ok := cur.([]any)
			if !ok || key >= len(arr) {
				return nil, false
			}
			cur = arr[key]
		default:
			return nil, false
		}
	}
	return cur, true
}

func firstString(node any, paths []path) string {
	for _, p := range paths {
		v, ok := lookup(node, p)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// extractMediaURL returns the first candidate that is an absolute http(s) URL.
func extractMediaURL(payload map[string]any) string {
	for _, p := range mediaURLPaths {
		v, ok := lookup(payload, p)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if isMediaURL(s) {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func isMediaURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func extractNativeID(payload map[string]any) string {
	return firstString(payload, nativeIDPaths)
}

func extractStatus(payload map[string]any) string {
	return firstString(payload, statusPaths)
}

func extractError(payload map[string]any) string {
	return firstString(payload, errorPaths)
}
