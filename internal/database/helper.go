package database

import (
	"strings"
	"time"
)

const defaultPerPage = 20

// timeLayout is fixed width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// normalizePage clamps pagination arguments and returns the offset.
func normalizePage(page, perPage int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	return page, perPage, (page - 1) * perPage
}

// pageBounds returns the [start, end) window of a page over total items.
func pageBounds(offset, perPage, total int) (int, int) {
	if offset >= total {
		return total, total
	}
	end := offset + perPage
	if end > total {
		end = total
	}
	return offset, end
}

func normalizeMD5(md5 string) string {
	return strings.ToLower(strings.TrimSpace(md5))
}
