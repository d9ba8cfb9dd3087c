package chat

import (
	"regexp"
	"strconv"
)

var imageTagRe = regexp.MustCompile(`^\[\[img:(\d+)\]\]$`)

// ImageTag is the message body that stands for an uploaded image.
func ImageTag(mediaID int64) string {
	return "[[img:" + strconv.FormatInt(mediaID, 10) + "]]"
}

// ParseImageTag returns the media ID when text is exactly an image tag.
func ParseImageTag(text string) (int64, bool) {
	m := imageTagRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
