package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking intercepts requests and aborts the configured
// resource types. XHR and fetch traffic is never blocked: the capture
// channel reads product payloads from exactly those responses.
func applyResourceBlocking(page *rod.Page, types []string) error {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[normalizeResourceType(t)] = true
	}
	delete(blockSet, "xhr")
	delete(blockSet, "fetch")

	router := page.HijackRequests()

	err := router.Add("*", "", func(ctx *rod.Hijack) {
		if blockSet[strings.ToLower(string(ctx.Request.Type()))] {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return err
	}

	go router.Run()

	return nil
}

// normalizeResourceType accepts both plural config names ("images") and
// the CDP singular forms ("image").
func normalizeResourceType(t string) string {
	lower := strings.ToLower(strings.TrimSpace(t))
	switch lower {
	case "images":
		return "image"
	case "fonts":
		return "font"
	case "stylesheets":
		return "stylesheet"
	}
	return lower
}
