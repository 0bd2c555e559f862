package feedparse

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLinkTypes はHTMLの<link rel="alternate">で自動検出対象とするtype属性値。
var feedLinkTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// discoverFeedURL はHTML文書から<link rel="alternate" type="application/rss+xml|atom+xml">
// のフィードURLを検出する。最初に見つかった候補を返し、見つからない場合は空文字を返す。
// 相対URLはbaseURLで解決する。
func discoverFeedURL(baseURL string, body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, typ, href string
			for _, attr := range n.Attr {
				switch strings.ToLower(attr.Key) {
				case "rel":
					rel = strings.ToLower(attr.Val)
				case "type":
					typ = strings.ToLower(attr.Val)
				case "href":
					href = attr.Val
				}
			}
			if rel == "alternate" && href != "" && isFeedLinkType(typ) {
				found = resolveRef(baseURL, href)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return found
}

// resolveRef は相対URLをベースURLに対して解決する。
// 解決できない場合はhrefをそのまま返す。
func resolveRef(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// isFeedLinkType はtype属性がフィードを指すかを判定する。
func isFeedLinkType(typ string) bool {
	for _, t := range feedLinkTypes {
		if typ == t {
			return true
		}
	}
	return false
}
