package market

import (
	"fmt"
	"strings"
)

// Feed 行情源数据通道：IEX 免费，SIP 为全市场合并行情。
type Feed string

const (
	FeedIEX Feed = "iex"
	FeedSIP Feed = "sip"
)

// ParseFeed 大小写不敏感地解析 feed 名称。
func ParseFeed(s string) (Feed, error) {
	switch Feed(strings.ToLower(strings.TrimSpace(s))) {
	case FeedIEX:
		return FeedIEX, nil
	case FeedSIP:
		return FeedSIP, nil
	default:
		return "", fmt.Errorf("unknown feed %q (want iex or sip)", s)
	}
}

func (f Feed) String() string { return string(f) }
