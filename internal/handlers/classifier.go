package handlers

import (
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"regexp"
)

// Category is the single semantic bucket assigned to an inbound message.
// Buckets are mutually exclusive; the checks run in a fixed order.
type Category int

const (
	CategoryIgnored Category = iota
	CategoryPlainContent
	CategoryMembershipChange
	CategorySystemNotice
	CategoryDangerousAttachment
	CategoryLinkContent
)

func (c Category) String() string {
	switch c {
	case CategoryPlainContent:
		return "plain"
	case CategoryMembershipChange:
		return "membership_change"
	case CategorySystemNotice:
		return "system_notice"
	case CategoryDangerousAttachment:
		return "dangerous_attachment"
	case CategoryLinkContent:
		return "link_content"
	default:
		return "ignored"
	}
}

// Classification is produced once per message and consumed by the pipeline;
// raw message fields are never re-inspected downstream.
type Classification struct {
	Category   Category
	NoticeKind string     // system notice flavor, for logging
	FileName   string     // offending attachment name
	LinkKinds  []string   // which link patterns matched
	NewMembers []api.User // members added by the sender
}

var dangerousExtensions = []string{".apk", ".xapk", ".apkm", ".exe", ".bat", ".cmd", ".scr", ".msi"}

// Package-level patterns: Go's regexp carries no matching state between
// calls, so concurrent and repeated use is safe.
var (
	reHTTPURL      = regexp.MustCompile(`(?i)https?://[^\s<>"\]]+`)
	reTelegramLink = regexp.MustCompile(`(?i)\bt\.me/[^\s<>"\]]+`)
	reMention      = regexp.MustCompile(`@[a-zA-Z][a-zA-Z0-9_]{4,}`)
	reShortURL     = regexp.MustCompile(`(?i)\b(?:bit\.ly|goo\.gl|tinyurl\.com|ow\.ly|is\.gd|buff\.ly|t\.co)/[^\s<>"\]]+`)
)

// ClassifyMessage maps a raw message to exactly one category. Checks run in
// fixed order: membership change, system notice, dangerous attachment, link
// content. Messages authored by bots never classify as link content but stay
// eligible for the notice categories.
func ClassifyMessage(msg *api.Message) Classification {
	if msg == nil {
		return Classification{Category: CategoryIgnored}
	}

	if len(msg.NewChatMembers) > 0 {
		return Classification{
			Category:   CategoryMembershipChange,
			NoticeKind: "new_chat_members",
			NewMembers: msg.NewChatMembers,
		}
	}

	if kind := systemNoticeKind(msg); kind != "" {
		return Classification{Category: CategorySystemNotice, NoticeKind: kind}
	}

	if msg.Document != nil && isDangerousFileName(msg.Document.FileName) {
		return Classification{Category: CategoryDangerousAttachment, FileName: msg.Document.FileName}
	}

	fromBot := msg.From != nil && msg.From.IsBot
	if !fromBot && !strings.HasPrefix(messageText(msg), "/") {
		if kinds := detectLinks(msg); len(kinds) > 0 {
			return Classification{Category: CategoryLinkContent, LinkKinds: kinds}
		}
	}

	return Classification{Category: CategoryPlainContent}
}

func systemNoticeKind(msg *api.Message) string {
	switch {
	case msg.LeftChatMember != nil:
		return "left_chat_member"
	case msg.NewChatTitle != "":
		return "new_chat_title"
	case len(msg.NewChatPhoto) > 0:
		return "new_chat_photo"
	case msg.DeleteChatPhoto:
		return "delete_chat_photo"
	case msg.PinnedMessage != nil:
		return "pinned_message"
	case msg.GroupChatCreated:
		return "group_chat_created"
	case msg.SuperGroupChatCreated:
		return "supergroup_chat_created"
	case msg.ChannelChatCreated:
		return "channel_chat_created"
	case msg.MigrateToChatID != 0:
		return "migrate_to_chat_id"
	case msg.MigrateFromChatID != 0:
		return "migrate_from_chat_id"
	}
	return ""
}

func isDangerousFileName(fileName string) bool {
	if fileName == "" {
		return false
	}
	lower := strings.ToLower(fileName)
	for _, ext := range dangerousExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func messageText(msg *api.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func detectLinks(msg *api.Message) []string {
	text := messageText(msg)
	var kinds []string
	seen := map[string]bool{}
	add := func(kind string) {
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}

	if reHTTPURL.MatchString(text) {
		add("url")
	}
	if reTelegramLink.MatchString(text) {
		add("telegram")
	}
	if reMention.MatchString(text) {
		add("mention")
	}
	if reShortURL.MatchString(text) {
		add("short_url")
	}

	entities := append(append([]api.MessageEntity{}, msg.Entities...), msg.CaptionEntities...)
	for _, entity := range entities {
		switch entity.Type {
		case "url":
			add("url")
		case "text_link":
			// A visible label concealing a different underlying URL.
			add("hidden_link")
		case "mention":
			add("mention")
		}
	}
	return kinds
}
