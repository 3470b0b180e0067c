package templates

import (
	"strings"
)

var markdownV2Replacer = strings.NewReplacer(
	"\\", "\\\\", // backslash first
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMarkdownV2 escapes special characters for Telegram MarkdownV2 format.
// Outside code and link entities every one of _*[]()~`>#+-=|{}.! must be escaped.
func EscapeMarkdownV2(text string) string {
	return markdownV2Replacer.Replace(text)
}

// SafeTextV2 drops invalid UTF-8 and escapes MarkdownV2 characters
func SafeTextV2(text string) string {
	return EscapeMarkdownV2(strings.ToValidUTF8(text, ""))
}
