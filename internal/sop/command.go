package sop

import (
	"regexp"
	"strings"
)

// Command is the classified purpose of an inbound customer message.
type Command string

const (
	CommandStatus  Command = "status"
	CommandInvoice Command = "invoice"
	CommandPickup  Command = "pickup"
	CommandSupport Command = "support"
	CommandApprove Command = "approve"
	CommandReject  Command = "reject"
	CommandUnknown Command = "unknown"
)

// storableCommands are the values allowed in persisted session metadata.
// CommandUnknown is never stored; the previous value is retained instead.
var storableCommands = map[Command]bool{
	CommandStatus:  true,
	CommandInvoice: true,
	CommandPickup:  true,
	CommandSupport: true,
	CommandApprove: true,
	CommandReject:  true,
}

// ClassifierConfig holds the keyword alternatives per command. Keywords are
// matched case-insensitively on word boundaries; spaces inside a keyword match
// any run of whitespace ("tak setuju" matches "tak  setuju").
type ClassifierConfig struct {
	Reject  []string
	Approve []string
	Pickup  []string
	Invoice []string
	Status  []string
	Support []string
}

// DefaultClassifierConfig returns the bilingual (Malay/English) keyword sets,
// including the numeric quick-menu shortcuts 1-4.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Reject:  []string{"tak setuju", "tidak setuju", "tolak", "reject", "no"},
		Approve: []string{"setuju", "approve", "lulus", "ya", "yes", "ok"},
		Pickup:  []string{"3", "pickup", "ambik", "ambil", "collect", "pengambilan"},
		Invoice: []string{"2", "invoice", "invois", "resit", "bill", "bayar", "bayaran", "payment"},
		Status:  []string{"1", "status", "progress", "kemajuan", "update"},
		Support: []string{"4", "staf", "staff", "manusia", "agent", "bantuan", "tolong", "hubungi"},
	}
}

// Classifier maps free text to a Command using ordered regex matching.
// Reject is checked before approve: reject phrases like "tak setuju" contain
// the approve keyword "setuju", so the order is load-bearing.
type Classifier struct {
	ordered []struct {
		command Command
		pattern *regexp.Regexp
	}
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	c := &Classifier{}
	add := func(command Command, keywords []string) {
		if len(keywords) == 0 {
			return
		}
		c.ordered = append(c.ordered, struct {
			command Command
			pattern *regexp.Regexp
		}{command, compileKeywords(keywords)})
	}
	add(CommandReject, cfg.Reject)
	add(CommandApprove, cfg.Approve)
	add(CommandPickup, cfg.Pickup)
	add(CommandInvoice, cfg.Invoice)
	add(CommandStatus, cfg.Status)
	add(CommandSupport, cfg.Support)
	return c
}

func compileKeywords(keywords []string) *regexp.Regexp {
	alts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		quoted := regexp.QuoteMeta(strings.TrimSpace(kw))
		alts = append(alts, strings.ReplaceAll(quoted, `\ `, `\s*`))
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(alts, "|") + `)\b`)
}

// Classify is a pure function: same input, same result. Empty or unmatched
// input yields CommandUnknown.
func (c *Classifier) Classify(text string) Command {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return CommandUnknown
	}
	for _, entry := range c.ordered {
		if entry.pattern.MatchString(normalized) {
			return entry.command
		}
	}
	return CommandUnknown
}
