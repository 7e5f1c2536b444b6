// Package parser extracts change proposals from free-text generation model
// output. The model is asked to follow the Summary:/Terraform: format but the
// parser never trusts it: every section is extracted independently and a
// section that fails to match yields an empty field, not an error.
package parser

import (
	"regexp"
	"strings"

	"infrachat/gateway/internal/domain"
)

var (
	summaryPattern = regexp.MustCompile(`(?s)Summary:\s*(.*?)\s*(?:Change:|Terraform:|File:|$)`)

	// Fenced block directly after a Change: or Terraform: marker.
	markedChangePattern = regexp.MustCompile("(?s)(?:Change|Terraform):\\s*```([a-zA-Z0-9_-]*)[ \\t]*\\n(.*?)\\n?```")

	// Any fenced block of a recognized infra content type, used when the
	// marker form is absent.
	looseChangePattern = regexp.MustCompile("(?s)```(diff|hcl|terraform|tf)[ \\t]*\\n(.*?)\\n?```")

	// Repeated File: <path> Block: <signature> ```<type> ... ``` groups.
	fileBlockPattern = regexp.MustCompile("(?s)File:\\s*(\\S+)\\s+Block:\\s*([^\\n`]+?)\\s*```([a-zA-Z0-9_-]*)[ \\t]*\\n(.*?)\\n?```")

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Parse extracts a ChangeProposal from raw model output. It never fails:
// malformed or absent sections produce empty fields while the remaining
// sections are still extracted.
func Parse(raw string) domain.ChangeProposal {
	proposal := domain.ChangeProposal{RawResponse: raw}
	proposal.Summary = extractSummary(raw)
	proposal.Items = extractItems(raw)
	if len(proposal.Items) == 0 {
		proposal.Change, proposal.ChangeType = extractChange(raw)
	}
	return proposal
}

func extractSummary(raw string) string {
	match := summaryPattern.FindStringSubmatch(raw)
	if match == nil {
		return ""
	}
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(match[1]), " ")
}

// changeStrategy is one way of finding the single-change code body. The
// strategies are tried in order and the first hit wins, keeping the
// marker-first-then-fallback policy explicit.
type changeStrategy func(raw string) (code, contentType string, ok bool)

var changeStrategies = []changeStrategy{
	markedChange,
	looseChange,
}

func extractChange(raw string) (string, string) {
	for _, strategy := range changeStrategies {
		if code, contentType, ok := strategy(raw); ok {
			return code, contentType
		}
	}
	return "", ""
}

func markedChange(raw string) (string, string, bool) {
	match := markedChangePattern.FindStringSubmatch(raw)
	if match == nil {
		return "", "", false
	}
	return strings.TrimRight(match[2], "\n"), strings.ToLower(match[1]), true
}

func looseChange(raw string) (string, string, bool) {
	match := looseChangePattern.FindStringSubmatch(raw)
	if match == nil {
		return "", "", false
	}
	return strings.TrimRight(match[2], "\n"), strings.ToLower(match[1]), true
}

func extractItems(raw string) []domain.ChangeItem {
	matches := fileBlockPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	items := make([]domain.ChangeItem, 0, len(matches))
	for _, match := range matches {
		path := strings.TrimSpace(match[1])
		signature := whitespaceRun.ReplaceAllString(strings.TrimSpace(match[2]), " ")
		code := strings.TrimRight(match[4], "\n")
		if path == "" || signature == "" || strings.TrimSpace(code) == "" {
			continue
		}
		items = append(items, domain.ChangeItem{
			TargetFile:     path,
			BlockSignature: signature,
			NewBlockText:   code,
		})
	}
	return items
}
