package hclblock

import "strings"

// PatchResult is the outcome of applying one block replacement. FellBack is
// set when the block was not found and the replacement was appended instead;
// callers must surface it to the reviewer, a silent fallback hides the fact
// that the file did not contain what the model thought it did.
type PatchResult struct {
	Content  string
	FellBack bool
	Diff     string
}

// Patch replaces the located span with newBlockText. When the block was not
// found the new block is appended at end of file and FellBack is set. The
// diff is a line-based unified rendering for display only.
func Patch(path, content string, loc LocateResult, newBlockText string) PatchResult {
	var patched string
	fellBack := false
	if loc.Found {
		patched = content[:loc.Start] + newBlockText + content[loc.End:]
	} else {
		patched = appendBlock(content, newBlockText)
		fellBack = true
	}
	return PatchResult{
		Content:  patched,
		FellBack: fellBack,
		Diff:     Unified(path, content, patched),
	}
}

func appendBlock(content, blockText string) string {
	if content == "" {
		return blockText + "\n"
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + blockText + "\n"
}
