// Package changeset turns a parsed ChangeProposal into a PatchSet: the
// complete, atomic set of per-file content changes ready for review and
// publication.
package changeset

import (
	"context"
	"fmt"

	"infrachat/gateway/internal/domain"
	"infrachat/gateway/internal/hclblock"
)

// FileFetcher returns the current content of a repository file. A missing
// file is not an error: it returns ("", false, nil) and patches against it
// fall back to appending into a new file.
type FileFetcher func(ctx context.Context, path string) (content string, exists bool, err error)

// FetchError reports that the current content of a target file could not be
// retrieved. The whole build fails fast: no partial PatchSet is returned.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PatchError reports that one item's patch failed, currently only because
// the target file's braces never balance. A single malformed file fails the
// whole build: a PatchSet is atomic.
type PatchError struct {
	Path      string
	Signature string
	Err       error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch %s block %q: %v", e.Path, e.Signature, e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

// Build applies every item of the proposal in order. Each distinct file is
// fetched once; later items targeting the same file operate on the already
// patched content, so two edits to one file in one proposal compose.
func Build(ctx context.Context, proposal domain.ChangeProposal, fetch FileFetcher) (domain.PatchSet, error) {
	set := domain.PatchSet{Files: map[string]string{}}

	for _, item := range proposal.Items {
		current, fetched := set.Files[item.TargetFile]
		if !fetched {
			content, _, err := fetch(ctx, item.TargetFile)
			if err != nil {
				return domain.PatchSet{}, &FetchError{Path: item.TargetFile, Err: err}
			}
			current = content
		}

		loc, err := hclblock.Locate(current, item.BlockSignature)
		if err != nil {
			return domain.PatchSet{}, &PatchError{Path: item.TargetFile, Signature: item.BlockSignature, Err: err}
		}
		result := hclblock.Patch(item.TargetFile, current, loc, item.NewBlockText)

		set.Files[item.TargetFile] = result.Content
		set.Diffs = append(set.Diffs, domain.FileDiff{
			Path:     item.TargetFile,
			Diff:     result.Diff,
			FellBack: result.FellBack,
		})
		if result.FellBack {
			set.AnyFallback = true
		}
	}
	return set, nil
}
