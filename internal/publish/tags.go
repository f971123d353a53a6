package publish

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/conveyorci/conveyor/internal/trigger"
)

// TagsFor derives the full tag set for a publish run: a ref-specific tag plus
// a rolling tag. The derivation is one function per RefKind variant so the
// branch/tag split stays exhaustive.
func TagsFor(image string, ref string, kind trigger.RefKind) ([]string, error) {
	switch kind {
	case trigger.Tag:
		return tagRefTags(image, ref)
	case trigger.Branch:
		return branchRefTags(image, ref)
	}
	return nil, fmt.Errorf("unknown ref kind %q", kind)
}

// tagRefTags: tag-type refs get {ref-name, "stable"}.
func tagRefTags(image string, ref string) ([]string, error) {
	return validateTags(image, ref, "stable")
}

// branchRefTags: branch-type refs get {ref-name, "latest"}.
func branchRefTags(image string, ref string) ([]string, error) {
	return validateTags(image, ref, "latest")
}

// validateTags builds and validates each image:tag reference.
func validateTags(image string, tags ...string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		full := image + ":" + t
		if _, err := name.NewTag(full); err != nil {
			return nil, fmt.Errorf("invalid image tag %q: %w", full, err)
		}
		out = append(out, full)
	}
	return out, nil
}
