// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildmatrix/buildmatrix/internal/logging"
)

// prepare validates req and collects its files. ok is false when nothing
// should be published.
func prepare(ctx context.Context, req UploadRequest) (matches []Match, ok bool, err error) {
	if strings.TrimSpace(req.RunID) == "" {
		return nil, false, fmt.Errorf("%w: empty run id", ErrInvalidName)
	}
	if err := ValidateName(req.Name); err != nil {
		return nil, false, err
	}
	if valid, errs := req.IfNoFilesFound.IsValid(); !valid {
		return nil, false, errs[0]
	}

	matches, err = Collect(req.BaseDir, req.Patterns)
	if err != nil {
		return nil, false, err
	}
	if len(matches) > 0 {
		return matches, true, nil
	}

	switch req.IfNoFilesFound {
	case IfNoFilesFoundError:
		return nil, false, fmt.Errorf("%w for artifact %s with patterns %s", ErrNoFilesFound, req.Name, strings.Join(req.Patterns, ", "))
	case IfNoFilesFoundIgnore:
		return nil, false, nil
	default:
		logging.FromContext(ctx).Warn("no files found, publishing an empty artifact", "artifact", req.Name, "patterns", strings.Join(req.Patterns, ", "))
		return nil, true, nil
	}
}
