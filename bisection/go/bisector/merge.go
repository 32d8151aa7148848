package bisector

import (
	"context"
	"errors"
	"sort"

	"go.buildbisect.org/infra/bisection/go/branches"
	"go.buildbisect.org/infra/go/pushlog"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

// HandleMerge implements MergeHandler. When the first bad push of a
// finished search merges another branch, the search continues on the pushes
// of that branch which were merged.
func (h *IntegrationHandler) HandleMerge(ctx context.Context) (*Continuation, error) {
	if h.r == nil || h.r.Len() < 2 {
		return nil, nil
	}
	sklog.Debugf("Starting merge handling...")
	recent, err := h.r.Get(ctx, 1)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if recent == nil {
		return nil, nil
	}
	repo, err := h.repo(h.branch)
	if err != nil {
		return nil, err
	}
	push, err := repo.Push(ctx, pushlog.Ref{Changeset: recent.Changeset}, true)
	if err != nil {
		return nil, skerr.Wrapf(err, "looking for the push of %s", recent.Changeset)
	}
	if len(push.Changesets) == 0 {
		return nil, nil
	}
	msg := push.Changesets[len(push.Changesets)-1].Desc
	sklog.Debugf("Found commit message:\n%s\n", msg)

	var branch, oldest, youngest string
	branch = h.registry.FindBranchInMergeCommit(msg, h.branch)
	if branch != "" && len(push.Changesets) >= 2 {
		if len(push.Changesets) == 2 {
			sklog.Infof("Merge commit has only two revisions (one of which is the merge): we are done")
			return nil, nil
		}
		oldest = push.Changesets[0].Node
		// The merge commit itself is the last one.
		youngest = push.Changesets[len(push.Changesets)-2].Node
		sklog.Infof("************* Switching to %s", branch)
	} else {
		sklog.Debugf("Did not find a branch, checking all integration branches")
		if h.branch != branches.MozillaCentral || len(push.Changesets) < 2 {
			return nil, nil
		}
		branch, err = h.chooseIntegrationBranch(ctx, push.Changeset())
		if err != nil {
			return nil, err
		}
		oldest = push.Changesets[0].Node
		youngest = push.Changesets[len(push.Changesets)-1].Node
		sklog.Infof("************* Switching to %s by process of elimination (no branch detected in commit message)", branch)
	}

	// The oldest merged changeset is not known to be good, so the window
	// starts two pushes before it on the merged branch.
	merged, err := h.repo(branch)
	if err != nil {
		return nil, err
	}
	pushes, err := merged.PushesWithinChanges(ctx, pushlog.Ref{Changeset: oldest}, pushlog.Ref{Changeset: youngest})
	if err != nil {
		return nil, skerr.Wrapf(err, "looking for the merged pushes on %s", branch)
	}
	minID, maxID := pushes[0].ID, pushes[0].ID
	for _, p := range pushes {
		if p.ID < minID {
			minID = p.ID
		}
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	window, err := merged.Pushes(ctx, pushlog.Query{StartID: minID - 2, EndID: maxID})
	if err != nil {
		return nil, skerr.Wrapf(err, "expanding the merged pushes on %s", branch)
	}
	older := window[0].Changeset()
	younger := window[len(window)-1].Changeset()
	sklog.Debugf("End merge handling")
	if h.findFix {
		return &Continuation{Branch: branch, Good: younger, Bad: older}, nil
	}
	return &Continuation{Branch: branch, Good: older, Bad: younger}, nil
}

// chooseIntegrationBranch returns the integration branch where changeset
// landed first.
func (h *IntegrationHandler) chooseIntegrationBranch(ctx context.Context, changeset string) (string, error) {
	type landing struct {
		branch string
		push   *pushlog.Push
	}
	landings := []landing{}
	for _, name := range branches.IntegrationBranches {
		repo, err := h.repo(name)
		if err != nil {
			return "", err
		}
		push, err := repo.Push(ctx, pushlog.Ref{Changeset: changeset}, true)
		if errors.Is(err, pushlog.ErrEmptyPushlog) {
			sklog.Debugf("Didn't find %s in %s", changeset, name)
			continue
		} else if err != nil {
			return "", skerr.Wrapf(err, "looking for %s in %s", changeset, name)
		}
		landings = append(landings, landing{branch: name, push: push})
	}
	if len(landings) == 0 {
		return "", skerr.Wrapf(ErrMergeResolution, "%s is in none of %v", changeset, branches.IntegrationBranches)
	}
	sort.SliceStable(landings, func(i, j int) bool {
		return landings[i].push.Date.Before(landings[j].push.Date)
	})
	return landings[0].branch, nil
}
