package planner

import (
	"sort"
	"time"

	"github.com/Ning0612/ocsync/internal/core/rule"
	"github.com/Ning0612/ocsync/internal/domain"
)

// Planner merges a server folder listing into the stored records.
type Planner interface {
	PlanRefresh(folder, server domain.FileRecord, serverChildren, localChildren []domain.FileRecord) *Plan
}

// Plan is the result of merging one folder. Children and Removed go to
// FileStore.SaveFolder as they are.
type Plan struct {
	Folder   domain.FileRecord
	Children []domain.FileRecord
	Removed  []domain.FileRecord

	// ToSync lists kept-in-sync files whose content has to be synchronized.
	ToSync []string
	// ToRefresh lists kept-in-sync subfolders whose tree moved.
	ToRefresh []string

	Stats Stats
}

// Stats counts what a merge changes.
type Stats struct {
	New     int
	Updated int
	Removed int
}

// DefaultPlanner merges by remote id first and by path second.
type DefaultPlanner struct {
	// KeepInSync marks new or updated children as kept in sync.
	KeepInSync *rule.Matcher
	Now        func() time.Time
}

// NewDefaultPlanner creates a planner using keepInSync for pinning
func NewDefaultPlanner(keepInSync *rule.Matcher) *DefaultPlanner {
	return &DefaultPlanner{KeepInSync: keepInSync, Now: time.Now}
}

// PlanRefresh merges a listing. folder is the stored record, server its
// fresh properties. Server attributes win; local state (storage path, sync
// dates, pin, conflict marker, checksum) is carried over. A downloaded file
// keeps its ETag so that the content change is still visible to the next
// file sync.
func (p *DefaultPlanner) PlanRefresh(folder, server domain.FileRecord, serverChildren, localChildren []domain.FileRecord) *Plan {
	now := p.now().UnixMilli()
	plan := &Plan{Folder: mergeFolder(folder, server, now)}
	plan.Folder.KeptInSync = plan.Folder.KeptInSync || p.KeepInSync.Match(plan.Folder.RemotePath)

	byID := make(map[string]int, len(localChildren))
	byPath := make(map[string]int, len(localChildren))
	for i, c := range localChildren {
		if c.RemoteID != "" {
			byID[c.RemoteID] = i
		}
		byPath[domain.CleanPath(c.RemotePath)] = i
	}
	used := make([]bool, len(localChildren))

	find := func(c domain.FileRecord) (domain.FileRecord, bool) {
		i, ok := byID[c.RemoteID]
		if c.RemoteID == "" || !ok || used[i] {
			i, ok = byPath[domain.CleanPath(c.RemotePath)]
		}
		if !ok || used[i] || localChildren[i].IsFolder != c.IsFolder {
			// 型別變了：舊的刪掉，新的重建
			return domain.FileRecord{}, false
		}
		used[i] = true
		return localChildren[i], true
	}

	for _, c := range serverChildren {
		c.RemotePath = domain.CleanPath(c.RemotePath)
		c.ParentID = plan.Folder.ID
		c.LastSyncForProperties = now
		pinned := plan.Folder.KeptInSync || p.KeepInSync.Match(c.RemotePath)

		old, found := find(c)
		if !found {
			c.KeptInSync = pinned
			plan.Children = append(plan.Children, c)
			plan.Stats.New++
			if c.KeptInSync {
				plan.queue(c)
			}
			continue
		}

		merged := mergeChild(old, c)
		merged.KeptInSync = merged.KeptInSync || pinned
		plan.Children = append(plan.Children, merged)
		plan.Stats.Updated++

		if !merged.KeptInSync {
			continue
		}
		switch {
		case merged.IsFolder && old.TreeETag != c.ETag:
			plan.queue(merged)
		case !merged.IsFolder && (!old.IsDown() || old.ETag != c.ETag):
			plan.queue(merged)
		}
	}

	for i, c := range localChildren {
		if !used[i] {
			plan.Removed = append(plan.Removed, c)
		}
	}
	plan.Stats.Removed = len(plan.Removed)

	sort.Slice(plan.Children, func(i, j int) bool { return plan.Children[i].RemotePath < plan.Children[j].RemotePath })
	sort.Strings(plan.ToSync)
	sort.Strings(plan.ToRefresh)
	return plan
}

func (p *DefaultPlanner) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (plan *Plan) queue(f domain.FileRecord) {
	if f.IsFolder {
		plan.ToRefresh = append(plan.ToRefresh, f.RemotePath)
	} else {
		plan.ToSync = append(plan.ToSync, f.RemotePath)
	}
}

func mergeFolder(local, server domain.FileRecord, now int64) domain.FileRecord {
	merged := server
	merged.ID = local.ID
	merged.ParentID = local.ParentID
	merged.RemotePath = domain.CleanPath(local.RemotePath)
	merged.IsFolder = true
	merged.StoragePath = local.StoragePath
	merged.KeptInSync = local.KeptInSync
	merged.ETagInConflict = local.ETagInConflict
	merged.LastSyncForData = local.LastSyncForData
	merged.LocalModified = local.LocalModified
	merged.TreeETag = server.ETag
	merged.LastSyncForProperties = now
	return merged
}

func mergeChild(old, server domain.FileRecord) domain.FileRecord {
	merged := server
	merged.ID = old.ID
	merged.StoragePath = old.StoragePath
	merged.LastSyncForData = old.LastSyncForData
	merged.LocalModified = old.LocalModified
	merged.KeptInSync = old.KeptInSync
	merged.ETagInConflict = old.ETagInConflict
	merged.Checksum = old.Checksum
	if merged.IsFolder {
		merged.TreeETag = old.TreeETag
	} else if old.IsDown() {
		merged.ETag = old.ETag
	}
	return merged
}
