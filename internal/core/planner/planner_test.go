package planner

import (
	"testing"
	"time"

	"github.com/Ning0612/ocsync/internal/core/rule"
	"github.com/Ning0612/ocsync/internal/domain"
)

var fixedNow = time.UnixMilli(50_000)

func newPlanner(patterns ...string) *DefaultPlanner {
	p := NewDefaultPlanner(rule.MustMatcher(patterns...))
	p.Now = func() time.Time { return fixedNow }
	return p
}

func docsFolder() (domain.FileRecord, domain.FileRecord) {
	local := domain.FileRecord{ID: 2, ParentID: 1, RemotePath: "/Docs", IsFolder: true, ETag: "d1", TreeETag: "d1"}
	server := domain.FileRecord{RemotePath: "/Docs", RemoteID: "id-docs", IsFolder: true, ETag: "d2"}
	return local, server
}

func TestPlanRefresh_NewChild(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()

	remote := []domain.FileRecord{{RemotePath: "/Docs/new.txt", RemoteID: "id-1", ETag: "e1", Size: 10}}
	plan := planner.PlanRefresh(local, server, remote, nil)

	if len(plan.Children) != 1 {
		t.Fatalf("Expected 1 child, got %d", len(plan.Children))
	}
	c := plan.Children[0]
	if c.ParentID != 2 {
		t.Errorf("Expected parent id 2, got %d", c.ParentID)
	}
	if c.LastSyncForProperties != fixedNow.UnixMilli() {
		t.Errorf("Expected properties sync time to be set, got %d", c.LastSyncForProperties)
	}
	if plan.Stats.New != 1 {
		t.Errorf("Expected 1 new, got %d", plan.Stats.New)
	}
	if len(plan.ToSync) != 0 {
		t.Errorf("Expected nothing to sync, got %v", plan.ToSync)
	}
}

func TestPlanRefresh_FolderMerged(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()
	local.KeptInSync = true

	plan := planner.PlanRefresh(local, server, nil, nil)

	if plan.Folder.ID != 2 || plan.Folder.ParentID != 1 {
		t.Errorf("Expected ids to be kept, got %d/%d", plan.Folder.ID, plan.Folder.ParentID)
	}
	if plan.Folder.TreeETag != "d2" || plan.Folder.ETag != "d2" {
		t.Errorf("Expected tree etag d2, got %s/%s", plan.Folder.ETag, plan.Folder.TreeETag)
	}
	if !plan.Folder.KeptInSync {
		t.Error("Expected pin to be kept")
	}
	if plan.Folder.RemoteID != "id-docs" {
		t.Errorf("Expected remote id from server, got %s", plan.Folder.RemoteID)
	}
}

func TestPlanRefresh_KeepsLocalState(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()

	stored := []domain.FileRecord{{
		ID: 7, ParentID: 2, RemotePath: "/Docs/a.txt", RemoteID: "id-a",
		StoragePath: "/save/Docs/a.txt", ETag: "e1", Checksum: "sum",
		LastSyncForData: 100, LocalModified: 100, ETagInConflict: "e9",
	}}
	remote := []domain.FileRecord{{RemotePath: "/Docs/a.txt", RemoteID: "id-a", ETag: "e2", Size: 99}}

	plan := planner.PlanRefresh(local, server, remote, stored)

	c := plan.Children[0]
	if c.ID != 7 {
		t.Errorf("Expected id 7, got %d", c.ID)
	}
	if c.StoragePath != "/save/Docs/a.txt" || c.LastSyncForData != 100 || c.Checksum != "sum" {
		t.Errorf("Expected local state to be kept, got %+v", c)
	}
	if c.ETagInConflict != "e9" {
		t.Errorf("Expected conflict marker to be kept, got %q", c.ETagInConflict)
	}
	// downloaded content stays at its version until a file sync
	if c.ETag != "e1" {
		t.Errorf("Expected etag e1 for downloaded file, got %s", c.ETag)
	}
	if c.Size != 99 {
		t.Errorf("Expected server size, got %d", c.Size)
	}
	if plan.Stats.Updated != 1 {
		t.Errorf("Expected 1 updated, got %d", plan.Stats.Updated)
	}
}

func TestPlanRefresh_NotDownloadedTakesServerETag(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()

	stored := []domain.FileRecord{{ID: 7, RemotePath: "/Docs/a.txt", ETag: "e1"}}
	remote := []domain.FileRecord{{RemotePath: "/Docs/a.txt", ETag: "e2"}}

	plan := planner.PlanRefresh(local, server, remote, stored)
	if plan.Children[0].ETag != "e2" {
		t.Errorf("Expected e2, got %s", plan.Children[0].ETag)
	}
}

func TestPlanRefresh_RemovedChild(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()

	stored := []domain.FileRecord{
		{ID: 7, RemotePath: "/Docs/keep.txt"},
		{ID: 8, RemotePath: "/Docs/gone.txt"},
	}
	remote := []domain.FileRecord{{RemotePath: "/Docs/keep.txt"}}

	plan := planner.PlanRefresh(local, server, remote, stored)

	if len(plan.Removed) != 1 || plan.Removed[0].ID != 8 {
		t.Fatalf("Expected gone.txt to be removed, got %+v", plan.Removed)
	}
	if plan.Stats.Removed != 1 {
		t.Errorf("Expected 1 removed, got %d", plan.Stats.Removed)
	}
}

func TestPlanRefresh_MatchByRemoteID(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()

	stored := []domain.FileRecord{{ID: 7, RemotePath: "/Docs/old.txt", RemoteID: "id-a", StoragePath: "/save/Docs/old.txt", LastSyncForData: 5}}
	remote := []domain.FileRecord{{RemotePath: "/Docs/new.txt", RemoteID: "id-a"}}

	plan := planner.PlanRefresh(local, server, remote, stored)

	if len(plan.Removed) != 0 {
		t.Errorf("Expected renamed file to be matched, got removed %+v", plan.Removed)
	}
	c := plan.Children[0]
	if c.ID != 7 || c.RemotePath != "/Docs/new.txt" {
		t.Errorf("Expected id 7 at new path, got %d %s", c.ID, c.RemotePath)
	}
	if c.StoragePath != "/save/Docs/old.txt" {
		t.Errorf("Expected storage path kept, got %s", c.StoragePath)
	}
}

func TestPlanRefresh_TypeChange(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()

	stored := []domain.FileRecord{{ID: 7, RemotePath: "/Docs/x"}}
	remote := []domain.FileRecord{{RemotePath: "/Docs/x", IsFolder: true}}

	plan := planner.PlanRefresh(local, server, remote, stored)

	if len(plan.Removed) != 1 {
		t.Fatalf("Expected old file record to be removed, got %d", len(plan.Removed))
	}
	if plan.Children[0].ID != 0 || !plan.Children[0].IsFolder {
		t.Errorf("Expected a new folder record, got %+v", plan.Children[0])
	}
}

func TestPlanRefresh_KeptInSyncChanged(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()

	stored := []domain.FileRecord{
		{ID: 7, RemotePath: "/Docs/pinned.txt", KeptInSync: true, ETag: "e1", StoragePath: "/s/p", LastSyncForData: 1},
		{ID: 8, RemotePath: "/Docs/same.txt", KeptInSync: true, ETag: "e1", StoragePath: "/s/s", LastSyncForData: 1},
		{ID: 9, RemotePath: "/Docs/plain.txt", ETag: "e1", StoragePath: "/s/q", LastSyncForData: 1},
		{ID: 10, RemotePath: "/Docs/Sub", IsFolder: true, KeptInSync: true, TreeETag: "f1"},
	}
	remote := []domain.FileRecord{
		{RemotePath: "/Docs/pinned.txt", ETag: "e2"},
		{RemotePath: "/Docs/same.txt", ETag: "e1"},
		{RemotePath: "/Docs/plain.txt", ETag: "e2"},
		{RemotePath: "/Docs/Sub", IsFolder: true, ETag: "f2"},
	}

	plan := planner.PlanRefresh(local, server, remote, stored)

	if len(plan.ToSync) != 1 || plan.ToSync[0] != "/Docs/pinned.txt" {
		t.Errorf("Expected only pinned.txt to sync, got %v", plan.ToSync)
	}
	if len(plan.ToRefresh) != 1 || plan.ToRefresh[0] != "/Docs/Sub" {
		t.Errorf("Expected Sub to refresh, got %v", plan.ToRefresh)
	}
}

func TestPlanRefresh_PinnedFolderPinsNewChildren(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()
	local.KeptInSync = true

	remote := []domain.FileRecord{{RemotePath: "/Docs/fresh.txt", ETag: "e1"}}
	plan := planner.PlanRefresh(local, server, remote, nil)

	if !plan.Children[0].KeptInSync {
		t.Error("Expected child of a pinned folder to be pinned")
	}
	if len(plan.ToSync) != 1 {
		t.Errorf("Expected new pinned file to be downloaded, got %v", plan.ToSync)
	}
}

func TestPlanRefresh_KeepInSyncPattern(t *testing.T) {
	planner := newPlanner("*.md")
	local, server := docsFolder()

	remote := []domain.FileRecord{
		{RemotePath: "/Docs/readme.md", ETag: "e1"},
		{RemotePath: "/Docs/photo.jpg", ETag: "e1"},
	}
	plan := planner.PlanRefresh(local, server, remote, nil)

	if !plan.Children[1].KeptInSync {
		t.Error("Expected readme.md to be pinned by pattern")
	}
	if plan.Children[0].KeptInSync {
		t.Error("Expected photo.jpg not to be pinned")
	}
	if len(plan.ToSync) != 1 || plan.ToSync[0] != "/Docs/readme.md" {
		t.Errorf("Expected readme.md to sync, got %v", plan.ToSync)
	}
}

func TestPlanRefresh_ChildrenSorted(t *testing.T) {
	planner := newPlanner()
	local, server := docsFolder()

	remote := []domain.FileRecord{{RemotePath: "/Docs/b"}, {RemotePath: "/Docs/a"}, {RemotePath: "/Docs/c"}}
	plan := planner.PlanRefresh(local, server, remote, nil)

	for i, want := range []string{"/Docs/a", "/Docs/b", "/Docs/c"} {
		if plan.Children[i].RemotePath != want {
			t.Errorf("Children[%d] = %s, want %s", i, plan.Children[i].RemotePath, want)
		}
	}
}
