package domain

import "testing"

func TestIsDescendant(t *testing.T) {
	tests := []struct {
		path, dir string
		want      bool
	}{
		{"/a/b/c.txt", "/a/b", true},
		{"/a/b/c.txt", "/a", true},
		{"/a/b/c.txt", "/", true},
		{"/a/b/c.txt", "/a/b/c.txt", true},
		{"/a/b/c.txt", "/a/bb", false},
		{"/a/bb/c.txt", "/a/b", false},
		{"/a/b/c.txt", "/x", false},
		{"/a/b", "/a/b/", true},
		{"/a", "/a/b", false},
	}

	for _, tt := range tests {
		if got := IsDescendant(tt.path, tt.dir); got != tt.want {
			t.Errorf("IsDescendant(%q, %q): Expected %v, got %v", tt.path, tt.dir, tt.want, got)
		}
	}
}

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"":             "/",
		"/":            "/",
		"docs":         "/docs",
		"/docs/":       "/docs",
		"/docs/../img": "/img",
	}
	for in, want := range cases {
		if got := CleanPath(in); got != want {
			t.Errorf("CleanPath(%q): Expected %q, got %q", in, want, got)
		}
	}
}

func TestParentPath(t *testing.T) {
	if got := ParentPath("/a/b/c.txt"); got != "/a/b" {
		t.Errorf("Expected /a/b, got %q", got)
	}
	if got := ParentPath("/a"); got != "/" {
		t.Errorf("Expected /, got %q", got)
	}
	if got := ParentPath("/"); got != "/" {
		t.Errorf("Expected root to be its own parent, got %q", got)
	}
}

func TestFileRecord_IsDown(t *testing.T) {
	var missing *FileRecord
	if missing.IsDown() {
		t.Error("Expected nil record not to be down")
	}

	f := &FileRecord{RemotePath: "/a.txt", StoragePath: "/data/a.txt"}
	if f.IsDown() {
		t.Error("Expected record without data sync time not to be down")
	}

	f.LastSyncForData = 1700000000000
	if !f.IsDown() {
		t.Error("Expected record with storage path and sync time to be down")
	}

	f.StoragePath = ""
	if f.IsDown() {
		t.Error("Expected record without storage path not to be down")
	}
}

func TestFileRecord_Name(t *testing.T) {
	f := &FileRecord{RemotePath: "/Photos/cat.jpg"}
	if f.Name() != "cat.jpg" {
		t.Errorf("Expected cat.jpg, got %q", f.Name())
	}
	if f.ParentPath() != "/Photos" {
		t.Errorf("Expected /Photos, got %q", f.ParentPath())
	}
	root := &FileRecord{RemotePath: RootPath, IsFolder: true}
	if root.Name() != "/" {
		t.Errorf("Expected root name /, got %q", root.Name())
	}
}

func TestParseDecision(t *testing.T) {
	cases := map[string]Decision{
		"local":     DecisionLocal,
		"THEIRS":    DecisionServer,
		"keep-both": DecisionKeepBoth,
		"":          DecisionCancel,
	}
	for in, want := range cases {
		if got := ParseDecision(in); got != want {
			t.Errorf("ParseDecision(%q): Expected %q, got %q", in, want, got)
		}
	}

	if d := ParseDecision("merge"); d.IsValid() {
		t.Errorf("Expected unknown decision to be invalid, got %q", d)
	}
}

func TestUploadResult_BlocksAutomatedSync(t *testing.T) {
	blocking := []UploadResult{UploadCredentialError, UploadFolderError, UploadFileNotFound, UploadFileError, UploadPrivilegesError, UploadConflictError}
	for _, r := range blocking {
		if !r.BlocksAutomatedSync() {
			t.Errorf("Expected %s to block automated sync", r)
		}
	}
	for _, r := range []UploadResult{UploadSucceeded, UploadNetworkError, UploadCancelled, ""} {
		if r.BlocksAutomatedSync() {
			t.Errorf("Expected %q not to block automated sync", r)
		}
	}
}

func TestResult_Success(t *testing.T) {
	if !(Result{Code: CodeOK}).Success() {
		t.Error("Expected OK to be success")
	}
	if (Result{Code: CodeSyncConflict}).Success() {
		t.Error("Expected SYNC_CONFLICT not to be success")
	}
}
