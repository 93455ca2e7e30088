package diff

import (
	"testing"

	"github.com/Ning0612/ocsync/internal/domain"
)

func downloaded() domain.FileRecord {
	return domain.FileRecord{
		RemotePath:      "/report.txt",
		StoragePath:     "/save/report.txt",
		ETag:            "v1",
		Checksum:        "aaa",
		LastSyncForData: 1000,
		LocalModified:   1000,
	}
}

func TestDefaultComparer_Unchanged(t *testing.T) {
	comparer := NewDefaultComparer()
	server := &domain.FileRecord{ETag: "v1", ModifiedAt: 5000}

	result := comparer.Compare(downloaded(), server, LocalState{Modified: 1000})
	if result != Unchanged {
		t.Errorf("Expected Unchanged, got %v", result)
	}
}

func TestDefaultComparer_ServerChanged(t *testing.T) {
	comparer := NewDefaultComparer()
	server := &domain.FileRecord{ETag: "v2"}

	result := comparer.Compare(downloaded(), server, LocalState{Modified: 1000})
	if result != ServerChanged {
		t.Errorf("Expected ServerChanged, got %v", result)
	}
}

func TestDefaultComparer_LocalChanged(t *testing.T) {
	comparer := NewDefaultComparer()
	server := &domain.FileRecord{ETag: "v1"}

	result := comparer.Compare(downloaded(), server, LocalState{Modified: 2000})
	if result != LocalChanged {
		t.Errorf("Expected LocalChanged, got %v", result)
	}
}

func TestDefaultComparer_BothChanged(t *testing.T) {
	comparer := NewDefaultComparer()
	server := &domain.FileRecord{ETag: "v2"}

	result := comparer.Compare(downloaded(), server, LocalState{Modified: 2000, Checksum: "bbb"})
	if result != BothChanged {
		t.Errorf("Expected BothChanged, got %v", result)
	}
}

func TestDefaultComparer_PushOnlyIgnoresServer(t *testing.T) {
	comparer := NewDefaultComparer()

	result := comparer.Compare(downloaded(), nil, LocalState{Modified: 2000})
	if result != LocalChanged {
		t.Errorf("Expected LocalChanged, got %v", result)
	}
}

func TestDefaultComparer_TouchedButSameContent(t *testing.T) {
	comparer := NewDefaultComparer()
	server := &domain.FileRecord{ETag: "v1"}

	// mtime moved, content did not
	result := comparer.Compare(downloaded(), server, LocalState{Modified: 2000, Checksum: "aaa"})
	if result != Unchanged {
		t.Errorf("Expected Unchanged, got %v", result)
	}
}

func TestHasServerChange_LegacyRecordWithoutETag(t *testing.T) {
	known := downloaded()
	known.ETag = ""

	if !HasServerChange(known, &domain.FileRecord{ETag: "v1", ModifiedAt: 1500}) {
		t.Error("Expected newer server mtime to count as a change")
	}
	if HasServerChange(known, &domain.FileRecord{ETag: "v1", ModifiedAt: 900}) {
		t.Error("Expected older server mtime to be unchanged")
	}
}

func TestHasLocalChange_NoStoredChecksum(t *testing.T) {
	known := downloaded()
	known.Checksum = ""

	if !HasLocalChange(known, LocalState{Modified: 1001, Checksum: "aaa"}) {
		t.Error("Expected a newer mtime without a stored checksum to count as a change")
	}
}

func TestChange_String(t *testing.T) {
	if BothChanged.String() != "both-changed" {
		t.Errorf("Expected both-changed, got %s", BothChanged.String())
	}
	if Change(42).String() != "unknown" {
		t.Errorf("Expected unknown, got %s", Change(42).String())
	}
}
