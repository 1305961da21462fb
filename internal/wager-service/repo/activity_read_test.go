package repo

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/radieske/friendsbet/internal/wagering/domain"
)

func TestRecentWrapsDatabaseErrors(t *testing.T) {
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "activity.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = db.Close()

	_, err = (&ActivityReadRepo{DB: db}).Recent(context.Background(), 10)
	if !errors.Is(err, domain.ErrStorageFault) {
		t.Fatalf("err = %v, want a storage fault", err)
	}
}
