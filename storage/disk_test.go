package storage

import (
	"chat-core/domain/chat"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestDisk_Reopen_Keeps_Records(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	badgerPath, blugePath := t.TempDir(), t.TempDir()

	// Given a user saved then the stores closed
	disk, err := Open(log, badgerPath, blugePath)
	req.NoError(err)
	user := chat.User{ID: "alice", DisplayName: "Alice", UpdatedAt: time.Now().UTC()}
	req.NoError(disk.Repositories(nil).Users.SaveUser(user))
	req.NoError(disk.Close())

	// When they are opened again
	disk, err = Open(log, badgerPath, blugePath)
	req.NoError(err)
	defer func() { _ = disk.Close() }()

	// Then the user is still there
	users, err := disk.Repositories(nil).Users.ListUsers()
	req.NoError(err)
	req.Equal([]chat.User{user}, users)
}
