package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()

	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repos := NewRepositoriesWith(db, rdb, time.Minute)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

func seedUsers(t *testing.T, repos *Repositories, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, repos.User.Create(context.Background(), &entity.User{
			Id:       id,
			Nickname: fmt.Sprintf("user%d", id),
		}))
	}
}

func strPtr(s string) *string { return &s }
