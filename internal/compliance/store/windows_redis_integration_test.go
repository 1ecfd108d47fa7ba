//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tranche/internal/compliance/models"
	"tranche/internal/compliance/store"
	id "tranche/pkg/domain"
	"tranche/pkg/testutil/containers"
)

type RedisWindowsSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisWindows
}

func TestRedisWindowsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisWindowsSuite))
}

func (s *RedisWindowsSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedisWindows(s.redis.Client)
}

func (s *RedisWindowsSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisWindowsSuite) TestUnknownAccountReadsAsZeroUsage() {
	usage, err := s.store.Usage(context.Background(), "INV-W-1", id.AccountID(uuid.New()))
	s.Require().NoError(err)
	s.Equal(models.WindowUsage{}, usage)
}

func (s *RedisWindowsSuite) TestPutGetRoundTrip() {
	ctx := context.Background()
	asset := id.AssetID("INV-W-2")
	account := id.AccountID(uuid.New())

	now := time.Now().UTC().Truncate(time.Second)
	want := models.WindowUsage{
		DailyUsed:    150,
		DailyStart:   now,
		MonthlyUsed:  4200,
		MonthlyStart: now.AddDate(0, 0, -10),
	}

	s.Require().NoError(s.store.Put(ctx, asset, account, want))

	got, err := s.store.Usage(ctx, asset, account)
	s.Require().NoError(err)
	s.True(want.DailyStart.Equal(got.DailyStart))
	s.True(want.MonthlyStart.Equal(got.MonthlyStart))
	s.Equal(want.DailyUsed, got.DailyUsed)
	s.Equal(want.MonthlyUsed, got.MonthlyUsed)
}

func (s *RedisWindowsSuite) TestAccountsAreIsolated() {
	ctx := context.Background()
	asset := id.AssetID("INV-W-3")
	a := id.AccountID(uuid.New())
	b := id.AccountID(uuid.New())

	now := time.Now().UTC()
	s.Require().NoError(s.store.Put(ctx, asset, a, models.WindowUsage{DailyUsed: 10, DailyStart: now}))

	got, err := s.store.Usage(ctx, asset, b)
	s.Require().NoError(err)
	s.Zero(got.DailyUsed)

	// Same account under a different asset is a distinct window too.
	got, err = s.store.Usage(ctx, "INV-W-OTHER", a)
	s.Require().NoError(err)
	s.Zero(got.DailyUsed)
}
