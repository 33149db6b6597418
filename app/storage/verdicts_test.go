package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-pkgz/testutils/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/spamd/spamd/app/storage/engine"
	"github.com/spamd/spamd/lib/spamcheck"
)

// VerdictsTestSuite runs verdicts tests against sqlite and, if not in short mode, postgres
type VerdictsTestSuite struct {
	suite.Suite
	dbs         map[string]*engine.SQL
	pgContainer *containers.PostgresTestContainer
}

func TestVerdictsSuite(t *testing.T) {
	suite.Run(t, new(VerdictsTestSuite))
}

func (s *VerdictsTestSuite) SetupSuite() {
	s.dbs = make(map[string]*engine.SQL)
	sqliteDB, err := engine.NewSqlite(":memory:")
	s.Require().NoError(err)
	s.dbs["sqlite"] = sqliteDB

	if !testing.Short() {
		ctx := context.Background()
		s.T().Log("starting postgres container")
		s.pgContainer = containers.NewPostgresTestContainerWithDB(ctx, s.T(), "spamd_test")
		pgDB, err := engine.NewPostgres(ctx, s.pgContainer.ConnectionString())
		s.Require().NoError(err)
		s.dbs["postgres"] = pgDB
	}
}

func (s *VerdictsTestSuite) TearDownSuite() {
	for _, db := range s.dbs {
		db.Close()
	}
	if s.pgContainer != nil {
		s.pgContainer.Close(context.Background())
	}
}

func (s *VerdictsTestSuite) SetupTest() {
	for _, db := range s.dbs {
		_, err := db.Exec("DROP TABLE IF EXISTS verdicts")
		s.Require().NoError(err)
	}
}

func (s *VerdictsTestSuite) TestWriteRead() {
	ctx := context.Background()
	for name, db := range s.dbs {
		s.Run(name, func() {
			v, err := NewVerdicts(ctx, db)
			s.Require().NoError(err)

			ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			first, err := v.Write(ctx, Verdict{Text: "hello", Timestamp: ts, Checks: []string{"links"},
				Results: []spamcheck.Result{{Name: "links", Passed: false, Score: 0,
					Details: map[string]any{"count": 0.0}}}})
			s.Require().NoError(err)
			s.NotEmpty(first.ID)

			second, err := v.Write(ctx, Verdict{Text: "get free viagra", Timestamp: ts.Add(time.Minute),
				Recipients: []string{"a@example.com"}, Checks: []string{"blacklist", "nope"}, IsSpam: true, Score: 0.66,
				Results: []spamcheck.Result{{Name: "blacklist", Passed: false, Score: 0.66,
					Details: map[string]any{"hits": []any{"free", "viagra"}}}}})
			s.Require().NoError(err)

			res, err := v.Read(ctx, 0)
			s.Require().NoError(err)
			s.Require().Len(res, 2)

			s.Equal(second.ID, res[0].ID, "most recent first")
			s.Equal("get free viagra", res[0].Text)
			s.True(res[0].IsSpam)
			s.InDelta(0.66, res[0].Score, 0.0001)
			s.Equal([]string{"a@example.com"}, res[0].Recipients)
			s.Equal([]string{"blacklist", "nope"}, res[0].Checks)
			s.Require().Len(res[0].Results, 1)
			s.Equal("blacklist", res[0].Results[0].Name)
			s.Equal([]any{"free", "viagra"}, res[0].Results[0].Details["hits"])
			s.True(ts.Add(time.Minute).Equal(res[0].Timestamp))

			s.Equal(first.ID, res[1].ID)
			s.Equal([]string{}, res[1].Recipients, "nil recipients stored as empty list")
			s.False(res[1].IsSpam)

			res, err = v.Read(ctx, 1)
			s.Require().NoError(err)
			s.Require().Len(res, 1)
			s.Equal(second.ID, res[0].ID)

			count, err := v.Count(ctx, false)
			s.Require().NoError(err)
			s.Equal(2, count)
			count, err = v.Count(ctx, true)
			s.Require().NoError(err)
			s.Equal(1, count)
		})
	}
}

func (s *VerdictsTestSuite) TestWriteKeepsID() {
	ctx := context.Background()
	for name, db := range s.dbs {
		s.Run(name, func() {
			v, err := NewVerdicts(ctx, db)
			s.Require().NoError(err)

			res, err := v.Write(ctx, Verdict{ID: "fixed-id", Text: "text"})
			s.Require().NoError(err)
			s.Equal("fixed-id", res.ID)
			s.False(res.Timestamp.IsZero())

			_, err = v.Write(ctx, Verdict{ID: "fixed-id", Text: "text"})
			s.Error(err, "duplicate id rejected")
		})
	}
}

func (s *VerdictsTestSuite) TestConcurrentWrites() {
	ctx := context.Background()
	for name, db := range s.dbs {
		s.Run(name, func() {
			v, err := NewVerdicts(ctx, db)
			s.Require().NoError(err)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := v.Write(ctx, Verdict{Text: fmt.Sprintf("msg %d", i)})
					s.NoError(err)
				}(i)
			}
			wg.Wait()

			count, err := v.Count(ctx, false)
			s.Require().NoError(err)
			s.Equal(20, count)
		})
	}
}

func TestNewVerdict(t *testing.T) {
	req := spamcheck.Request{Text: "some text", Recipients: []string{"r1"}, Checks: []string{"emoji", "unknown"}}
	resp := spamcheck.Response{IsSpam: true, Score: 0.5, Results: []spamcheck.Result{{Name: "emoji", Score: 0.5}}}

	v := NewVerdict(req, resp)
	assert.Equal(t, "some text", v.Text)
	assert.Equal(t, []string{"r1"}, v.Recipients)
	assert.Equal(t, []string{"emoji", "unknown"}, v.Checks)
	assert.True(t, v.IsSpam)
	assert.InDelta(t, 0.5, v.Score, 0.0001)
	assert.Equal(t, resp.Results, v.Results)
	assert.Empty(t, v.ID)
}

func TestNewVerdicts_NilDB(t *testing.T) {
	_, err := NewVerdicts(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db connection is nil")
}

func TestNew(t *testing.T) {
	t.Run("sqlite file", func(t *testing.T) {
		v, err := New(context.Background(), t.TempDir()+"/verdicts.db")
		require.NoError(t, err)
		defer v.Close()
		assert.Equal(t, engine.Sqlite, v.Type())

		_, err = v.Write(context.Background(), Verdict{Text: "text"})
		require.NoError(t, err)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := New(context.Background(), "mysql://localhost/db")
		require.Error(t, err)
	})
}
