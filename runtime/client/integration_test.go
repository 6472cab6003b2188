//go:build integration

package client

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/linq"
	"github.com/satishbabariya/queryable/runtime/types"
	"github.com/satishbabariya/queryable/schema"
)

const (
	integrationPassword = "YourStrong!Passw0rd"
	integrationDatabase = "queryable_test"
)

type server struct {
	provider string
	// dsn builds the connection string for host, port and database.
	dsn     func(host, port, database string) string
	request testcontainers.ContainerRequest
	envDSN  string
	setup   func(ctx context.Context, db *sql.DB) error
}

var servers = []server{
	{
		provider: "pgx",
		envDSN:   "QUERYABLE_POSTGRES_DSN",
		request: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_PASSWORD": integrationPassword,
				"POSTGRES_DB":       integrationDatabase,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(2 * time.Minute),
		},
		dsn: func(host, port, database string) string {
			u := &url.URL{
				Scheme:   "postgres",
				User:     url.UserPassword("postgres", integrationPassword),
				Host:     net.JoinHostPort(host, port),
				Path:     "/" + database,
				RawQuery: "sslmode=disable",
			}
			return u.String()
		},
	},
	{
		provider: "sqlserver",
		envDSN:   "QUERYABLE_MSSQL_DSN",
		request: testcontainers.ContainerRequest{
			Image:        "mcr.microsoft.com/mssql/server:2022-latest",
			ExposedPorts: []string{"1433/tcp"},
			Env: map[string]string{
				"ACCEPT_EULA":       "Y",
				"MSSQL_SA_PASSWORD": integrationPassword,
				"MSSQL_PID":         "Developer",
			},
			WaitingFor: wait.ForLog("SQL Server is now ready for client connections").
				WithStartupTimeout(4 * time.Minute),
		},
		dsn: func(host, port, database string) string {
			u := &url.URL{
				Scheme: "sqlserver",
				User:   url.UserPassword("sa", integrationPassword),
				Host:   net.JoinHostPort(host, port),
			}
			q := u.Query()
			q.Set("database", database)
			q.Set("encrypt", "disable")
			u.RawQuery = q.Encode()
			return u.String()
		},
		setup: func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, fmt.Sprintf("IF DB_ID(N'%s') IS NULL CREATE DATABASE [%s]", integrationDatabase, integrationDatabase))
			return err
		},
	},
}

func (s server) start(t *testing.T) string {
	t.Helper()
	if dsn := strings.TrimSpace(os.Getenv(s.envDSN)); dsn != "" {
		return dsn
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: s.request,
		Started:          true,
	})
	require.NoError(t, err, "start %s container", s.provider)
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := container.Terminate(shutdownCtx); err != nil {
			t.Logf("failed to terminate %s container: %v", s.provider, err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(endpoint)
	require.NoError(t, err)

	driver := map[string]string{"pgx": "pgx", "sqlserver": "sqlserver"}[s.provider]
	if s.setup != nil {
		master := s.dsn(host, port, "master")
		db := waitFor(t, ctx, driver, master)
		require.NoError(t, s.setup(ctx, db))
		_ = db.Close()
	}
	dsn := s.dsn(host, port, integrationDatabase)
	_ = waitFor(t, ctx, driver, dsn).Close()
	return dsn
}

func waitFor(t *testing.T, parent context.Context, driver, dsn string) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()
	for {
		db, err := sql.Open(driver, dsn)
		if err == nil {
			pingCtx, pingCancel := context.WithTimeout(ctx, 4*time.Second)
			pingErr := db.PingContext(pingCtx)
			pingCancel()
			if pingErr == nil {
				return db
			}
			_ = db.Close()
		}
		select {
		case <-ctx.Done():
			t.Fatalf("database %s never became ready: %v", driver, ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func TestProviders(t *testing.T) {
	for _, srv := range servers {
		t.Run(srv.provider, func(t *testing.T) {
			dsn := srv.start(t)
			m, err := schema.Load("zoo.schema", zoo)
			require.NoError(t, err)
			d, err := Open(m, Config{Provider: srv.provider, DSN: dsn})
			require.NoError(t, err)
			defer d.Close()

			ctx := context.Background()
			for _, tbl := range []string{"Animal", "people"} {
				_, _ = d.DB().ExecContext(ctx, "DROP TABLE "+d.Dialect().Quote(tbl))
			}
			require.NoError(t, d.CreateSchema(ctx))
			s := d.OpenSession()
			person := m.MustType("Person")
			for i, n := range []string{"Ann", "Bob", "Cid"} {
				e := types.NewEntity(person).Set("Id", int64(i+1)).Set("Name", n).Set("Age", int32(30+i))
				require.NoError(t, s.Insert(ctx, e))
			}
			require.NoError(t, s.Insert(ctx, types.NewEntity(m.MustType("Dog")).
				Set("Id", int64(10)).Set("Name", "Rex").Set("Owner", types.NewRef(person, []any{int64(1)}, nil)).Set("Breed", "collie")))

			q := s.Query()
			names, err := List[string](q.Run(ctx, q.All("Person").
				OrderByDescending(linq.F("p", age)).Skip(1).Take(2).Select(linq.F("p", name))))
			require.NoError(t, err)
			assert.Equal(t, []string{"Bob", "Ann"}, names)

			ids := make([]int64, 2500)
			for i := range ids {
				ids[i] = int64(i)
			}
			n, err := One[int](q.Run(ctx, q.All("Person").Where(linq.F("p", func(p expr.Node) expr.Node {
				return expr.InList(expr.Prop(p, "Id"), expr.Var("ids", &ids), expr.IncludeAuto)
			})).Count()))
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			owners, err := List[string](q.Run(ctx, q.All("Animal").Select(linq.F("a", func(a expr.Node) expr.Node {
				return expr.Prop(expr.Prop(a, "Owner"), "Name")
			}))))
			require.NoError(t, err)
			assert.Equal(t, []string{"Ann"}, owners)

			var nick *string
			matched, err := q.Run(ctx, q.All("Person").Where(linq.F("p", func(p expr.Node) expr.Node {
				return expr.Eq(expr.Prop(p, "Name"), expr.Var("nick", &nick))
			})).Count())
			require.NoError(t, err)
			assert.EqualValues(t, 0, matched)
		})
	}
}
