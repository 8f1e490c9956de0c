// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMySQLMock(t *testing.T) (*gormCounter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	c, err := newGormCounter(db, DefaultAlias, Config{Driver: DriverMySQL}, nil)
	require.NoError(t, err)
	return c, mock
}

func TestTableName(t *testing.T) {
	custom := map[string]string{"blog.Post": "posts"}

	assert.Equal(t, "posts", TableName("blog.Post", custom))
	assert.Equal(t, "django_session", TableName("sessions.Session", nil))
	assert.Equal(t, "blog_comment", TableName("blog.Comment", custom))
	assert.Equal(t, "accounts", TableName("Accounts", nil))
}

func TestCountDefaultsAlias(t *testing.T) {
	c, mock := setupMySQLMock(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `django_session`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(12))

	m := NewManager(map[string]Config{DefaultAlias: {Driver: DriverMySQL, DSN: "unused"}})
	m.open = func(string, Config) (counter, error) { return c, nil }

	n, db, err := m.Count(context.Background(), "sessions.Session", "")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, "default", db)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountOpensOncePerAlias(t *testing.T) {
	c, mock := setupMySQLMock(t)
	for range 2 {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `blog_post`").
			WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(3))
	}

	opened := 0
	m := NewManager(map[string]Config{"replica": {Driver: DriverMySQL}})
	m.open = func(alias string, _ Config) (counter, error) {
		opened++
		assert.Equal(t, "replica", alias)
		return c, nil
	}

	for range 2 {
		_, db, err := m.Count(context.Background(), "blog.Post", "replica")
		require.NoError(t, err)
		assert.Equal(t, "replica", db)
	}
	assert.Equal(t, 1, opened)
}

func TestCountQueryError(t *testing.T) {
	c, mock := setupMySQLMock(t)
	boom := errors.New("connection refused")
	mock.ExpectQuery("SELECT count").WillReturnError(boom)

	m := NewManager(map[string]Config{DefaultAlias: {Driver: DriverMySQL}})
	m.open = func(string, Config) (counter, error) { return c, nil }

	_, _, err := m.Count(context.Background(), "sessions.Session", "")
	assert.ErrorIs(t, err, boom)
}

func TestCountUnknownAlias(t *testing.T) {
	m := NewManager(nil)

	_, db, err := m.Count(context.Background(), "sessions.Session", "other")
	assert.ErrorIs(t, err, ErrUnknownAlias)
	assert.Equal(t, "other", db)
}

func TestCountRejectsInvalidTable(t *testing.T) {
	m := NewManager(map[string]Config{DefaultAlias: {Driver: DriverSQLite}},
		WithEntities(map[string]string{"bad.Entity": "x; DROP TABLE y"}))

	_, _, err := m.Count(context.Background(), "bad.Entity", "")
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestUnsupportedDriver(t *testing.T) {
	m := NewManager(map[string]Config{DefaultAlias: {Driver: "oracle"}})

	_, _, err := m.Count(context.Background(), "sessions.Session", "")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestSQLCounterQuotesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "public"."django_session"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := (&sqlCounter{db: db}).count(context.Background(), "public.django_session")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestSQLiteInMemory(t *testing.T) {
	m := NewManager(map[string]Config{DefaultAlias: {Driver: DriverSQLite, DSN: "file::memory:?cache=shared", MaxOpenConns: 1}})
	defer m.Close()

	c, err := m.conn(DefaultAlias)
	require.NoError(t, err)
	sc := c.(*sqlCounter)
	_, err = sc.db.Exec(`CREATE TABLE blog_post (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = sc.db.Exec(`INSERT INTO blog_post (id) VALUES (1), (2)`)
	require.NoError(t, err)

	n, db, err := m.Count(context.Background(), "blog.Post", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, DefaultAlias, db)

	require.NoError(t, m.Close())
	assert.Error(t, sc.db.Ping())
}
