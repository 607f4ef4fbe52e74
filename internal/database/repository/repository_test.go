package repository_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexd/nexd/internal/database"
	"github.com/nexd/nexd/internal/database/repository"
	"github.com/nexd/nexd/internal/model"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "repo-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))
	return db
}

func seedUsers(t *testing.T, db *sql.DB, ids ...string) {
	t.Helper()
	users := repository.NewUserRepo(db)
	for _, id := range ids {
		require.NoError(t, users.Upsert(context.Background(), model.User{ID: id, FirstName: id, ZipCode: "12345"}))
	}
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	users := repository.NewUserRepo(db)

	missing, err := users.Get(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, missing)

	ok, err := users.UpdateProfile(ctx, "ghost", "G", "H", "12345", "0301")
	require.NoError(t, err)
	require.False(t, ok)

	seedUsers(t, db, "me")
	ok, err = users.UpdateProfile(ctx, "me", "Max", "Muster", "10115", "+49 30 1234")
	require.NoError(t, err)
	require.True(t, ok)

	me, err := users.Get(ctx, "me")
	require.NoError(t, err)
	require.Equal(t, model.User{ID: "me", FirstName: "Max", LastName: "Muster", ZipCode: "10115", PhoneNumber: "+49 30 1234"}, *me)

	// an update without names leaves them alone
	ok, err = users.UpdateProfile(ctx, "me", "", "", "80331", "089 555")
	require.NoError(t, err)
	require.True(t, ok)
	me, err = users.Get(ctx, "me")
	require.NoError(t, err)
	require.Equal(t, "Max", me.FirstName)
	require.Equal(t, "Muster", me.LastName)
	require.Equal(t, "80331", me.ZipCode)
}

func TestArticleRepoSearch(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	articles := repository.NewArticleRepo(db)

	for _, a := range []model.Article{
		{Name: "Milch", Language: "de", Verified: true, UnitIDOrder: []int64{7, 3}},
		{Name: "mild salsa", Language: "de"},
		{Name: "Mehl", Language: "de", Verified: true},
		{Name: "milk", Language: "en", Verified: true},
		{Name: "50%_off", Language: "de"},
	} {
		_, err := articles.Upsert(ctx, a)
		require.NoError(t, err)
	}

	got, err := articles.List(ctx, repository.ArticleFilters{Language: "de", Prefix: "MIL"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Milch", got[0].Name)
	require.Equal(t, []int64{7, 3}, got[0].UnitIDOrder)
	require.Nil(t, got[1].UnitIDOrder)

	got, err = articles.List(ctx, repository.ArticleFilters{Language: "de", Prefix: "mil", OnlyVerified: true})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = articles.List(ctx, repository.ArticleFilters{Prefix: "50%_"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	got, err = articles.List(ctx, repository.ArticleFilters{Prefix: "5_"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestArticleRepoCreateReturnsExisting(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	articles := repository.NewArticleRepo(db)

	first, err := articles.Create(ctx, "Hefe", "de")
	require.NoError(t, err)
	require.False(t, first.Verified)
	second, err := articles.Create(ctx, "Hefe", "de")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := articles.Create(ctx, "Hefe", "en")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)

	got, err := articles.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first, *got)
	none, err := articles.Get(ctx, 999)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestUnitRepoListsByLanguage(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	units := repository.NewUnitRepo(db)
	require.NoError(t, units.Upsert(ctx, model.Unit{ID: 3, Name: "Stück", NameShort: "Stk.", Language: "de"}))
	require.NoError(t, units.Upsert(ctx, model.Unit{ID: 11, Name: "piece", NameShort: "pc", Language: "en"}))
	require.NoError(t, units.Upsert(ctx, model.Unit{ID: 3, Name: "Stück", NameShort: "St.", Language: "de"}))

	de, err := units.List(ctx, "de")
	require.NoError(t, err)
	require.Equal(t, []model.Unit{{ID: 3, Name: "Stück", NameShort: "St.", Language: "de"}}, de)

	all, err := units.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestHelpRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	seedUsers(t, db, "anna", "ben", "helper")

	articleID, err := repository.NewArticleRepo(db).Upsert(ctx, model.Article{Name: "Milch", Language: "de"})
	require.NoError(t, err)

	requests := repository.NewHelpRequestRepo(db)
	var annaID int64
	err = database.WithTx(ctx, db, func(tx *sql.Tx) error {
		var err error
		annaID, err = repository.NewHelpRequestRepo(tx).Insert(ctx, model.HelpRequest{
			RequesterID: "anna", ZipCode: "12345", CreatedAt: time.Unix(100, 0).UTC(),
			Articles: []model.HelpRequestArticle{{ArticleID: articleID, ArticleCount: 2}},
		})
		return err
	})
	require.NoError(t, err)
	_, err = requests.Insert(ctx, model.HelpRequest{RequesterID: "ben", ZipCode: "10115", CreatedAt: time.Unix(200, 0).UTC()})
	require.NoError(t, err)

	got, err := requests.List(ctx, repository.HelpRequestFilters{
		ExcludeRequesterID: "helper",
		ZipCodes:           []string{"12345"},
		Statuses:           []model.RequestStatus{model.StatusPending},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, annaID, got[0].ID)
	require.Equal(t, model.StatusPending, got[0].Status)
	require.Equal(t, []model.HelpRequestArticle{{ArticleID: articleID, ArticleName: "Milch", ArticleCount: 2}}, got[0].Articles)

	lists := repository.NewHelpListRepo(db)
	none, err := lists.Active(ctx, "helper")
	require.NoError(t, err)
	require.Nil(t, none)
	listID, err := lists.EnsureActive(ctx, "helper")
	require.NoError(t, err)
	again, err := lists.EnsureActive(ctx, "helper")
	require.NoError(t, err)
	require.Equal(t, listID, again)

	ok, err := requests.Assign(ctx, annaID, listID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = requests.Assign(ctx, annaID, listID)
	require.NoError(t, err)
	require.False(t, ok, "an ongoing request cannot be taken twice")

	onList, err := requests.List(ctx, repository.HelpRequestFilters{HelpListID: &listID})
	require.NoError(t, err)
	require.Len(t, onList, 1)
	require.Equal(t, model.StatusOngoing, onList[0].Status)

	otherList := listID + 1
	ok, err = requests.Release(ctx, annaID, otherList)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = requests.Release(ctx, annaID, listID)
	require.NoError(t, err)
	require.True(t, ok)

	req, err := requests.Get(ctx, annaID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, req.Status)
	require.Nil(t, req.HelpListID)

	missing, err := requests.Get(ctx, 999)
	require.NoError(t, err)
	require.Nil(t, missing)
}
