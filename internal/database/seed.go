package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nexd/nexd/internal/database/repository"
	"github.com/nexd/nexd/internal/model"
)

// DefaultSeed is the demo catalog the development backend starts with.
//
//go:embed seed.yaml
var DefaultSeed []byte

type seedFile struct {
	Units []struct {
		ID        int64  `yaml:"id"`
		Name      string `yaml:"name"`
		NameShort string `yaml:"nameShort"`
		Language  string `yaml:"language"`
	} `yaml:"units"`
	Articles []struct {
		Name     string  `yaml:"name"`
		Language string  `yaml:"language"`
		Verified bool    `yaml:"verified"`
		Units    []int64 `yaml:"units"`
	} `yaml:"articles"`
	Users []struct {
		ID          string `yaml:"id"`
		FirstName   string `yaml:"firstName"`
		LastName    string `yaml:"lastName"`
		Street      string `yaml:"street"`
		Number      string `yaml:"number"`
		ZipCode     string `yaml:"zipCode"`
		City        string `yaml:"city"`
		PhoneNumber string `yaml:"phoneNumber"`
	} `yaml:"users"`
	Requests []struct {
		Requester  string `yaml:"requester"`
		Comment    string `yaml:"comment"`
		Additional string `yaml:"additional"`
		Articles   []struct {
			Name  string `yaml:"name"`
			Count int64  `yaml:"count"`
			Unit  *int64 `yaml:"unit"`
		} `yaml:"articles"`
	} `yaml:"requests"`
}

// SeedUserID derives a stable id for a seeded user without one.
func SeedUserID(firstName, lastName string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("user:"+firstName+" "+lastName)).String()
}

// SeedFromYAML loads units, articles, users and requests from data. It is
// idempotent: a database that already has units is left alone.
func SeedFromYAML(ctx context.Context, db *sql.DB, data []byte) error {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	if n, err := repository.NewUnitRepo(db).Count(ctx); err != nil {
		return err
	} else if n > 0 {
		return nil
	}

	return WithTx(ctx, db, func(tx *sql.Tx) error {
		units := repository.NewUnitRepo(tx)
		for _, u := range seed.Units {
			if err := units.Upsert(ctx, model.Unit{ID: u.ID, Name: u.Name, NameShort: u.NameShort, Language: u.Language}); err != nil {
				return fmt.Errorf("seed unit %d: %w", u.ID, err)
			}
		}

		articles := repository.NewArticleRepo(tx)
		articleIDs := map[string]int64{}
		for _, a := range seed.Articles {
			id, err := articles.Upsert(ctx, model.Article{Name: a.Name, Language: a.Language, Verified: a.Verified, UnitIDOrder: a.Units})
			if err != nil {
				return fmt.Errorf("seed article %q: %w", a.Name, err)
			}
			articleIDs[strings.ToLower(a.Name)] = id
		}

		users := repository.NewUserRepo(tx)
		byName := map[string]model.User{}
		for _, u := range seed.Users {
			user := model.User{
				ID: u.ID, FirstName: u.FirstName, LastName: u.LastName,
				Street: u.Street, Number: u.Number, ZipCode: u.ZipCode, City: u.City, PhoneNumber: u.PhoneNumber,
			}
			if user.ID == "" {
				user.ID = SeedUserID(u.FirstName, u.LastName)
			}
			if err := users.Upsert(ctx, user); err != nil {
				return fmt.Errorf("seed user %q: %w", u.FirstName, err)
			}
			byName[u.FirstName] = user
		}

		requests := repository.NewHelpRequestRepo(tx)
		for i, r := range seed.Requests {
			requester, ok := byName[r.Requester]
			if !ok {
				return fmt.Errorf("seed request %d: unknown requester %q", i, r.Requester)
			}
			req := model.HelpRequest{
				RequesterID:       requester.ID,
				Status:            model.StatusPending,
				FirstName:         requester.FirstName,
				LastName:          requester.LastName,
				Street:            requester.Street,
				Number:            requester.Number,
				ZipCode:           requester.ZipCode,
				City:              requester.City,
				PhoneNumber:       requester.PhoneNumber,
				AdditionalRequest: r.Additional,
				DeliveryComment:   r.Comment,
				CreatedAt:         Now(),
			}
			for _, a := range r.Articles {
				id, ok := articleIDs[strings.ToLower(a.Name)]
				if !ok {
					return fmt.Errorf("seed request %d: unknown article %q", i, a.Name)
				}
				req.Articles = append(req.Articles, model.HelpRequestArticle{ArticleID: id, ArticleCount: a.Count, UnitID: a.Unit})
			}
			if _, err := requests.Insert(ctx, req); err != nil {
				return fmt.Errorf("seed request %d: %w", i, err)
			}
		}
		return nil
	})
}
