package devserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nexd/nexd/internal/api"
	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/database"
	"github.com/nexd/nexd/internal/database/repository"
	"github.com/nexd/nexd/internal/model"
)

var zipPattern = regexp.MustCompile(`^[0-9]{5}$`)

// Sentinels that abort a transaction before commit.
var (
	errConflict       = errors.New("conflict")
	errUnknownArticle = errors.New("unknown article")
)

// caller resolves the bearer token to a user, registering unknown ids with
// an empty profile.
func (s *Server) caller(r *http.Request) (model.User, error) {
	id := bearerToken(r)
	if id == "" {
		id = collab.CurrentUserID
	}
	u, err := s.users.Get(r.Context(), id)
	if err != nil {
		return model.User{}, err
	}
	if u != nil {
		return *u, nil
	}
	nu := model.User{ID: id}
	if err := s.users.Upsert(r.Context(), nu); err != nil {
		return model.User{}, err
	}
	return nu, nil
}

func (s *Server) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.caller(r)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) updateCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.caller(r)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	var update collab.UserUpdate
	if !decode(w, r, &update) {
		return
	}
	update.ZipCode = strings.TrimSpace(update.ZipCode)
	if update.ZipCode != "" && !zipPattern.MatchString(update.ZipCode) {
		writeError(w, http.StatusUnprocessableEntity, "zipCode must be 5 digits")
		return
	}
	if _, err := s.users.UpdateProfile(r.Context(), u.ID, strings.TrimSpace(update.FirstName),
		strings.TrimSpace(update.LastName), update.ZipCode, strings.TrimSpace(update.PhoneNumber)); err != nil {
		s.internal(w, r, err)
		return
	}
	s.getCurrentUser(w, r)
}

func (s *Server) getActiveList(w http.ResponseWriter, r *http.Request) {
	u, err := s.caller(r)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	l, err := s.lists.Active(r.Context(), u.ID)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if l == nil {
		writeError(w, http.StatusNotFound, "no active help list")
		return
	}
	l.HelpRequests, err = s.requests.List(r.Context(), repository.HelpRequestFilters{HelpListID: &l.ID})
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) addToList(w http.ResponseWriter, r *http.Request) {
	s.applyToList(w, r, collab.ApplyAdd)
}

func (s *Server) removeFromList(w http.ResponseWriter, r *http.Request) {
	s.applyToList(w, r, collab.ApplyRemove)
}

// applyToList moves a request onto or off the caller's active list. The
// optional helpListId is the list the client last saw; a mismatch means
// the client acted on a stale view.
func (s *Server) applyToList(w http.ResponseWriter, r *http.Request, op collab.ApplyOp) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid help request id")
		return
	}
	var seen *int64
	if raw := r.URL.Query().Get(api.QueryHelpListID); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+api.QueryHelpListID)
			return
		}
		seen = &v
	}
	u, err := s.caller(r)
	if err != nil {
		s.internal(w, r, err)
		return
	}

	ctx := r.Context()
	var missing bool
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		requests := repository.NewHelpRequestRepo(tx)
		lists := repository.NewHelpListRepo(tx)
		req, err := requests.Get(ctx, id)
		if err != nil {
			return err
		}
		if req == nil {
			missing = true
			return nil
		}

		var listID int64
		if op == collab.ApplyAdd {
			if listID, err = lists.EnsureActive(ctx, u.ID); err != nil {
				return err
			}
		} else {
			l, err := lists.Active(ctx, u.ID)
			if err != nil {
				return err
			}
			if l == nil {
				return errConflict
			}
			listID = l.ID
		}
		if seen != nil && *seen != listID {
			return errConflict
		}

		var ok bool
		if op == collab.ApplyAdd {
			if req.RequesterID == u.ID {
				return errConflict
			}
			ok, err = requests.Assign(ctx, id, listID)
		} else {
			ok, err = requests.Release(ctx, id, listID)
		}
		if err != nil {
			return err
		}
		if !ok {
			return errConflict
		}
		return nil
	})
	switch {
	case errors.Is(err, errConflict):
		writeError(w, http.StatusConflict, "help request "+strconv.FormatInt(id, 10)+" cannot be "+appliedVerb(op))
	case err != nil:
		s.internal(w, r, err)
	case missing:
		writeError(w, http.StatusNotFound, "help request not found")
	default:
		s.logger.Info("workflow applied", "op", op.String(), "request", id, "user", u.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func appliedVerb(op collab.ApplyOp) string {
	if op == collab.ApplyRemove {
		return "removed from your list"
	}
	return "added to your list"
}

func (s *Server) listHelpRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f repository.HelpRequestFilters
	if userID := q.Get(api.QueryUserID); userID != "" {
		if userID == collab.CurrentUserID {
			u, err := s.caller(r)
			if err != nil {
				s.internal(w, r, err)
				return
			}
			userID = u.ID
		}
		if exclude, _ := strconv.ParseBool(q.Get(api.QueryExcludeUserID)); exclude {
			f.ExcludeRequesterID = userID
		} else {
			f.RequesterID = userID
		}
	}
	f.ZipCodes = q[api.QueryZipCode]
	for _, raw := range q[api.QueryStatus] {
		status := model.RequestStatus(raw)
		switch status {
		case model.StatusPending, model.StatusOngoing, model.StatusCompleted, model.StatusDeactivated:
			f.Statuses = append(f.Statuses, status)
		default:
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
	}

	out, err := s.requests.List(r.Context(), f)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) submitHelpRequest(w http.ResponseWriter, r *http.Request) {
	u, err := s.caller(r)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	var in collab.NewHelpRequest
	if !decode(w, r, &in) {
		return
	}
	if msg := checkNewRequest(in); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	ctx := r.Context()
	req := model.HelpRequest{
		RequesterID:       u.ID,
		Status:            model.StatusPending,
		FirstName:         strings.TrimSpace(in.FirstName),
		LastName:          strings.TrimSpace(in.LastName),
		Street:            strings.TrimSpace(in.Street),
		Number:            strings.TrimSpace(in.Number),
		ZipCode:           strings.TrimSpace(in.ZipCode),
		City:              strings.TrimSpace(in.City),
		PhoneNumber:       strings.TrimSpace(in.PhoneNumber),
		AdditionalRequest: strings.TrimSpace(in.AdditionalRequest),
		DeliveryComment:   strings.TrimSpace(in.DeliveryComment),
		CreatedAt:         s.now().UTC().Truncate(time.Second),
	}
	var id int64
	var unknown int64
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		articles := repository.NewArticleRepo(tx)
		for _, a := range in.Articles {
			found, err := articles.Get(ctx, a.ArticleID)
			if err != nil {
				return err
			}
			if found == nil {
				unknown = a.ArticleID
				return errUnknownArticle
			}
			req.Articles = append(req.Articles, model.HelpRequestArticle{
				ArticleID: a.ArticleID, ArticleCount: a.ArticleCount, UnitID: a.UnitID,
			})
		}
		id, err = repository.NewHelpRequestRepo(tx).Insert(ctx, req)
		return err
	})
	if errors.Is(err, errUnknownArticle) {
		writeError(w, http.StatusUnprocessableEntity, "unknown article "+strconv.FormatInt(unknown, 10))
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	created, err := s.requests.Get(ctx, id)
	if err != nil || created == nil {
		s.internal(w, r, err)
		return
	}
	s.logger.Info("help request submitted", "request", id, "user", u.ID, "articles", len(created.Articles))
	writeJSON(w, http.StatusCreated, created)
}

func checkNewRequest(in collab.NewHelpRequest) string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
		{"street", in.Street},
		{"number", in.Number},
		{"zipCode", in.ZipCode},
		{"city", in.City},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return "missing " + strings.Join(missing, ", ")
	}
	if !zipPattern.MatchString(strings.TrimSpace(in.ZipCode)) {
		return "zipCode must be 5 digits"
	}
	if len(in.Articles) == 0 {
		return "a help request needs at least one article"
	}
	for _, a := range in.Articles {
		if a.ArticleCount <= 0 {
			return "articleCount must be positive"
		}
	}
	return ""
}

func (s *Server) searchArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get(api.QueryLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+api.QueryLimit)
			return
		}
		limit = n
	}
	onlyVerified, _ := strconv.ParseBool(q.Get(api.QueryOnlyVerified))
	out, err := searchArticles(r.Context(), s.articles, repository.ArticleFilters{
		Language:     q.Get(api.QueryLanguage),
		Prefix:       q.Get(api.QueryStartsWith),
		OnlyVerified: onlyVerified,
	}, limit)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	var in api.CreateArticleRequest
	if !decode(w, r, &in) {
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	language := in.Language
	if language == "" {
		language = "de"
	}
	a, err := s.articles.Create(r.Context(), name, language)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	out, err := s.units.List(r.Context(), r.URL.Query().Get(api.QueryLanguage))
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("devserver handler failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}
