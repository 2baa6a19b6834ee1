package search

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Service tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili    *Meili
	fallback Searcher
	pgfts    *PgFTS
	log      logrus.FieldLogger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, log logrus.FieldLogger) *Service {
	s := &Service{meili: meili, pgfts: pgfts, log: log}
	if pgfts != nil {
		s.fallback = pgfts
	}
	return s
}

func (s *Service) indexing() bool {
	return s != nil && s.meili != nil && s.meili.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexing() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.WithError(err).Warn("search: meilisearch error, falling back to pgfts")
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.WithError(err).Error("search: pgfts error")
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// The Index* and Delete methods are fire-and-forget; failures are logged.

func (s *Service) IndexWorkspace(r WorkspaceRecord) {
	s.async(ResultWorkspace, r.ID, func() error { return s.meili.put(ResultWorkspace, []WorkspaceRecord{r}, 1) })
}

func (s *Service) IndexBoard(r BoardRecord) {
	s.async(ResultBoard, r.ID, func() error { return s.meili.put(ResultBoard, []BoardRecord{r}, 1) })
}

func (s *Service) IndexEmployee(r EmployeeRecord) {
	s.async(ResultEmployee, r.ID, func() error { return s.meili.put(ResultEmployee, []EmployeeRecord{r}, 1) })
}

func (s *Service) Delete(rtyp ResultType, id string) {
	s.async(rtyp, id, func() error { return s.meili.Delete(rtyp, id) })
}

func (s *Service) async(rtyp ResultType, id string, fn func() error) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := fn(); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"type": rtyp, "id": id}).Warn("search: index update failed")
		}
	}()
}

// Reindex pushes a full snapshot, one goroutine per index.
func (s *Service) Reindex(ctx context.Context, records Records) error {
	if !s.indexing() {
		return nil
	}
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return s.meili.put(ResultWorkspace, records.Workspaces, len(records.Workspaces)) })
	g.Go(func() error { return s.meili.put(ResultBoard, records.Boards, len(records.Boards)) })
	g.Go(func() error { return s.meili.put(ResultEmployee, records.Employees, len(records.Employees)) })
	return g.Wait()
}

// ReindexAllFromPG reloads everything searchable from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.indexing() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.log.WithError(err).Error("search: reindex load failed")
		return
	}
	if err := s.Reindex(ctx, records); err != nil {
		s.log.WithError(err).Error("search: reindex failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"workspaces": len(records.Workspaces),
		"boards":     len(records.Boards),
		"employees":  len(records.Employees),
	}).Info("search: reindex complete")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
