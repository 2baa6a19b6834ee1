package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

var errMeiliDown = errors.New("meilisearch unhealthy")

const healthInterval = 10 * time.Second

// collection describes one Meilisearch index and how its hits become results.
type collection struct {
	uid        string
	kind       ResultType
	filterable []string
	searchable []string
	decode     func(doc hitDoc) Result
}

var collections = []collection{
	{
		uid:        "tablero_workspaces",
		kind:       ResultWorkspace,
		searchable: []string{"name", "description"},
		decode: func(doc hitDoc) Result {
			id := doc.str("id")
			return Result{Type: ResultWorkspace, ID: id, WorkspaceID: id, Title: doc.highlighted("name"), Snippet: doc.highlighted("description")}
		},
	},
	{
		uid:        "tablero_boards",
		kind:       ResultBoard,
		filterable: []string{"workspaceId"},
		searchable: []string{"name", "description"},
		decode: func(doc hitDoc) Result {
			return Result{Type: ResultBoard, ID: doc.str("id"), WorkspaceID: doc.str("workspaceId"), Title: doc.highlighted("name"), Snippet: doc.highlighted("description")}
		},
	},
	{
		uid:        "tablero_employees",
		kind:       ResultEmployee,
		filterable: []string{"branchOfficeId"},
		searchable: []string{"name", "lastName", "employeeCode"},
		decode: func(doc hitDoc) Result {
			title := strings.TrimSpace(doc.str("name") + " " + doc.str("lastName"))
			return Result{Type: ResultEmployee, ID: doc.str("id"), Title: title, Snippet: doc.str("employeeCode")}
		},
	},
}

func collectionFor(kind ResultType) (collection, bool) {
	for _, c := range collections {
		if c.kind == kind {
			return c, true
		}
	}
	return collection{}, false
}

// Meili searches and indexes through a Meilisearch server. While the server
// is unreachable it reports unhealthy and the Service uses its fallback.
type Meili struct {
	client  meili.ServiceManager
	log     logrus.FieldLogger
	healthy atomic.Bool
	stop    chan struct{}
}

func NewMeili(url, apiKey string, log logrus.FieldLogger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log.WithField("component", "meilisearch"),
		stop:   make(chan struct{}),
	}
	if m.probe() {
		m.setup()
	} else {
		m.log.WithField("url", url).Warn("search: meilisearch unavailable at startup")
	}
	go m.monitor()
	return m
}

func (m *Meili) probe() bool {
	_, err := m.client.Health()
	m.healthy.Store(err == nil)
	return err == nil
}

// setup creates the indexes and their attribute settings. Existing indexes
// make CreateIndex fail, which is expected.
func (m *Meili) setup() {
	for _, c := range collections {
		log := m.log.WithField("index", c.uid)
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: c.uid, PrimaryKey: "id"}); err != nil {
			log.WithError(err).Debug("search: create index")
		}
		index := m.client.Index(c.uid)
		if len(c.filterable) > 0 {
			attrs := make([]interface{}, 0, len(c.filterable))
			for _, a := range c.filterable {
				attrs = append(attrs, a)
			}
			if _, err := index.UpdateFilterableAttributes(&attrs); err != nil {
				log.WithError(err).Warn("search: set filterable attributes")
			}
		}
		searchable := append([]string(nil), c.searchable...)
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.WithError(err).Warn("search: set searchable attributes")
		}
	}
}

func (m *Meili) monitor() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			was := m.healthy.Load()
			if m.probe() && !was {
				m.log.Info("search: meilisearch is back, reapplying index settings")
				m.setup()
			}
		}
	}
}

// Close stops the health monitor.
func (m *Meili) Close() {
	close(m.stop)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search sends one multi-search covering every index the query allows.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.Healthy() {
		return nil, 0, errMeiliDown
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	req := &meili.MultiSearchRequest{}
	for _, c := range collections {
		if q.FilterType != "" && q.FilterType != c.kind {
			continue
		}
		req.Queries = append(req.Queries, &meili.SearchRequest{
			IndexUID:              c.uid,
			Query:                 q.Text,
			Limit:                 int64(limit),
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}
	if len(req.Queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(req)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var (
		results []Result
		total   int
	)
	for _, part := range resp.Results {
		total += int(part.EstimatedTotalHits)
		for _, hit := range part.Hits {
			results = append(results, hitToResult(hit, kindOf(part.IndexUID)))
		}
	}
	return results, total, nil
}

func kindOf(uid string) ResultType {
	for _, c := range collections {
		if c.uid == uid {
			return c.kind
		}
	}
	return ""
}

func hitToResult(hit meili.Hit, kind ResultType) Result {
	c, ok := collectionFor(kind)
	if !ok {
		return Result{Type: kind, ID: hitDoc(hit).str("id")}
	}
	return c.decode(hitDoc(hit))
}

// hitDoc reads string fields out of a raw hit.
type hitDoc meili.Hit

func (d hitDoc) str(key string) string {
	var s string
	if raw, ok := d[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// highlighted prefers the _formatted copy of key, which carries <mark> tags.
func (d hitDoc) highlighted(key string) string {
	if raw, ok := d["_formatted"]; ok {
		var formatted map[string]any
		if json.Unmarshal(raw, &formatted) == nil {
			if s, _ := formatted[key].(string); strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return d.str(key)
}

// put adds or replaces documents of one kind.
func (m *Meili) put(kind ResultType, docs any, n int) error {
	if n == 0 {
		return nil
	}
	c, ok := collectionFor(kind)
	if !ok {
		return fmt.Errorf("unknown result type %q", kind)
	}
	if _, err := m.client.Index(c.uid).AddDocuments(docs, nil); err != nil {
		return fmt.Errorf("index %d %s documents: %w", n, kind, err)
	}
	return nil
}

func (m *Meili) Delete(kind ResultType, id string) error {
	c, ok := collectionFor(kind)
	if !ok {
		return fmt.Errorf("unknown result type %q", kind)
	}
	_, err := m.client.Index(c.uid).DeleteDocument(id, nil)
	return err
}
