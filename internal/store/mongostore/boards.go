// Package mongostore keeps board aggregates as MongoDB documents.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tablero/api/internal/board"
	"tablero/api/internal/rbac"
)

const boardsCollection = "boards"

type columnDoc struct {
	ID     string             `bson:"id"`
	Name   string             `bson:"name"`
	Type   string             `bson:"type"`
	Order  int                `bson:"order"`
	Config board.ColumnConfig `bson:"config"`
}

// itemDoc keeps each cell as its JSON encoding so nested values round-trip unchanged.
type itemDoc struct {
	ID        string            `bson:"id"`
	Values    map[string]string `bson:"values"`
	CreatedBy string            `bson:"createdBy"`
	UpdatedBy string            `bson:"updatedBy"`
	CreatedAt time.Time         `bson:"createdAt"`
	UpdatedAt time.Time         `bson:"updatedAt"`
	Order     int               `bson:"order"`
}

type chartDoc struct {
	ID              string         `bson:"id"`
	Title           string         `bson:"title"`
	Type            string         `bson:"type"`
	ColumnID        string         `bson:"columnId"`
	Aggregation     string         `bson:"aggregation"`
	GroupByColumnID string         `bson:"groupByColumnId,omitempty"`
	Config          map[string]any `bson:"config,omitempty"`
}

type boardDoc struct {
	ID           string      `bson:"_id"`
	WorkspaceID  string      `bson:"workspaceId"`
	Name         string      `bson:"name"`
	Description  string      `bson:"description"`
	CreatedBy    string      `bson:"createdBy"`
	IsPrivate    bool        `bson:"isPrivate"`
	IsActive     bool        `bson:"isActive"`
	InvitedUsers []string    `bson:"invitedUsers"`
	Columns      []columnDoc `bson:"columns"`
	Items        []itemDoc   `bson:"items"`
	Charts       []chartDoc  `bson:"charts"`
	Version      int64       `bson:"version"`
	CreatedAt    time.Time   `bson:"createdAt"`
	UpdatedAt    time.Time   `bson:"updatedAt"`
}

type BoardStore struct {
	client *mongo.Client
	boards *mongo.Collection
}

// Connect dials MongoDB and pings it within the context deadline.
func Connect(ctx context.Context, uri, database string) (*BoardStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, database), nil
}

func New(client *mongo.Client, database string) *BoardStore {
	return &BoardStore{client: client, boards: client.Database(database).Collection(boardsCollection)}
}

func (s *BoardStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.boards.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "workspaceId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "invitedUsers", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create board indexes: %w", err)
	}
	return nil
}

func (s *BoardStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *BoardStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *BoardStore) CreateBoard(ctx context.Context, b *board.Board) error {
	doc, err := toDoc(b)
	if err != nil {
		return err
	}
	if _, err := s.boards.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	return nil
}

func (s *BoardStore) GetBoard(ctx context.Context, boardID string) (*board.Board, error) {
	var doc boardDoc
	err := s.boards.FindOne(ctx, bson.M{"_id": boardID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &board.NotFoundError{Kind: "board", ID: boardID}
	}
	if err != nil {
		return nil, fmt.Errorf("find board: %w", err)
	}
	return fromDoc(doc)
}

func (s *BoardStore) ListBoardsByWorkspace(ctx context.Context, workspaceID string, filter rbac.ListFilter) ([]*board.Board, error) {
	query := bson.M{"workspaceId": workspaceID, "isActive": true}
	if filter.Restricted {
		query["$or"] = bson.A{
			bson.M{"isPrivate": false},
			bson.M{"createdBy": filter.ActorID},
			bson.M{"invitedUsers": filter.ActorID},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetProjection(bson.M{"items": 0})

	cursor, err := s.boards.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer cursor.Close(ctx)

	boards := make([]*board.Board, 0)
	for cursor.Next(ctx) {
		var doc boardDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode board: %w", err)
		}
		b, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, cursor.Err()
}

// SaveBoard replaces the document only while it still carries expectedVersion.
func (s *BoardStore) SaveBoard(ctx context.Context, b *board.Board, expectedVersion int64) error {
	doc, err := toDoc(b)
	if err != nil {
		return err
	}
	doc.Version = expectedVersion + 1
	result, err := s.boards.ReplaceOne(ctx, bson.M{"_id": b.ID, "version": expectedVersion}, doc)
	if err != nil {
		return fmt.Errorf("replace board: %w", err)
	}
	if result.MatchedCount == 0 {
		return board.ErrVersionConflict
	}
	b.Version = doc.Version
	return nil
}

// UpdateItemCell sets or unsets one cell through an array filter on the item id
// and increments the version in the same update, so a stale ReplaceOne from a
// structural change misses. The filter also requires the column to still exist.
func (s *BoardStore) UpdateItemCell(ctx context.Context, boardID string, change board.CellChange, at time.Time) error {
	filter := bson.M{"_id": boardID, "columns.id": change.ColumnID, "items.id": change.ItemID}
	valuePath := "items.$[it].values." + change.ColumnID
	set := bson.M{"items.$[it].updatedBy": change.UpdatedBy, "items.$[it].updatedAt": at}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	if change.Cleared {
		update["$unset"] = bson.M{valuePath: ""}
	} else {
		raw, err := json.Marshal(change.Value)
		if err != nil {
			return fmt.Errorf("encode cell value: %w", err)
		}
		set[valuePath] = string(raw)
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"it.id": change.ItemID}},
	})

	result, err := s.boards.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("update item cell: %w", err)
	}
	if result.MatchedCount == 0 {
		return &board.NotFoundError{Kind: "item", ID: change.ItemID}
	}
	return nil
}

func toDoc(b *board.Board) (boardDoc, error) {
	doc := boardDoc{
		ID:           b.ID,
		WorkspaceID:  b.WorkspaceID,
		Name:         b.Name,
		Description:  b.Description,
		CreatedBy:    b.CreatedBy,
		IsPrivate:    b.IsPrivate,
		IsActive:     b.IsActive,
		InvitedUsers: append([]string{}, b.InvitedUsers...),
		Columns:      make([]columnDoc, 0, len(b.Columns)),
		Items:        make([]itemDoc, 0, len(b.Items)),
		Charts:       make([]chartDoc, 0, len(b.Charts)),
		Version:      b.Version,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
	for _, c := range b.Columns {
		doc.Columns = append(doc.Columns, columnDoc{ID: c.ID, Name: c.Name, Type: string(c.Type), Order: c.Order, Config: c.Config})
	}
	for _, it := range b.Items {
		values := make(map[string]string, len(it.Values))
		for columnID, v := range it.Values {
			raw, err := json.Marshal(v)
			if err != nil {
				return boardDoc{}, fmt.Errorf("encode item %s values: %w", it.ID, err)
			}
			values[columnID] = string(raw)
		}
		doc.Items = append(doc.Items, itemDoc{
			ID:        it.ID,
			Values:    values,
			CreatedBy: it.CreatedBy,
			UpdatedBy: it.UpdatedBy,
			CreatedAt: it.CreatedAt,
			UpdatedAt: it.UpdatedAt,
			Order:     it.Order,
		})
	}
	for _, ch := range b.Charts {
		doc.Charts = append(doc.Charts, chartDoc{
			ID:              ch.ID,
			Title:           ch.Title,
			Type:            string(ch.Type),
			ColumnID:        ch.DataSource.ColumnID,
			Aggregation:     string(ch.DataSource.Aggregation),
			GroupByColumnID: ch.DataSource.GroupByColumnID,
			Config:          ch.Config,
		})
	}
	return doc, nil
}

func fromDoc(doc boardDoc) (*board.Board, error) {
	b := &board.Board{
		ID:           doc.ID,
		WorkspaceID:  doc.WorkspaceID,
		Name:         doc.Name,
		Description:  doc.Description,
		CreatedBy:    doc.CreatedBy,
		IsPrivate:    doc.IsPrivate,
		IsActive:     doc.IsActive,
		InvitedUsers: append([]string{}, doc.InvitedUsers...),
		Columns:      make([]board.Column, 0, len(doc.Columns)),
		Items:        make([]board.Item, 0, len(doc.Items)),
		Charts:       make([]board.Chart, 0, len(doc.Charts)),
		Version:      doc.Version,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	types := make(map[string]board.ColumnType, len(doc.Columns))
	for _, c := range doc.Columns {
		col := board.Column{ID: c.ID, Name: c.Name, Type: board.ColumnType(c.Type), Order: c.Order, Config: c.Config}
		types[col.ID] = col.Type
		b.Columns = append(b.Columns, col)
	}
	for _, it := range doc.Items {
		values := make(map[string]board.Value, len(it.Values))
		for columnID, raw := range it.Values {
			t, ok := types[columnID]
			if !ok {
				continue
			}
			v, err := board.LoadValue(t, json.RawMessage(raw))
			if err != nil {
				continue
			}
			values[columnID] = v
		}
		b.Items = append(b.Items, board.Item{
			ID:        it.ID,
			Values:    values,
			CreatedBy: it.CreatedBy,
			UpdatedBy: it.UpdatedBy,
			CreatedAt: it.CreatedAt,
			UpdatedAt: it.UpdatedAt,
			Order:     it.Order,
		})
	}
	for _, ch := range doc.Charts {
		b.Charts = append(b.Charts, board.Chart{
			ID:    ch.ID,
			Title: ch.Title,
			Type:  board.ChartType(ch.Type),
			DataSource: board.DataSource{
				ColumnID:        ch.ColumnID,
				Aggregation:     board.Aggregation(ch.Aggregation),
				GroupByColumnID: ch.GroupByColumnID,
			},
			Config: ch.Config,
		})
	}
	return b, nil
}
