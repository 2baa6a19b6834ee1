package board

import (
	"time"

	"github.com/oklog/ulid/v2"

	"tablero/api/internal/rbac"
)

type ColumnType string

const (
	TypeText     ColumnType = "TEXT"
	TypeNumber   ColumnType = "NUMBER"
	TypeDate     ColumnType = "DATE"
	TypeCheckbox ColumnType = "CHECKBOX"
	TypeStatus   ColumnType = "STATUS"
	TypePriority ColumnType = "PRIORITY"
	TypeUser     ColumnType = "USER"
	TypeFiles    ColumnType = "FILES"
	TypeTags     ColumnType = "TAGS"
	TypeSelect   ColumnType = "SELECT"
	TypeFormula  ColumnType = "FORMULA"
	TypeTimeline ColumnType = "TIMELINE"
	TypeLocation ColumnType = "LOCATION"
)

var columnTypes = []ColumnType{
	TypeText, TypeNumber, TypeDate, TypeCheckbox, TypeStatus, TypePriority, TypeUser,
	TypeFiles, TypeTags, TypeSelect, TypeFormula, TypeTimeline, TypeLocation,
}

var (
	DefaultStatusOptions   = []string{"Pendiente", "En progreso", "Completado"}
	DefaultPriorityOptions = []string{"Baja", "Media", "Alta", "Crítica"}
)

func ColumnTypes() []ColumnType {
	out := make([]ColumnType, len(columnTypes))
	copy(out, columnTypes)
	return out
}

func ValidColumnType(t string) bool {
	for _, candidate := range columnTypes {
		if string(candidate) == t {
			return true
		}
	}
	return false
}

type ChartType string

const (
	ChartBar       ChartType = "bar"
	ChartLine      ChartType = "line"
	ChartPie       ChartType = "pie"
	ChartDoughnut  ChartType = "doughnut"
	ChartRadar     ChartType = "radar"
	ChartPolarArea ChartType = "polarArea"
)

type Aggregation string

const (
	AggregateCount   Aggregation = "count"
	AggregateSum     Aggregation = "sum"
	AggregateAverage Aggregation = "average"
)

func validChartType(t ChartType) bool {
	switch t {
	case ChartBar, ChartLine, ChartPie, ChartDoughnut, ChartRadar, ChartPolarArea:
		return true
	}
	return false
}

func validAggregation(a Aggregation) bool {
	return a == AggregateCount || a == AggregateSum || a == AggregateAverage
}

type ColumnConfig struct {
	Options []string          `json:"options,omitempty" bson:"options,omitempty"`
	Colors  map[string]string `json:"colors,omitempty" bson:"colors,omitempty"`
	Formula string            `json:"formula,omitempty" bson:"formula,omitempty"`
	Extra   map[string]any    `json:"extra,omitempty" bson:"extra,omitempty"`
}

type Column struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Type   ColumnType   `json:"type"`
	Order  int          `json:"order"`
	Config ColumnConfig `json:"config"`
}

type Item struct {
	ID        string           `json:"id"`
	Values    map[string]Value `json:"values"`
	CreatedBy string           `json:"createdBy"`
	UpdatedBy string           `json:"updatedBy"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Order     int              `json:"order"`
}

type DataSource struct {
	ColumnID        string      `json:"columnId"`
	Aggregation     Aggregation `json:"aggregation"`
	GroupByColumnID string      `json:"groupByColumnId,omitempty"`
}

type Chart struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Type       ChartType      `json:"type"`
	DataSource DataSource     `json:"dataSource"`
	Config     map[string]any `json:"config,omitempty"`
}

// Board is the aggregate: columns and items are kept sorted by Order, 1-based and contiguous.
type Board struct {
	ID           string    `json:"id"`
	WorkspaceID  string    `json:"workspaceId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CreatedBy    string    `json:"createdBy"`
	IsPrivate    bool      `json:"isPrivate"`
	IsActive     bool      `json:"isActive"`
	InvitedUsers []string  `json:"invitedUsers"`
	Columns      []Column  `json:"columns"`
	Items        []Item    `json:"items"`
	Charts       []Chart   `json:"charts"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AccessResource exposes the fields the authorization engine decides on.
func (b *Board) AccessResource() rbac.Resource {
	return rbac.Resource{CreatedBy: b.CreatedBy, IsPrivate: b.IsPrivate, InvitedUsers: b.InvitedUsers}
}

// NewStableID returns an identifier for columns, items and charts.
func NewStableID() string {
	return ulid.Make().String()
}

var now = func() time.Time { return time.Now().UTC() }
