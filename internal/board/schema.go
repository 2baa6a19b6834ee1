package board

import (
	"encoding/json"
	"fmt"
	"strings"
)

func (b *Board) Column(id string) (Column, bool) {
	for _, c := range b.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

func (b *Board) Item(id string) (Item, bool) {
	for _, it := range b.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (b *Board) Chart(id string) (Chart, bool) {
	for _, ch := range b.Charts {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chart{}, false
}

func (b *Board) columnIndex(id string) int {
	for i, c := range b.Columns {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) itemIndex(id string) int {
	for i, it := range b.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// AddColumn appends a column, or inserts it at order when given.
func (b *Board) AddColumn(name string, t ColumnType, cfg ColumnConfig, order *int) (Column, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Column{}, invalid("name", "column name is required")
	}
	if !ValidColumnType(string(t)) {
		return Column{}, invalid("type", "unknown column type %q", t)
	}
	cfg, err := normalizeConfig(t, cfg)
	if err != nil {
		return Column{}, err
	}

	col := Column{ID: NewStableID(), Name: name, Type: t, Config: cfg}
	pos := len(b.Columns)
	if order != nil {
		if *order < 1 {
			return Column{}, invalid("order", "order must be at least 1")
		}
		if *order-1 < pos {
			pos = *order - 1
		}
	}
	b.Columns = append(b.Columns, Column{})
	copy(b.Columns[pos+1:], b.Columns[pos:])
	b.Columns[pos] = col
	renumberColumns(b.Columns)
	b.touch()
	return b.Columns[pos], nil
}

func normalizeConfig(t ColumnType, cfg ColumnConfig) (ColumnConfig, error) {
	switch t {
	case TypeStatus:
		if len(cfg.Options) == 0 {
			cfg.Options = append([]string(nil), DefaultStatusOptions...)
		}
	case TypePriority:
		if len(cfg.Options) == 0 {
			cfg.Options = append([]string(nil), DefaultPriorityOptions...)
		}
	case TypeFormula:
		cfg.Formula = strings.TrimSpace(cfg.Formula)
		if cfg.Formula == "" {
			return cfg, invalid("config.formula", "formula columns need an expression")
		}
	}
	seen := make(map[string]struct{}, len(cfg.Options))
	for _, opt := range cfg.Options {
		if strings.TrimSpace(opt) == "" {
			return cfg, invalid("config.options", "options cannot be blank")
		}
		if _, dup := seen[opt]; dup {
			return cfg, invalid("config.options", "duplicate option %q", opt)
		}
		seen[opt] = struct{}{}
	}
	return cfg, nil
}

// RemoveColumn drops the column, its values in every item, and charts built on it.
func (b *Board) RemoveColumn(id string) error {
	idx := b.columnIndex(id)
	if idx < 0 {
		return notFound("column", id)
	}
	b.Columns = append(b.Columns[:idx], b.Columns[idx+1:]...)
	renumberColumns(b.Columns)
	for i := range b.Items {
		delete(b.Items[i].Values, id)
	}
	charts := b.Charts[:0]
	for _, ch := range b.Charts {
		if ch.DataSource.ColumnID == id || ch.DataSource.GroupByColumnID == id {
			continue
		}
		charts = append(charts, ch)
	}
	b.Charts = charts
	b.touch()
	return nil
}

func (b *Board) ReorderColumns(orderedIDs []string) error {
	current := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		current[i] = c.ID
	}
	perm, err := permutation(current, orderedIDs, "column")
	if err != nil {
		return err
	}
	reordered := make([]Column, len(perm))
	for i, from := range perm {
		reordered[i] = b.Columns[from]
	}
	renumberColumns(reordered)
	b.Columns = reordered
	b.touch()
	return nil
}

// AddItem appends a row. Keys must name existing, non-formula columns.
func (b *Board) AddItem(values map[string]json.RawMessage, actorID string) (Item, error) {
	decoded := make(map[string]Value, len(values))
	for columnID, raw := range values {
		col, ok := b.Column(columnID)
		if !ok {
			return Item{}, invalid("values", "unknown column %q", columnID)
		}
		if IsNull(raw) {
			continue
		}
		v, err := DecodeValue(col, raw)
		if err != nil {
			return Item{}, err
		}
		decoded[columnID] = v
	}
	at := now()
	item := Item{
		ID:        NewStableID(),
		Values:    decoded,
		CreatedBy: actorID,
		UpdatedBy: actorID,
		CreatedAt: at,
		UpdatedAt: at,
		Order:     len(b.Items) + 1,
	}
	b.Items = append(b.Items, item)
	b.touch()
	return item, nil
}

// CellChange describes a validated cell write. Cleared means the key is removed.
type CellChange struct {
	ItemID    string
	ColumnID  string
	Value     Value
	Cleared   bool
	UpdatedBy string
}

// UpdateCell sets or clears one value. null clears.
func (b *Board) UpdateCell(itemID, columnID string, raw json.RawMessage, actorID string) (CellChange, error) {
	idx := b.itemIndex(itemID)
	if idx < 0 {
		return CellChange{}, notFound("item", itemID)
	}
	col, ok := b.Column(columnID)
	if !ok {
		return CellChange{}, notFound("column", columnID)
	}
	change := CellChange{ItemID: itemID, ColumnID: columnID, UpdatedBy: actorID}
	item := &b.Items[idx]
	if item.Values == nil {
		item.Values = make(map[string]Value)
	}
	if IsNull(raw) {
		delete(item.Values, columnID)
		change.Cleared = true
	} else {
		v, err := DecodeValue(col, raw)
		if err != nil {
			return CellChange{}, err
		}
		item.Values[columnID] = v
		change.Value = v
	}
	item.UpdatedBy = actorID
	item.UpdatedAt = now()
	b.touch()
	return change, nil
}

func (b *Board) RemoveItem(itemID string) error {
	idx := b.itemIndex(itemID)
	if idx < 0 {
		return notFound("item", itemID)
	}
	b.Items = append(b.Items[:idx], b.Items[idx+1:]...)
	renumberItems(b.Items)
	b.touch()
	return nil
}

func (b *Board) ReorderItems(orderedIDs []string) error {
	current := make([]string, len(b.Items))
	for i, it := range b.Items {
		current[i] = it.ID
	}
	perm, err := permutation(current, orderedIDs, "item")
	if err != nil {
		return err
	}
	reordered := make([]Item, len(perm))
	for i, from := range perm {
		reordered[i] = b.Items[from]
	}
	renumberItems(reordered)
	b.Items = reordered
	b.touch()
	return nil
}

func (b *Board) AddChart(title string, t ChartType, ds DataSource, cfg map[string]any) (Chart, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Chart{}, invalid("title", "chart title is required")
	}
	if !validChartType(t) {
		return Chart{}, invalid("type", "unknown chart type %q", t)
	}
	if !validAggregation(ds.Aggregation) {
		return Chart{}, invalid("dataSource.aggregation", "unknown aggregation %q", ds.Aggregation)
	}
	if _, ok := b.Column(ds.ColumnID); !ok {
		return Chart{}, notFound("column", ds.ColumnID)
	}
	if ds.GroupByColumnID != "" {
		if _, ok := b.Column(ds.GroupByColumnID); !ok {
			return Chart{}, notFound("column", ds.GroupByColumnID)
		}
	}
	chart := Chart{ID: NewStableID(), Title: title, Type: t, DataSource: ds, Config: cfg}
	b.Charts = append(b.Charts, chart)
	b.touch()
	return chart, nil
}

func (b *Board) RemoveChart(chartID string) error {
	for i, ch := range b.Charts {
		if ch.ID == chartID {
			b.Charts = append(b.Charts[:i], b.Charts[i+1:]...)
			b.touch()
			return nil
		}
	}
	return notFound("chart", chartID)
}

// UpdateDetails applies the non-nil fields.
func (b *Board) UpdateDetails(name, description *string, isPrivate *bool) error {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return invalid("name", "board name is required")
		}
		b.Name = trimmed
	}
	if description != nil {
		b.Description = strings.TrimSpace(*description)
	}
	if isPrivate != nil {
		b.IsPrivate = *isPrivate
	}
	b.touch()
	return nil
}

func (b *Board) Invite(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("userId", "user id is required")
	}
	if contains(b.InvitedUsers, userID) {
		return invalid("userId", "user is already invited to this board")
	}
	b.InvitedUsers = append(b.InvitedUsers, userID)
	b.touch()
	return nil
}

func (b *Board) Deactivate() {
	b.IsActive = false
	b.touch()
}

// Clone returns a deep copy safe to mutate.
func (b *Board) Clone() *Board {
	out := *b
	out.InvitedUsers = append([]string(nil), b.InvitedUsers...)
	out.Columns = make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		c.Config = cloneConfig(c.Config)
		out.Columns[i] = c
	}
	out.Items = make([]Item, len(b.Items))
	for i, it := range b.Items {
		values := make(map[string]Value, len(it.Values))
		for k, v := range it.Values {
			values[k] = cloneValue(v)
		}
		it.Values = values
		out.Items[i] = it
	}
	out.Charts = make([]Chart, len(b.Charts))
	for i, ch := range b.Charts {
		ch.Config = cloneMap(ch.Config)
		out.Charts[i] = ch
	}
	return &out
}

// Validate checks the structural invariants of the aggregate.
func (b *Board) Validate() error {
	seen := make(map[string]struct{}, len(b.Columns))
	for i, c := range b.Columns {
		if c.Order != i+1 {
			return fmt.Errorf("column %s has order %d, want %d", c.ID, c.Order, i+1)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("duplicate column id %s", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	items := make(map[string]struct{}, len(b.Items))
	for i, it := range b.Items {
		if it.Order != i+1 {
			return fmt.Errorf("item %s has order %d, want %d", it.ID, it.Order, i+1)
		}
		if _, dup := items[it.ID]; dup {
			return fmt.Errorf("duplicate item id %s", it.ID)
		}
		items[it.ID] = struct{}{}
		for key := range it.Values {
			if _, ok := seen[key]; !ok {
				return fmt.Errorf("item %s has a value for unknown column %s", it.ID, key)
			}
		}
	}
	for _, ch := range b.Charts {
		if _, ok := seen[ch.DataSource.ColumnID]; !ok {
			return fmt.Errorf("chart %s references unknown column %s", ch.ID, ch.DataSource.ColumnID)
		}
	}
	return nil
}

func (b *Board) touch() {
	b.UpdatedAt = now()
}

// permutation maps each position of ordered to its index in current.
func permutation(current, ordered []string, kind string) ([]int, error) {
	index := make(map[string]int, len(current))
	for i, id := range current {
		index[id] = i
	}
	used := make([]bool, len(current))
	out := make([]int, 0, len(ordered))
	for _, id := range ordered {
		i, ok := index[id]
		if !ok || used[i] {
			return nil, notFound(kind, id)
		}
		used[i] = true
		out = append(out, i)
	}
	for i, ok := range used {
		if !ok {
			return nil, notFound(kind, current[i])
		}
	}
	return out, nil
}

func renumberColumns(cols []Column) {
	for i := range cols {
		cols[i].Order = i + 1
	}
}

func renumberItems(items []Item) {
	for i := range items {
		items[i].Order = i + 1
	}
}

func cloneConfig(cfg ColumnConfig) ColumnConfig {
	cfg.Options = append([]string(nil), cfg.Options...)
	if cfg.Colors != nil {
		colors := make(map[string]string, len(cfg.Colors))
		for k, v := range cfg.Colors {
			colors[k] = v
		}
		cfg.Colors = colors
	}
	cfg.Extra = cloneMap(cfg.Extra)
	return cfg
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneValue(v Value) Value {
	v.List = append([]string(nil), v.List...)
	v.Files = append([]File(nil), v.Files...)
	return v
}
