package board

// EmptyGroupLabel labels items that have no value in the grouping column.
const EmptyGroupLabel = "Sin valor"

type ChartData struct {
	ChartID     string      `json:"chartId"`
	Title       string      `json:"title"`
	Type        ChartType   `json:"type"`
	Aggregation Aggregation `json:"aggregation"`
	Labels      []string    `json:"labels"`
	Data        []float64   `json:"data"`
}

// ComputeChart aggregates the board's items for one chart. Labels keep first-seen item order.
func ComputeChart(b *Board, chartID string) (ChartData, error) {
	chart, ok := b.Chart(chartID)
	if !ok {
		return ChartData{}, notFound("chart", chartID)
	}
	ds := chart.DataSource
	dataCol, ok := b.Column(ds.ColumnID)
	if !ok {
		return ChartData{}, notFound("column", ds.ColumnID)
	}

	groupBy := ds.GroupByColumnID
	if groupBy == "" && ds.Aggregation == AggregateCount {
		groupBy = ds.ColumnID
	}
	if groupBy != "" {
		if _, ok := b.Column(groupBy); !ok {
			return ChartData{}, notFound("column", groupBy)
		}
	}

	out := ChartData{
		ChartID:     chart.ID,
		Title:       chart.Title,
		Type:        chart.Type,
		Aggregation: ds.Aggregation,
		Labels:      []string{},
		Data:        []float64{},
	}
	if len(b.Items) == 0 {
		return out, nil
	}

	index := map[string]int{}
	counts := []int{}
	for _, it := range b.Items {
		label := dataCol.Name
		if groupBy != "" {
			label = EmptyGroupLabel
			if v, ok := it.Values[groupBy]; ok {
				if s := v.String(); s != "" {
					label = s
				}
			}
		}
		pos, seen := index[label]
		if !seen {
			pos = len(out.Labels)
			index[label] = pos
			out.Labels = append(out.Labels, label)
			out.Data = append(out.Data, 0)
			counts = append(counts, 0)
		}
		counts[pos]++
		if ds.Aggregation != AggregateCount {
			out.Data[pos] += it.Values[ds.ColumnID].Numeric()
		}
	}

	for i := range out.Data {
		switch ds.Aggregation {
		case AggregateCount:
			out.Data[i] = float64(counts[i])
		case AggregateAverage:
			out.Data[i] = out.Data[i] / float64(counts[i])
		}
	}
	return out, nil
}
