package api

import "time"

// NodeSummary is a lightweight item in a node listing.
type NodeSummary struct {
	ID       string `json:"id" example:"alice" validate:"required"`
	Comments int    `json:"comments" example:"12" validate:"required"`
	Degree   int    `json:"degree" example:"3" validate:"required"`
}

// NodeListResponse wraps paginated node listings.
type NodeListResponse struct {
	Nodes []NodeSummary `json:"nodes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// NodeDetail is a node with its incident edges.
type NodeDetail struct {
	NodeSummary
	First string    `json:"first,omitempty" example:"2020-01-01"`
	Last  string    `json:"last,omitempty" example:"2020-01-31"`
	Edges []EdgeDTO `json:"edges" validate:"required"`
}

// EdgeDTO is a collapsed edge.
type EdgeDTO struct {
	Source string         `json:"source" example:"alice" validate:"required"`
	Target string         `json:"target" example:"bob" validate:"required"`
	Weight int            `json:"weight" example:"2" validate:"required"`
	First  string         `json:"first" example:"2020-01-01" validate:"required"`
	Last   string         `json:"last" example:"2020-01-05" validate:"required"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// EdgeListResponse wraps the heaviest edges.
type EdgeListResponse struct {
	Edges []EdgeDTO `json:"edges" validate:"required"`
	Total int       `json:"total" example:"120" validate:"required"`
}

// EdgeCountResponse is the number of interactions inside a window.
type EdgeCountResponse struct {
	Start string `json:"start" example:"2020-01-01" validate:"required"`
	End   string `json:"end" example:"2020-01-31" validate:"required"`
	Count int    `json:"count" example:"17" validate:"required"`
}

// StatsResponse is a node's corpus statistics.
type StatsResponse struct {
	ID         string         `json:"id" example:"alice" validate:"required"`
	Comments   int            `json:"comments" example:"12" validate:"required"`
	Tokens     int            `json:"tokens" example:"140" validate:"required"`
	Vocabulary map[string]int `json:"vocabulary" validate:"required"`
	ByType     map[string]int `json:"by_type" validate:"required"`
	First      string         `json:"first,omitempty" example:"2020-01-01"`
	Last       string         `json:"last,omitempty" example:"2020-01-31"`
}

// BuildResponse describes the graph currently served.
type BuildResponse struct {
	ID               string    `json:"id" example:"3f1c..." validate:"required"`
	BuiltAt          time.Time `json:"built_at" validate:"required"`
	Nodes            int       `json:"nodes" example:"420" validate:"required"`
	Edges            int       `json:"edges" example:"1337" validate:"required"`
	RawEdges         int       `json:"raw_edges" example:"5000" validate:"required"`
	DroppedUnknown   int       `json:"dropped_unknown"`
	DroppedSelfLoop  int       `json:"dropped_self_loop"`
	DroppedWindow    int       `json:"dropped_window"`
	DroppedCondition int       `json:"dropped_condition"`
	PrunedEdges      int       `json:"pruned_edges"`
	PrunedNodes      int       `json:"pruned_nodes"`
	Warnings         int       `json:"warnings"`
}

// SearchResult is a single comment hit.
type SearchResult struct {
	NodeID  string `json:"node_id" example:"alice" validate:"required"`
	Date    string `json:"date" example:"2020-01-01" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
