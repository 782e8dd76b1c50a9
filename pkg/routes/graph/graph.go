package graph

import (
	"fmt"
	"maps"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/ooddaa/mango-sub002/pkg/candidate"
	"github.com/ooddaa/mango-sub002/pkg/criteria"
	"github.com/ooddaa/mango-sub002/pkg/engine"
	graphpkg "github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/result"
)

// Handler exposes the engine over HTTP. Batch endpoints always answer 200
// with one result per input; failures are reported per item.
type Handler struct {
	engine *engine.Engine
	logger ectologger.Logger
}

// NewHandler creates a new graph handler
func NewHandler(engine *engine.Engine, logger ectologger.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// Register registers the graph routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/nodes/merge", h.MergeNodes)
	g.POST("/relationships/merge", h.MergeRelationships)
	g.POST("/enhanced-nodes/merge", h.MergeEnhancedNodes)
	g.POST("/batch/merge", h.MergeBatch)
	g.POST("/nodes/match", h.MatchNodes)
	g.POST("/nodes/partial-match", h.MatchPartialNodes)
	g.POST("/nodes/enhance", h.EnhanceNodes)
	g.POST("/nodes/update", h.UpdateNodes)
	g.POST("/nodes/edit", h.EditNodes)
	g.POST("/relationships/edit", h.EditRelationships)
	g.POST("/nodes/delete", h.DeleteNodes)
	g.POST("/relationships/delete", h.DeleteRelationships)
	g.GET("/nodes/:id", h.GetNode)
}

// ResultsResponse wraps per-input results.
type ResultsResponse struct {
	Results   []result.Result `json:"results"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

func respond(c echo.Context, results []result.Result) error {
	failed := len(result.Failures(results))
	return c.JSON(http.StatusOK, ResultsResponse{
		Results:   results,
		Succeeded: len(results) - failed,
		Failed:    failed,
	})
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

// NodesRequest carries node candidate documents.
type NodesRequest struct {
	Nodes []candidate.NodeDocument `json:"nodes" validate:"required,min=1"`
}

// RelationshipsRequest carries relationship candidate documents with both
// endpoints given.
type RelationshipsRequest struct {
	Relationships []candidate.RelationshipDocument `json:"relationships" validate:"required,min=1"`
}

// EnhancedNodesRequest carries enhanced node candidate documents.
type EnhancedNodesRequest struct {
	EnhancedNodes []candidate.EnhancedNodeDocument `json:"enhancedNodes" validate:"required,min=1"`
}

// NodeRef points at a stored node by element id, by hash, or by labels and
// properties.
type NodeRef struct {
	ID         string         `json:"id,omitempty"`
	Hash       string         `json:"hash,omitempty"`
	Labels     []string       `json:"labels,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (r NodeRef) node() *graphpkg.Node {
	props := graphpkg.Properties{}
	maps.Copy(props, r.Properties)
	if r.Hash != "" {
		props[graphpkg.KeyHash] = r.Hash
	}
	n := graphpkg.NewNode(r.Labels, props)
	n.Identity = r.ID
	return n
}

func nodes(refs []NodeRef) []*graphpkg.Node {
	out := make([]*graphpkg.Node, len(refs))
	for i, ref := range refs {
		out[i] = ref.node()
	}
	return out
}

// NodeRefsRequest carries node references.
type NodeRefsRequest struct {
	Nodes []NodeRef `json:"nodes" validate:"required,min=1"`
}

// EnhanceRequest asks for neighbourhoods up to Hops away.
type EnhanceRequest struct {
	Nodes []NodeRef `json:"nodes" validate:"required,min=1"`
	Hops  int       `json:"hops,omitempty" validate:"gte=0,lte=10"`
}

// PartialMatchRequest carries partial node descriptions.
type PartialMatchRequest struct {
	Partials []criteria.PartialNode `json:"partials" validate:"required,min=1"`
}

// UpdateDocument names the node to version and the changes to apply.
type UpdateDocument struct {
	ID       string         `json:"id" validate:"required"`
	Required map[string]any `json:"required,omitempty"`
	Optional map[string]any `json:"optional,omitempty"`
}

// UpdateRequest carries node updates.
type UpdateRequest struct {
	Updates []UpdateDocument `json:"updates" validate:"required,min=1,dive"`
}

// EditRequest carries in-place edits.
type EditRequest struct {
	Edits []engine.Edit `json:"edits" validate:"required,min=1"`
}

// RelationshipRef points at a stored relationship by element id, or by
// hash and type.
type RelationshipRef struct {
	ID    string `json:"id,omitempty"`
	Hash  string `json:"hash,omitempty"`
	Label string `json:"label,omitempty"`
}

// DeleteRelationshipsRequest carries relationship references.
type DeleteRelationshipsRequest struct {
	Relationships []RelationshipRef `json:"relationships" validate:"required,min=1"`
}

// MergeNodes promotes and merges node candidates.
func (h *Handler) MergeNodes(c echo.Context) error {
	var req NodesRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	cs := make([]*candidate.NodeCandidate, len(req.Nodes))
	for i, d := range req.Nodes {
		cs[i] = d.Candidate()
	}
	return respond(c, h.engine.MergeNodeCandidates(c.Request().Context(), cs))
}

// MergeRelationships promotes and merges relationship candidates. A document
// that cannot become a candidate fails only its own slot.
func (h *Handler) MergeRelationships(c echo.Context) error {
	var req RelationshipsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	out := make([]result.Result, len(req.Relationships))
	cs := make([]*candidate.RelationshipCandidate, 0, len(req.Relationships))
	slots := make([]int, 0, len(req.Relationships))
	for i, d := range req.Relationships {
		rc, err := d.Candidate()
		if err != nil {
			out[i] = result.Fail(&result.Failure{Kind: result.KindPromotion, Reason: err.Error(), Data: d, Err: err})
			continue
		}
		cs = append(cs, rc)
		slots = append(slots, i)
	}
	if len(cs) > 0 {
		for j, r := range h.engine.MergeRelationshipCandidates(ctx, cs) {
			out[slots[j]] = r
		}
	}
	return respond(c, out)
}

// MergeEnhancedNodes promotes and merges enhanced node candidates as one
// all-or-nothing batch.
func (h *Handler) MergeEnhancedNodes(c echo.Context) error {
	var req EnhancedNodesRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	cs := make([]*candidate.EnhancedNodeCandidate, len(req.EnhancedNodes))
	for i := range req.EnhancedNodes {
		ec, err := req.EnhancedNodes[i].Candidate()
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("enhancedNodes[%d]: %v", i, err))
		}
		cs[i] = ec
	}
	return respond(c, h.engine.MergeEnhancedNodeCandidates(c.Request().Context(), cs))
}

// MergeBatch merges a mixed batch document.
func (h *Handler) MergeBatch(c echo.Context) error {
	var batch candidate.Batch
	if err := c.Bind(&batch); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.engine.MergeBatch(c.Request().Context(), &batch)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

// MatchNodes matches nodes by hash or by properties.
func (h *Handler) MatchNodes(c echo.Context) error {
	var req NodeRefsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return respond(c, h.engine.MatchNodes(c.Request().Context(), nodes(req.Nodes)))
}

// MatchPartialNodes matches nodes by criteria.
func (h *Handler) MatchPartialNodes(c echo.Context) error {
	var req PartialMatchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return respond(c, h.engine.MatchPartialNodes(c.Request().Context(), req.Partials))
}

// EnhanceNodes returns node neighbourhoods.
func (h *Handler) EnhanceNodes(c echo.Context) error {
	var req EnhanceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return respond(c, h.engine.EnhanceNodes(c.Request().Context(), nodes(req.Nodes), req.Hops))
}

// UpdateNodes versions nodes by element id.
func (h *Handler) UpdateNodes(c echo.Context) error {
	var req UpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	ids := make([]string, len(req.Updates))
	for i, u := range req.Updates {
		ids[i] = u.ID
	}
	found := h.engine.MatchNodesByID(ctx, ids)

	out := make([]result.Result, len(req.Updates))
	updates := make([]engine.NodeUpdate, 0, len(req.Updates))
	slots := make([]int, 0, len(req.Updates))
	for i, r := range found {
		current, ok := lookup(r, ids[i])
		if !ok {
			out[i] = current
			continue
		}
		node, _ := result.DataAs[[]*graphpkg.Node](r)
		updates = append(updates, engine.NodeUpdate{
			Node:     node[0],
			Required: req.Updates[i].Required,
			Optional: req.Updates[i].Optional,
		})
		slots = append(slots, i)
	}
	if len(updates) > 0 {
		for j, r := range h.engine.UpdateNodes(ctx, updates) {
			out[slots[j]] = r
		}
	}
	return respond(c, out)
}

// lookup turns a by-id match into a failure when the node is missing.
func lookup(r result.Result, id string) (result.Result, bool) {
	if r.Failure != nil {
		return r, false
	}
	nodes, _ := result.DataAs[[]*graphpkg.Node](r)
	if len(nodes) == 0 {
		return result.Fail(result.Consistency(fmt.Sprintf("node %s not found", id), id, nil)), false
	}
	return r, true
}

// EditNodes edits node properties in place.
func (h *Handler) EditNodes(c echo.Context) error {
	var req EditRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return respond(c, h.engine.EditNodesByID(c.Request().Context(), req.Edits))
}

// EditRelationships edits relationship properties in place.
func (h *Handler) EditRelationships(c echo.Context) error {
	var req EditRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return respond(c, h.engine.EditRelationships(c.Request().Context(), req.Edits))
}

// DeleteNodes deletes nodes and their relationships.
func (h *Handler) DeleteNodes(c echo.Context) error {
	var req NodeRefsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return respond(c, h.engine.DeleteNodes(c.Request().Context(), nodes(req.Nodes)))
}

// DeleteRelationships deletes relationships.
func (h *Handler) DeleteRelationships(c echo.Context) error {
	var req DeleteRelationshipsRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	rels := make([]*graphpkg.Relationship, len(req.Relationships))
	for i, ref := range req.Relationships {
		props := graphpkg.Properties{}
		if ref.Hash != "" {
			props[graphpkg.KeyHash] = ref.Hash
		}
		rels[i] = graphpkg.NewRelationship(ref.Label, props, nil, nil, graphpkg.Outbound, graphpkg.Optional)
		rels[i].Identity = ref.ID
	}
	return respond(c, h.engine.DeleteRelationships(c.Request().Context(), rels))
}

// GetNode returns one node by element id.
func (h *Handler) GetNode(c echo.Context) error {
	id := c.Param("id")
	res := h.engine.MatchNodesByID(c.Request().Context(), []string{id})[0]
	if res.Failure != nil {
		return res.Failure
	}
	found, _ := result.DataAs[[]*graphpkg.Node](res)
	if len(found) == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("node %s not found", id))
	}
	return c.JSON(http.StatusOK, found[0])
}
