package store

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ooddaa/mango-sub002/pkg/cypher"
)

// Counters are the update statistics of one statement.
type Counters struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
	AvailableAfter       time.Duration
}

// Add accumulates o into c.
func (c *Counters) Add(o Counters) {
	c.NodesCreated += o.NodesCreated
	c.NodesDeleted += o.NodesDeleted
	c.RelationshipsCreated += o.RelationshipsCreated
	c.RelationshipsDeleted += o.RelationshipsDeleted
	c.PropertiesSet += o.PropertiesSet
	c.AvailableAfter += o.AvailableAfter
}

// Outcome holds the records and counters of one statement.
type Outcome struct {
	Records  []*neo4j.Record
	Counters Counters
}

// Session is the minimal interface needed from a neo4j session: run a batch
// of statements in one transaction, then release.
type Session interface {
	Execute(ctx context.Context, statements []cypher.Statement) ([]Outcome, error)
	Close(ctx context.Context) error
}

// SessionFactory opens a session for the given access mode.
type SessionFactory func(ctx context.Context, mode neo4j.AccessMode) Session

// neo4jSession adapts neo4j.SessionWithContext to Session.
type neo4jSession struct {
	sess neo4j.SessionWithContext
	mode neo4j.AccessMode
}

func (s *neo4jSession) Execute(ctx context.Context, statements []cypher.Statement) ([]Outcome, error) {
	work := func(tx neo4j.ManagedTransaction) (any, error) {
		outcomes := make([]Outcome, 0, len(statements))
		for _, st := range statements {
			res, err := tx.Run(ctx, st.Cypher, st.Params)
			if err != nil {
				return nil, err
			}
			records, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			summary, err := res.Consume(ctx)
			if err != nil {
				return nil, err
			}
			outcomes = append(outcomes, Outcome{Records: records, Counters: countersOf(summary)})
		}
		return outcomes, nil
	}

	var (
		out any
		err error
	)
	if s.mode == neo4j.AccessModeRead {
		out, err = s.sess.ExecuteRead(ctx, work)
	} else {
		out, err = s.sess.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	return out.([]Outcome), nil
}

func (s *neo4jSession) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

func countersOf(summary neo4j.ResultSummary) Counters {
	if summary == nil {
		return Counters{}
	}
	c := summary.Counters()
	return Counters{
		NodesCreated:         c.NodesCreated(),
		NodesDeleted:         c.NodesDeleted(),
		RelationshipsCreated: c.RelationshipsCreated(),
		RelationshipsDeleted: c.RelationshipsDeleted(),
		PropertiesSet:        c.PropertiesSet(),
		AvailableAfter:       summary.ResultAvailableAfter(),
	}
}
